package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/cowork/internal/daemon/store"
	"github.com/grovetools/cowork/internal/executor"
	"github.com/grovetools/cowork/pkg/daemon"
)

type fakeSource struct {
	stats    *daemon.Stats
	sessions []executor.SessionInfo
	err      error
	killed   []string
}

func (f *fakeSource) Stats(context.Context) (*daemon.Stats, error) {
	return f.stats, f.err
}

func (f *fakeSource) Sessions(context.Context) ([]executor.SessionInfo, error) {
	return f.sessions, f.err
}

func (f *fakeSource) KillSession(_ context.Context, id string) error {
	f.killed = append(f.killed, id)
	return nil
}

func newSource() *fakeSource {
	return &fakeSource{
		stats: &daemon.Stats{ActiveExecutions: 2, Uptime: "1m0s"},
		sessions: []executor.SessionInfo{
			{SessionID: "s1", UserID: "alice", Directory: "/srv/a", Duration: 3 * time.Second},
			{SessionID: "s2", UserID: "bob", Directory: "/srv/b", Duration: time.Second},
		},
	}
}

func press(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSnapshotAndView(t *testing.T) {
	src := newSource()
	m := New(src, nil, time.Second)

	_, _ = m.Update(m.fetch()())
	require.Len(t, m.sessions, 2)

	view := m.View()
	assert.Contains(t, view, "COWORK")
	assert.Contains(t, view, "polling")
	assert.Contains(t, view, "alice")
	assert.Contains(t, view, "/srv/b")
}

func TestSnapshotErrorKeepsLastData(t *testing.T) {
	src := newSource()
	m := New(src, nil, time.Second)
	_, _ = m.Update(m.fetch()())

	src.err = errors.New("connection refused")
	_, _ = m.Update(m.fetch()())

	assert.Len(t, m.sessions, 2)
	assert.Contains(t, m.View(), "daemon unreachable")
}

func TestCursorAndKill(t *testing.T) {
	src := newSource()
	m := New(src, nil, time.Second)
	_, _ = m.Update(m.fetch()())

	_, _ = m.Update(press("j"))
	_, _ = m.Update(press("j"))
	sel, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, "s2", sel.SessionID, "cursor stops at the last row")

	_, cmd := m.Update(press("x"))
	require.NotNil(t, cmd)
	_, _ = m.Update(cmd())
	assert.Equal(t, []string{"s2"}, src.killed)
	assert.Contains(t, m.status, "killed s2")

	src.sessions = src.sessions[:1]
	_, _ = m.Update(m.fetch()())
	sel, _ = m.Selected()
	assert.Equal(t, "s1", sel.SessionID)
}

func TestKillWithoutSessions(t *testing.T) {
	m := New(&fakeSource{stats: &daemon.Stats{}}, nil, time.Second)
	_, _ = m.Update(m.fetch()())

	_, cmd := m.Update(press("x"))
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "no running executions")
}

func TestActivityStream(t *testing.T) {
	updates := make(chan store.Update, 1)
	m := New(newSource(), updates, time.Second)
	assert.Contains(t, m.View(), "live")

	updates <- store.Update{Type: store.UpdateExecutionStarted, UserID: "alice", Timestamp: time.Now()}
	_, cmd := m.Update(m.waitForUpdate()())
	assert.NotNil(t, cmd)
	require.Len(t, m.events, 1)
	assert.Contains(t, m.View(), "execution_started")

	close(updates)
	_, _ = m.Update(m.waitForUpdate()())
	assert.False(t, m.live)
}

func TestEventsAreCapped(t *testing.T) {
	m := New(newSource(), nil, time.Second)
	for i := 0; i < maxEvents+10; i++ {
		_, _ = m.Update(updateMsg(store.Update{Type: store.UpdateMessage}))
	}
	assert.Len(t, m.events, maxEvents)
}

func TestQuit(t *testing.T) {
	m := New(newSource(), nil, time.Second)
	_, cmd := m.Update(press("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
