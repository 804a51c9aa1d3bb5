package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/grovetools/cowork/internal/daemon/store"
	"github.com/grovetools/cowork/internal/executor"
	"github.com/grovetools/cowork/pkg/daemon"
)

const requestTimeout = 5 * time.Second

type tickMsg time.Time

type snapshotMsg struct {
	stats    *daemon.Stats
	sessions []executor.SessionInfo
	err      error
}

type updateMsg store.Update

type streamClosedMsg struct{}

type killedMsg struct {
	sessionID string
	err       error
}

func (m *Model) fetch() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		stats, err := source.Stats(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		sessions, err := source.Sessions(ctx)
		return snapshotMsg{stats: stats, sessions: sessions, err: err}
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	updates := m.updates
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return streamClosedMsg{}
		}
		return updateMsg(u)
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) kill(sessionID string) tea.Cmd {
	source := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return killedMsg{sessionID: sessionID, err: source.KillSession(ctx, sessionID)}
	}
}

// Update handles messages and updates the model accordingly.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.stats = msg.stats
			m.sessions = msg.sessions
			m.clampCursor()
		}
		return m, nil

	case updateMsg:
		m.events = append(m.events, store.Update(msg))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
		// Session changes show up immediately rather than on the next tick.
		return m, tea.Batch(m.fetch(), m.waitForUpdate())

	case streamClosedMsg:
		m.live = false
		return m, nil

	case killedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("kill %s: %v", msg.sessionID, msg.err)
		} else {
			m.status = fmt.Sprintf("killed %s", msg.sessionID)
		}
		return m, m.fetch()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.sessions)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetch()
		case key.Matches(msg, m.keys.Kill):
			if s, ok := m.Selected(); ok {
				m.status = fmt.Sprintf("killing %s...", s.SessionID)
				return m, m.kill(s.SessionID)
			}
		}
	}
	return m, nil
}

// Selected returns the session under the cursor.
func (m *Model) Selected() (executor.SessionInfo, bool) {
	if m.cursor < 0 || m.cursor >= len(m.sessions) {
		return executor.SessionInfo{}, false
	}
	return m.sessions[m.cursor], true
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.sessions) {
		m.cursor = len(m.sessions) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}
