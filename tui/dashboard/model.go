// Package dashboard is a live terminal view of a running cowork daemon.
package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/grovetools/cowork/internal/daemon/store"
	"github.com/grovetools/cowork/internal/executor"
	"github.com/grovetools/cowork/pkg/daemon"
)

// maxEvents is how many activity updates the dashboard keeps.
const maxEvents = 50

// Source is the part of the daemon client the dashboard reads from.
type Source interface {
	Stats(ctx context.Context) (*daemon.Stats, error)
	Sessions(ctx context.Context) ([]executor.SessionInfo, error)
	KillSession(ctx context.Context, sessionID string) error
}

// Model represents the state of the dashboard.
type Model struct {
	source   Source
	updates  <-chan store.Update
	interval time.Duration

	stats    *daemon.Stats
	sessions []executor.SessionInfo
	events   []store.Update
	status   string
	err      error
	live     bool

	keys   KeyMap
	help   help.Model
	cursor int
	width  int
	height int
}

// New creates a dashboard polling source every interval. updates, when
// non-nil, feeds the activity pane as events happen.
func New(source Source, updates <-chan store.Update, interval time.Duration) *Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Model{
		source:   source,
		updates:  updates,
		interval: interval,
		live:     updates != nil,
		keys:     DefaultKeyMap,
		help:     help.New(),
	}
}

// Init fetches the first snapshot and starts listening.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.waitForUpdate(), m.tick())
}
