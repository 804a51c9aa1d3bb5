package executor

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grovetools/cowork/pkg/process"
)

// ActiveExecution is the bookkeeping record of one running tool process.
type ActiveExecution struct {
	SessionID string
	UserID    string
	Directory string
	StartTime time.Time

	process *os.Process
	killed  atomic.Bool
}

// SessionInfo is a point-in-time view of an ActiveExecution.
type SessionInfo struct {
	SessionID string        `json:"sessionId"`
	UserID    string        `json:"userId"`
	Directory string        `json:"workingDirectory"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"-"`
}

// MarshalJSON reports duration in milliseconds.
func (s SessionInfo) MarshalJSON() ([]byte, error) {
	type alias SessionInfo
	return json.Marshal(struct {
		alias
		Duration int64 `json:"duration"`
	}{alias(s), s.Duration.Milliseconds()})
}

// UnmarshalJSON reads the millisecond duration written by MarshalJSON.
func (s *SessionInfo) UnmarshalJSON(data []byte) error {
	type alias SessionInfo
	var raw struct {
		alias
		Duration int64 `json:"duration"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SessionInfo(raw.alias)
	s.Duration = time.Duration(raw.Duration) * time.Millisecond
	return nil
}

// Registry tracks running executions by session id.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*ActiveExecution
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*ActiveExecution)}
}

func (r *Registry) add(e *ActiveExecution) {
	r.mu.Lock()
	r.entries[e.SessionID] = e
	r.mu.Unlock()
}

func (r *Registry) remove(sessionID string) {
	r.mu.Lock()
	delete(r.entries, sessionID)
	r.mu.Unlock()
}

// Len returns the number of running executions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// List returns every running execution, oldest first.
func (r *Registry) List(now time.Time) []SessionInfo {
	r.mu.Lock()
	out := make([]SessionInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, SessionInfo{
			SessionID: e.SessionID,
			UserID:    e.UserID,
			Directory: e.Directory,
			StartTime: e.StartTime,
			Duration:  now.Sub(e.StartTime),
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Kill signals the session's process and evicts it immediately, without
// waiting for the process to stop. It reports whether the session existed.
func (r *Registry) Kill(sessionID string) (bool, error) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if ok {
		delete(r.entries, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return false, nil
	}
	e.killed.Store(true)
	return true, process.Interrupt(e.process)
}
