package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/cowork/errors"
	"github.com/grovetools/cowork/internal/daemon/store"
	"github.com/grovetools/cowork/internal/executor"
	"github.com/grovetools/cowork/internal/rooms"
	"github.com/grovetools/cowork/sandbox"
)

const (
	// commandLabelLength bounds the prompt excerpt sent with command-started.
	commandLabelLength = 200
	// defaultHistoryLimit is how many messages GET /api/messages returns.
	defaultHistoryLimit = 100
	// maxMessageBytes keeps an escaped transcript line well under
	// transcript.MaxLineBytes.
	maxMessageBytes = 64 << 10
	// streamBacklog is how many past updates a new SSE client receives.
	streamBacklog = 20
)

type executeRequest struct {
	WorkingDirectory string                `json:"workingDirectory"`
	Action           sandbox.Action        `json:"action"`
	Prompt           string                `json:"prompt"`
	Options          sandbox.PromptOptions `json:"options"`
}

type messageRequest struct {
	WorkingDirectory string `json:"workingDirectory"`
	Message          string `json:"message"`
}

type clearRequest struct {
	WorkingDirectory string `json:"workingDirectory"`
}

type statsResponse struct {
	rooms.Statistics
	ActiveExecutions int                      `json:"activeExecutions"`
	Activity         map[store.UpdateType]int `json:"activity"`
	StartedAt        time.Time                `json:"startedAt"`
	Uptime           string                   `json:"uptime"`
}

// authorize identifies the caller and checks they may use dir.
func (s *Server) authorize(r *http.Request, dir string) (Identity, error) {
	id, err := s.auth.Identify(r)
	if err != nil {
		return Identity{}, err
	}
	if dir == "" {
		return Identity{}, errors.Validation("workingDirectory is required")
	}
	if !s.policy.Allowed(dir) {
		return Identity{}, errors.New(errors.ErrCodeForbidden, fmt.Sprintf("directory not allowed: %s", dir)).
			WithDetail("path", dir)
	}
	return id, nil
}

func commandLabel(action sandbox.Action, prompt string) string {
	if utf8.RuneCountInString(prompt) > commandLabelLength {
		prompt = string([]rune(prompt)[:commandLabelLength]) + "…"
	}
	if action == "" {
		return prompt
	}
	return fmt.Sprintf("%s: %s", action, prompt)
}

// handleExecute runs the tool, bracketed by command-started and
// command-completed notifications to the rest of the directory's room.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body executeRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.authorize(r, body.WorkingDirectory)
	if err != nil {
		s.writeError(w, err)
		return
	}

	dir := body.WorkingDirectory
	req := executor.Request{
		UserID:           id.UserID,
		WorkingDirectory: dir,
		Action:           body.Action,
		Prompt:           body.Prompt,
		Options:          body.Options,
	}
	log := s.logger.WithFields(logrus.Fields{
		"user_id":   id.UserID,
		"directory": dir,
	})

	if body.Prompt == executor.ClearCommand {
		res, err := s.executor.Execute(r.Context(), req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.clearChat(r, dir, id)
		s.writeJSON(w, http.StatusOK, res)
		return
	}

	s.rooms.BroadcastCommandStarted(dir, commandLabel(body.Action, body.Prompt), id.SessionID)
	s.store.Record(store.Update{
		Type:      store.UpdateExecutionStarted,
		Source:    "api",
		Directory: dir,
		UserID:    id.UserID,
		Detail:    string(body.Action),
	})

	res, err := s.executor.Execute(r.Context(), req)
	s.rooms.BroadcastCommandCompleted(dir, err == nil, id.SessionID)

	if err != nil {
		log.WithError(err).Debug("Execution failed")
		s.store.Record(store.Update{
			Type:      store.UpdateExecutionFailed,
			Source:    "api",
			Directory: dir,
			UserID:    id.UserID,
			Detail:    string(errors.GetCode(err)),
		})
		s.writeError(w, err)
		return
	}

	s.store.Record(store.Update{
		Type:      store.UpdateExecutionCompleted,
		Source:    "api",
		Directory: dir,
		UserID:    id.UserID,
		SessionID: res.SessionID,
		Detail:    res.ExecutionTime.String(),
	})
	s.writeJSON(w, http.StatusOK, res)
}

// handleGetSessions returns all running executions as JSON.
func (s *Server) handleGetSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.executor.ActiveSessions())
}

// handleKillSession stops one of the caller's running executions.
func (s *Server) handleKillSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.auth.Identify(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sessionID := r.PathValue("id")
	var target *executor.SessionInfo
	for _, info := range s.executor.ActiveSessions() {
		if info.SessionID == sessionID {
			info := info
			target = &info
			break
		}
	}
	if target == nil {
		s.writeError(w, errors.SessionNotFound(sessionID))
		return
	}
	if target.UserID != id.UserID {
		s.writeError(w, errors.New(errors.ErrCodeForbidden, "session belongs to another user").
			WithDetail("sessionId", sessionID))
		return
	}

	if !s.executor.KillSession(sessionID) {
		s.writeError(w, errors.SessionNotFound(sessionID))
		return
	}

	s.store.Record(store.Update{
		Type:      store.UpdateSessionKilled,
		Source:    "api",
		Directory: target.Directory,
		UserID:    id.UserID,
		SessionID: sessionID,
	})
	s.writeJSON(w, http.StatusOK, map[string]any{"killed": true, "sessionId": sessionID})
}

// handlePostMessage persists a chat message and relays it to the room.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var body messageRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.authorize(r, body.WorkingDirectory)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		s.writeError(w, errors.Validation("message must be a non-empty string"))
		return
	}
	if len(body.Message) > maxMessageBytes {
		s.writeError(w, errors.Validation(fmt.Sprintf("message too long: %d bytes (max %d)", len(body.Message), maxMessageBytes)).
			WithDetail("length", len(body.Message)))
		return
	}

	msg := rooms.Message{
		ID:        uuid.NewString(),
		UserID:    id.UserID,
		SessionID: id.SessionID,
		Content:   body.Message,
		CreatedAt: time.Now(),
	}

	if s.chat != nil {
		if err := s.chat.Append(r.Context(), body.WorkingDirectory, msg); err != nil {
			s.writeError(w, errors.Wrap(err, errors.ErrCodeInternal, "failed to save message"))
			return
		}
	}

	s.rooms.BroadcastNewMessage(body.WorkingDirectory, msg, id.SessionID)
	s.store.Record(store.Update{
		Type:      store.UpdateMessage,
		Source:    "api",
		Directory: body.WorkingDirectory,
		UserID:    id.UserID,
	})
	s.writeJSON(w, http.StatusCreated, msg)
}

// handleClearContext resets the directory's context file.
func (s *Server) handleClearContext(w http.ResponseWriter, r *http.Request) {
	var body clearRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.authorize(r, body.WorkingDirectory)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.executor.Execute(r.Context(), executor.Request{
		UserID:           id.UserID,
		WorkingDirectory: body.WorkingDirectory,
		Prompt:           executor.ClearCommand,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.clearChat(r, body.WorkingDirectory, id)
	s.writeJSON(w, http.StatusOK, res)
}

// clearChat drops the transcript and tells the room its chat was cleared.
// A transcript that cannot be removed does not fail the request.
func (s *Server) clearChat(r *http.Request, dir string, id Identity) {
	if s.chat != nil {
		if err := s.chat.Clear(r.Context(), dir); err != nil {
			s.logger.WithError(err).WithField("directory", dir).Warn("Failed to clear transcript")
		}
	}
	s.rooms.BroadcastChatCleared(dir, id.SessionID)
	s.store.Record(store.Update{
		Type:      store.UpdateContextCleared,
		Source:    "api",
		Directory: dir,
		UserID:    id.UserID,
	})
}

// handleGetMessages returns a directory's recent chat messages.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if _, err := s.authorize(r, dir); err != nil {
		s.writeError(w, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, errors.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	if s.chat == nil {
		s.writeJSON(w, http.StatusOK, []rooms.Message{})
		return
	}
	msgs, err := s.chat.History(r.Context(), dir, limit)
	if err != nil {
		s.writeError(w, errors.Wrap(err, errors.ErrCodeInternal, "failed to read messages"))
		return
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

// handleGetRooms returns one directory's room, or every room without ?dir.
func (s *Server) handleGetRooms(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		s.writeJSON(w, http.StatusOK, s.rooms.Statistics().Rooms)
		return
	}
	s.writeJSON(w, http.StatusOK, s.rooms.RoomStatus(dir))
}

// handleGetStats returns room statistics and execution counts.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	started := s.runningConfig.StartedAt
	s.writeJSON(w, http.StatusOK, statsResponse{
		Statistics:       s.rooms.Statistics(),
		ActiveExecutions: s.executor.ActiveCount(),
		Activity:         s.store.Get().Counts,
		StartedAt:        started,
		Uptime:           time.Since(started).Round(time.Second).String(),
	})
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	opts := s.executor.Options()
	contexts := s.executor.Contexts()
	s.writeJSON(w, http.StatusOK, liveConfig{
		RunningConfig:     s.runningConfig,
		Tool:              opts.Tool,
		Args:              opts.Args,
		Timeout:           opts.Timeout.String(),
		KillGrace:         opts.KillGrace.String(),
		RequestsPerWindow: opts.RequestsPerWindow,
		Window:            opts.Window.String(),
		MaxPromptLength:   opts.MaxPromptLength,
		ContextFile:       contexts.FileName(),
		ContextMaxLines:   contexts.MaxLines(),
	})
}

// handleStream provides Server-Sent Events (SSE) for real-time activity updates.
// Clients receive the recent backlog first, then every new update.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Ensure the connection supports flushing
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	backlog, ch := s.store.SubscribeWithBacklog(streamBacklog)
	defer s.store.Unsubscribe(ch)

	// Send initial ping to confirm connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	s.logger.Debug("SSE client connected")

	for _, update := range backlog {
		s.writeEvent(w, update)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			s.writeEvent(w, update)
			flusher.Flush()
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, update store.Update) {
	data, err := json.Marshal(update)
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal update")
		return
	}
	// SSE format: "data: {json}\n\n"
	fmt.Fprintf(w, "data: %s\n\n", data)
}
