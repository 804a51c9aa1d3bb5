// Package rooms groups live client connections by working directory and fans
// state changes out to everyone watching the same directory.
//
// Broadcasting is best-effort. Emission errors and panics from a socket are
// logged and never reach the caller.
package rooms

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/cowork/util/sanitize"
)

// Socket is one live client connection.
type Socket interface {
	ID() string
	Emit(event string, payload any) error
}

// JoinRequest asks to move a socket into a directory's room.
type JoinRequest struct {
	SessionID     string `json:"sessionId"`
	DirectoryPath string `json:"directoryPath"`
}

// Connection records which room a socket is in.
type Connection struct {
	SocketID  string    `json:"socketId"`
	SessionID string    `json:"sessionId"`
	Directory string    `json:"directoryPath"`
	Room      string    `json:"room"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Member is one connection as reported by RoomStatus.
type Member struct {
	SocketID  string    `json:"socketId"`
	SessionID string    `json:"sessionId"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// RoomStatus is a snapshot of one directory's room.
type RoomStatus struct {
	Directory   string   `json:"directoryPath"`
	Room        string   `json:"room"`
	ActiveUsers int      `json:"activeUsers"`
	Users       []Member `json:"users"`
}

// Statistics is a snapshot of every room.
type Statistics struct {
	TotalConnections int          `json:"totalConnections"`
	ActiveRooms      int          `json:"activeRooms"`
	Rooms            []RoomStatus `json:"rooms"`
}

// Broadcaster owns socket membership. A socket is in at most one room.
type Broadcaster struct {
	mu          sync.RWMutex
	sockets     map[string]Socket
	connections map[string]*Connection
	// members is keyed by directory, not room token
	members map[string]map[string]struct{}

	logger *logrus.Entry
	now    func() time.Time
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster(logger *logrus.Entry) *Broadcaster {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Broadcaster{
		sockets:     make(map[string]Socket),
		connections: make(map[string]*Connection),
		members:     make(map[string]map[string]struct{}),
		logger:      logger,
		now:         time.Now,
	}
}

// Join moves the socket into the room for req.DirectoryPath, leaving its
// current room first. A request missing either field is logged and ignored.
func (b *Broadcaster) Join(s Socket, req JoinRequest) {
	if req.SessionID == "" || req.DirectoryPath == "" {
		b.logger.WithFields(logrus.Fields{
			"socket_id":  s.ID(),
			"session_id": req.SessionID,
			"directory":  req.DirectoryPath,
		}).Warn("Ignoring join without session or directory")
		return
	}

	b.mu.Lock()
	b.leaveLocked(s.ID())
	conn := &Connection{
		SocketID:  s.ID(),
		SessionID: req.SessionID,
		Directory: req.DirectoryPath,
		Room:      sanitize.ForRoomToken(req.DirectoryPath),
		JoinedAt:  b.now(),
	}
	b.sockets[s.ID()] = s
	b.connections[s.ID()] = conn
	set, ok := b.members[req.DirectoryPath]
	if !ok {
		set = make(map[string]struct{})
		b.members[req.DirectoryPath] = set
	}
	set[s.ID()] = struct{}{}
	size := len(set)
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{
		"socket_id":  s.ID(),
		"session_id": req.SessionID,
		"directory":  req.DirectoryPath,
		"room":       conn.Room,
		"members":    size,
	}).Debug("Socket joined room")
}

// Leave removes the socket from its room. A socket in no room is a no-op.
func (b *Broadcaster) Leave(s Socket) {
	b.mu.Lock()
	conn := b.leaveLocked(s.ID())
	b.mu.Unlock()

	if conn != nil {
		b.logger.WithFields(logrus.Fields{
			"socket_id": conn.SocketID,
			"directory": conn.Directory,
		}).Debug("Socket left room")
	}
}

// Disconnect is Leave for a closed transport.
func (b *Broadcaster) Disconnect(s Socket) {
	b.Leave(s)
}

// leaveLocked drops the socket's connection and deletes its room if it
// became empty. It returns the removed connection, if any.
func (b *Broadcaster) leaveLocked(socketID string) *Connection {
	conn, ok := b.connections[socketID]
	if !ok {
		return nil
	}
	delete(b.connections, socketID)
	delete(b.sockets, socketID)

	if set, ok := b.members[conn.Directory]; ok {
		delete(set, socketID)
		if len(set) == 0 {
			delete(b.members, conn.Directory)
		}
	}
	return conn
}

// Connection returns the socket's current connection.
func (b *Broadcaster) Connection(socketID string) (Connection, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	conn, ok := b.connections[socketID]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// BroadcastNewMessage relays a chat message to the directory's room.
func (b *Broadcaster) BroadcastNewMessage(dir string, msg Message, excludeSessionID string) {
	b.broadcast(dir, EventNewMessage, NewMessagePayload{
		DirectoryPath: dir,
		Message:       msg,
		Timestamp:     b.now(),
	}, excludeSessionID)
}

// BroadcastChatCleared tells the room its chat history was cleared.
func (b *Broadcaster) BroadcastChatCleared(dir string, excludeSessionID string) {
	b.broadcast(dir, EventChatCleared, ChatClearedPayload{
		DirectoryPath: dir,
		Timestamp:     b.now(),
	}, excludeSessionID)
}

// BroadcastCommandStarted tells the room a tool invocation began.
func (b *Broadcaster) BroadcastCommandStarted(dir, command string, excludeSessionID string) {
	b.broadcast(dir, EventCommandStarted, CommandStartedPayload{
		DirectoryPath: dir,
		Command:       command,
		Timestamp:     b.now(),
	}, excludeSessionID)
}

// BroadcastCommandCompleted tells the room a tool invocation finished.
func (b *Broadcaster) BroadcastCommandCompleted(dir string, success bool, excludeSessionID string) {
	b.broadcast(dir, EventCommandCompleted, CommandCompletedPayload{
		DirectoryPath: dir,
		Success:       success,
		Timestamp:     b.now(),
	}, excludeSessionID)
}

// HandleTypingStart relays a typing indicator to the rest of the socket's room.
func (b *Broadcaster) HandleTypingStart(s Socket) {
	b.relayTyping(s, EventTypingStart)
}

// HandleTypingStop clears a typing indicator for the rest of the socket's room.
func (b *Broadcaster) HandleTypingStop(s Socket) {
	b.relayTyping(s, EventTypingStop)
}

func (b *Broadcaster) relayTyping(s Socket, event string) {
	b.mu.RLock()
	conn, ok := b.connections[s.ID()]
	if !ok {
		b.mu.RUnlock()
		return
	}
	payload := TypingPayload{
		DirectoryPath: conn.Directory,
		SessionID:     conn.SessionID,
		Timestamp:     b.now(),
	}
	targets := b.targetsLocked(conn.Directory, func(c *Connection) bool {
		return c.SocketID != conn.SocketID
	})
	b.mu.RUnlock()

	b.emitAll(targets, event, payload, conn.Directory)
}

func (b *Broadcaster) broadcast(dir, event string, payload any, excludeSessionID string) {
	b.mu.RLock()
	targets := b.targetsLocked(dir, func(c *Connection) bool {
		return excludeSessionID == "" || c.SessionID != excludeSessionID
	})
	b.mu.RUnlock()

	b.emitAll(targets, event, payload, dir)
}

func (b *Broadcaster) targetsLocked(dir string, include func(*Connection) bool) []Socket {
	set := b.members[dir]
	targets := make([]Socket, 0, len(set))
	for id := range set {
		conn := b.connections[id]
		if conn == nil || !include(conn) {
			continue
		}
		if s, ok := b.sockets[id]; ok {
			targets = append(targets, s)
		}
	}
	return targets
}

func (b *Broadcaster) emitAll(targets []Socket, event string, payload any, dir string) {
	for _, s := range targets {
		if err := b.safeEmit(s, event, payload); err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"event":     event,
				"socket_id": s.ID(),
				"directory": dir,
			}).Warn("Failed to deliver room event")
		}
	}
}

func (b *Broadcaster) safeEmit(s Socket, event string, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("emit panicked: %v", r)
		}
	}()
	return s.Emit(event, payload)
}

// RoomStatus reports the members of dir's room. An unknown directory has
// zero users.
func (b *Broadcaster) RoomStatus(dir string) RoomStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.statusLocked(dir)
}

func (b *Broadcaster) statusLocked(dir string) RoomStatus {
	status := RoomStatus{
		Directory: dir,
		Room:      sanitize.ForRoomToken(dir),
		Users:     []Member{},
	}
	for id := range b.members[dir] {
		conn := b.connections[id]
		if conn == nil {
			continue
		}
		status.Users = append(status.Users, Member{
			SocketID:  conn.SocketID,
			SessionID: conn.SessionID,
			JoinedAt:  conn.JoinedAt,
		})
	}
	sort.Slice(status.Users, func(i, j int) bool {
		return status.Users[i].JoinedAt.Before(status.Users[j].JoinedAt)
	})
	status.ActiveUsers = len(status.Users)
	return status
}

// Statistics reports every room, sorted by directory.
func (b *Broadcaster) Statistics() Statistics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dirs := make([]string, 0, len(b.members))
	for dir := range b.members {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	stats := Statistics{
		TotalConnections: len(b.connections),
		ActiveRooms:      len(b.members),
		Rooms:            make([]RoomStatus, 0, len(dirs)),
	}
	for _, dir := range dirs {
		stats.Rooms = append(stats.Rooms, b.statusLocked(dir))
	}
	return stats
}
