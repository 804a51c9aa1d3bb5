package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/cowork/internal/rooms"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 64 << 10
	sendBuffer    = 64
)

// Client frame types.
const (
	FrameJoinDirectory  = "join-directory"
	FrameLeaveDirectory = "leave-directory"
	FrameTypingStart    = "typing-start"
	FrameTypingStop     = "typing-stop"
)

// Server frame types sent only to the socket they concern.
const (
	FrameConnected = "connected"
	FrameJoined    = "joined-directory"
	FrameLeft      = "left-directory"
	FrameError     = "error"
)

var (
	errSocketClosed = stderrors.New("socket closed")
	errSendBlocked  = stderrors.New("send buffer full")
)

// frame is the {type, data} envelope used in both directions.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// wsSocket adapts a websocket connection to rooms.Socket. Only the write
// pump writes to conn; Emit only enqueues.
type wsSocket struct {
	id       string
	identity Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func newWSSocket(id Identity, conn *websocket.Conn) *wsSocket {
	return &wsSocket{
		id:       uuid.NewString(),
		identity: id,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

// ID implements rooms.Socket.
func (c *wsSocket) ID() string {
	return c.id
}

// Emit implements rooms.Socket. A saturated socket drops the frame.
func (c *wsSocket) Emit(event string, payload any) error {
	data, err := json.Marshal(outFrame{Type: event, Data: payload})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errSocketClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errSocketClosed
	default:
		return errSendBlocked
	}
}

func (c *wsSocket) close() {
	c.once.Do(func() { close(c.done) })
}

// handleWebSocket upgrades the connection and serves room frames until the
// client goes away or the server shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, err := s.auth.Identify(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	sock := newWSSocket(id, conn)
	s.trackSocket(sock)
	log := s.logger.WithFields(logrus.Fields{
		"socket_id":  sock.id,
		"user_id":    id.UserID,
		"session_id": id.SessionID,
	})
	log.Debug("Websocket connected")

	go s.writePump(sock, log)
	_ = sock.Emit(FrameConnected, map[string]string{
		"socketId":  sock.id,
		"userId":    id.UserID,
		"sessionId": id.SessionID,
	})
	s.readPump(sock, log)
}

func (s *Server) readPump(sock *wsSocket, log *logrus.Entry) {
	defer func() {
		s.rooms.Disconnect(sock)
		sock.close()
		_ = sock.conn.Close()
		s.untrackSocket(sock)
		log.Debug("Websocket disconnected")
	}()

	sock.conn.SetReadLimit(maxFrameBytes)
	_ = sock.conn.SetReadDeadline(time.Now().Add(pongWait))
	sock.conn.SetPongHandler(func(string) error {
		return sock.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := sock.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("Websocket read failed")
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			_ = sock.Emit(FrameError, map[string]string{"message": "invalid frame"})
			continue
		}
		s.dispatch(sock, f, log)
	}
}

func (s *Server) writePump(sock *wsSocket, log *logrus.Entry) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sock.conn.Close()
	}()

	for {
		select {
		case data := <-sock.send:
			_ = sock.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sock.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithError(err).Debug("Websocket write failed")
				sock.close()
				return
			}
		case <-ticker.C:
			_ = sock.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sock.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sock.close()
				return
			}
		case <-sock.done:
			_ = sock.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) dispatch(sock *wsSocket, f frame, log *logrus.Entry) {
	switch f.Type {
	case FrameJoinDirectory:
		var req rooms.JoinRequest
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &req); err != nil {
				_ = sock.Emit(FrameError, map[string]string{"message": "invalid join request"})
				return
			}
		}
		if req.SessionID == "" {
			req.SessionID = sock.identity.SessionID
		}
		if req.DirectoryPath != "" && !s.policy.Allowed(req.DirectoryPath) {
			log.WithField("directory", req.DirectoryPath).Warn("Rejected join to disallowed directory")
			_ = sock.Emit(FrameError, map[string]string{"message": "directory not allowed"})
			return
		}
		s.rooms.Join(sock, req)
		if conn, ok := s.rooms.Connection(sock.ID()); ok {
			_ = sock.Emit(FrameJoined, s.rooms.RoomStatus(conn.Directory))
		}

	case FrameLeaveDirectory:
		s.rooms.Leave(sock)
		_ = sock.Emit(FrameLeft, struct{}{})

	case FrameTypingStart:
		s.rooms.HandleTypingStart(sock)

	case FrameTypingStop:
		s.rooms.HandleTypingStop(sock)

	default:
		_ = sock.Emit(FrameError, map[string]string{"message": "unknown frame type: " + f.Type})
	}
}
