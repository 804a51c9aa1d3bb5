package rooms

import "time"

// Event names delivered to sockets.
const (
	EventNewMessage       = "new-message"
	EventChatCleared      = "chat-cleared"
	EventCommandStarted   = "command-started"
	EventCommandCompleted = "command-completed"
	EventTypingStart      = "user-typing-start"
	EventTypingStop       = "user-typing-stop"
)

// Message is a persisted chat message relayed to a room.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessagePayload is sent with EventNewMessage.
type NewMessagePayload struct {
	DirectoryPath string    `json:"directoryPath"`
	Message       Message   `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// ChatClearedPayload is sent with EventChatCleared.
type ChatClearedPayload struct {
	DirectoryPath string    `json:"directoryPath"`
	Timestamp     time.Time `json:"timestamp"`
}

// CommandStartedPayload is sent with EventCommandStarted.
type CommandStartedPayload struct {
	DirectoryPath string    `json:"directoryPath"`
	Command       string    `json:"command"`
	Timestamp     time.Time `json:"timestamp"`
}

// CommandCompletedPayload is sent with EventCommandCompleted.
type CommandCompletedPayload struct {
	DirectoryPath string    `json:"directoryPath"`
	Success       bool      `json:"success"`
	Timestamp     time.Time `json:"timestamp"`
}

// TypingPayload is sent with EventTypingStart and EventTypingStop.
type TypingPayload struct {
	DirectoryPath string    `json:"directoryPath"`
	SessionID     string    `json:"sessionId"`
	Timestamp     time.Time `json:"timestamp"`
}
