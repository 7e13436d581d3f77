package ws

import "fastt-chat-server/internal/storage"

// Incoming event types. Every frame is a JSON object with a "type"
// field plus the event payload.
const (
	evIdentify   = "identify"
	evJoinRoom   = "join-room"
	evMessage    = "message"
	evTyping     = "typing"
	evStopTyping = "stop-typing"
)

type identifiedEvent struct {
	Type     string `json:"type"`
	UserID   int64  `json:"userId"`
	Nickname string `json:"nickname,omitempty"`
}

func identified(u storage.User) identifiedEvent {
	return identifiedEvent{Type: "identified", UserID: u.ID, Nickname: u.Nickname}
}

type recentMessagesEvent struct {
	Type     string            `json:"type"`
	Messages []storage.Message `json:"messages"`
}

func recentMessages(messages []storage.Message) recentMessagesEvent {
	if messages == nil {
		messages = []storage.Message{}
	}
	return recentMessagesEvent{Type: "recent-messages", Messages: messages}
}

type newMessageEvent struct {
	Type    string          `json:"type"`
	Message storage.Message `json:"message"`
}

func newMessage(m storage.Message) newMessageEvent {
	return newMessageEvent{Type: "new-message", Message: m}
}

type likeUpdateEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	LikeCount int    `json:"likeCount"`
	Liked     bool   `json:"liked"`
}

type typingEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
}

func userTyping(userID int64) typingEvent {
	return typingEvent{Type: "user-typing", UserID: userID}
}

func userStoppedTyping(userID int64) typingEvent {
	return typingEvent{Type: "user-stopped-typing", UserID: userID}
}

type roomNotFoundEvent struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

func roomNotFound(roomID string) roomNotFoundEvent {
	return roomNotFoundEvent{Type: "room-not-found", RoomID: roomID, Message: "Room does not exist"}
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errEvent(message string) errorEvent {
	return errorEvent{Type: "error", Message: message}
}
