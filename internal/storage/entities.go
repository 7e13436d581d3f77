package storage

import "time"

type User struct {
	ID        int64     `json:"id"`
	Nickname  string    `json:"nickname,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Room struct {
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	IsPublic      bool      `json:"isPublic"`
	CreatorID     int64     `json:"creatorId,omitempty"`
}

// Message is a single room message. Username is the author's nickname
// joined at read time and is never persisted on the message row itself.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username,omitempty"`
	Text      string    `json:"text,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	LikeCount int       `json:"likeCount"`
}
