// Command mockchat seeds the database with a demo room holding enough
// messages to exercise older-page loading in a client.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"

	"fastt-chat-server/internal/storage"
)

const messageCount = 60

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	storageCfg := storage.Config{}
	if err := env.Parse(&storageCfg); err != nil {
		sugar.Fatalf("Cannot parse storage config: %v", err)
	}

	ctx := context.Background()
	store, err := storage.New(ctx, sugar, storageCfg, storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}
	defer store.Close()

	users := make([]storage.User, 3)
	for i := range users {
		users[i], err = store.CreateUser(ctx)
		if err != nil {
			sugar.Fatalf("Cannot create user: %v", err)
		}
	}
	sugar.Infof("Created users %d, %d, %d", users[0].ID, users[1].ID, users[2].ID)

	room, err := store.CreateRoom(ctx, storage.Room{
		Slug:      storage.NewRoomSlug(),
		Title:     "Test Chat - Pagination Demo",
		CreatedAt: time.Now().UTC(),
		IsPublic:  true,
		CreatorID: users[0].ID,
	})
	if err != nil {
		sugar.Fatalf("Cannot create room: %v", err)
	}
	sugar.Infof("Created room %s (%q)", room.Slug, room.Title)

	// spread timestamps over the last hour, oldest first
	now := time.Now().UTC()
	messages := make([]storage.Message, messageCount)
	for i := range messages {
		age := time.Duration(messageCount-i-1) * time.Hour / messageCount
		messages[i] = storage.Message{
			ID:        storage.NewMessageID(),
			RoomID:    room.Slug,
			UserID:    users[i%len(users)].ID,
			Text:      mockText(i),
			Timestamp: now.Add(-age),
		}
	}

	if err := store.BulkSaveMessages(ctx, room.Slug, messages); err != nil {
		sugar.Fatalf("Cannot save messages: %v", err)
	}

	sugar.Infof("Seeded %d messages into room %s", messageCount, room.Slug)
	sugar.Infof("Room URL: http://localhost:3000/%s", room.Slug)
}

func mockText(i int) string {
	switch n := i + 1; n {
	case 1:
		return "Welcome to the test chat!"
	case 30:
		return "Message 30 - this should be in the initial load"
	case 31:
		return "Message 31 - this should require scrolling up"
	case messageCount:
		return fmt.Sprintf("Message %d - final message!", n)
	default:
		return fmt.Sprintf("Message %d", n)
	}
}
