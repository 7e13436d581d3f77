package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"fastt-chat-server/internal/pagination"
	"fastt-chat-server/internal/storage"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Store is the persistence surface a connection needs
type Store interface {
	GetOrCreateUser(ctx context.Context, id int64) (storage.User, error)
	CreateUser(ctx context.Context) (storage.User, error)
	UserByID(ctx context.Context, id int64) (storage.User, error)
	RoomBySlug(ctx context.Context, slug string) (storage.Room, error)
	SaveMessage(ctx context.Context, m storage.Message) error
}

// Client binds one websocket connection to at most one user identity
// and one room. State transitions: connected, identified, joined; the
// fields below are touched only from the connection's readPump.
type Client struct {
	hub    *Hub
	logger *zap.SugaredLogger
	store  Store
	engine *pagination.Engine
	conn   *websocket.Conn
	send   chan []byte
	parser fastjson.Parser

	userID     int64
	identified bool
	roomID     string
}

// push marshals an event and queues it for this connection only
func (c *Client) push(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Errorf("marshaling event: %v", err)
		return
	}
	c.hub.sendDirect(c, data)
}

// readPump consumes frames from the peer until the connection drops,
// then detaches from the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.Detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warnf("reading websocket frame: %v", err)
			}
			return
		}

		v, err := c.parser.ParseBytes(frame)
		if err != nil {
			c.push(errEvent("Malformed JSON"))
			continue
		}

		switch string(v.GetStringBytes("type")) {
		case evIdentify:
			c.handleIdentify(v)
		case evJoinRoom:
			c.handleJoinRoom(v)
		case evMessage:
			c.handleMessage(v)
		case evTyping:
			c.handleTyping(userTyping)
		case evStopTyping:
			c.handleTyping(userStoppedTyping)
		default:
			c.push(errEvent("Unknown event type"))
		}
	}
}

// handleIdentify resolves a claimed user id or allocates a fresh one
// and reports the canonical identity back
func (c *Client) handleIdentify(v *fastjson.Value) {
	ctx := context.Background()

	var (
		user storage.User
		err  error
	)
	if claimed := v.GetInt64("userId"); claimed > 0 {
		user, err = c.store.GetOrCreateUser(ctx, claimed)
	} else {
		user, err = c.store.CreateUser(ctx)
	}
	if err != nil {
		c.logger.Errorf("identifying user: %v", err)
		c.push(errEvent("Failed to identify user"))
		return
	}

	c.userID = user.ID
	c.identified = true
	c.push(identified(user))
}

// handleJoinRoom validates room existence, moves the connection into
// the room's fan-out set and pushes the initial window to this
// connection only. Rooms are never created here.
func (c *Client) handleJoinRoom(v *fastjson.Value) {
	if !c.identified {
		c.push(errEvent("Must identify first"))
		return
	}

	roomID := string(v.GetStringBytes("roomId"))
	if roomID == "" {
		c.push(errEvent("Room ID is required"))
		return
	}

	ctx := context.Background()
	if _, err := c.store.RoomBySlug(ctx, roomID); err != nil {
		if errors.Is(err, storage.ErrRoomNotExist) {
			c.push(roomNotFound(roomID))
			return
		}
		c.logger.Errorf("looking up room %s: %v", roomID, err)
		c.push(errEvent("Failed to join room"))
		return
	}

	c.hub.Join(c, roomID)
	c.roomID = roomID

	messages, err := c.engine.Recent(ctx, roomID, pagination.InitialLimit)
	if err != nil {
		c.logger.Errorf("loading recent messages for room %s: %v", roomID, err)
		c.push(errEvent("Failed to load messages"))
		return
	}
	c.push(recentMessages(messages))
}

// handleMessage persists the message, then fans the enriched copy out
// to the whole room, the sender included. Persist happens-before
// broadcast.
func (c *Client) handleMessage(v *fastjson.Value) {
	if !c.identified {
		c.push(errEvent("Must identify first"))
		return
	}
	if c.roomID == "" {
		c.push(errEvent("Must join a room first"))
		return
	}

	ctx := context.Background()
	m := storage.Message{
		ID:        storage.NewMessageID(),
		RoomID:    c.roomID,
		UserID:    c.userID,
		Text:      string(v.GetStringBytes("text")),
		ImageURL:  string(v.GetStringBytes("imageUrl")),
		Timestamp: time.Now().UTC(),
	}

	if err := c.store.SaveMessage(ctx, m); err != nil {
		c.logger.Errorf("saving message %s: %v", m.ID, err)
		c.push(errEvent("Failed to send message"))
		return
	}

	m.Username = c.displayName(ctx)

	data, err := json.Marshal(newMessage(m))
	if err != nil {
		c.logger.Errorf("marshaling new-message event: %v", err)
		return
	}
	c.hub.BroadcastRoom(c.roomID, data, nil)
}

// handleTyping fans the typing transition out room-wide, excluding the
// sender. No server-side timeout exists; the client owns stop-typing.
func (c *Client) handleTyping(event func(int64) typingEvent) {
	if !c.identified {
		c.push(errEvent("Must identify first"))
		return
	}
	if c.roomID == "" {
		c.push(errEvent("Must join a room first"))
		return
	}

	data, err := json.Marshal(event(c.userID))
	if err != nil {
		c.logger.Errorf("marshaling typing event: %v", err)
		return
	}
	c.hub.BroadcastRoom(c.roomID, data, c)
}

// displayName resolves the sender's nickname with a fallback name
// derived from the id
func (c *Client) displayName(ctx context.Context) string {
	user, err := c.store.UserByID(ctx, c.userID)
	if err == nil && user.Nickname != "" {
		return user.Nickname
	}
	return "User " + strconv.FormatInt(c.userID, 10)
}

// writePump drains the send channel to the peer and keeps the
// connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
