package ws

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Hub owns all connection membership state. A single Run goroutine
// multiplexes attach/detach, room joins and fan-out, so the membership
// tables need no locks; everything is lost on restart by design.
type Hub struct {
	logger *zap.SugaredLogger

	attach chan *Client
	detach chan *Client
	join   chan joinRequest
	direct chan directCast
	room   chan roomCast
	global chan []byte

	// connected clients and per-room membership, touched only by Run
	clients  map[*Client]struct{}
	rooms    map[string]map[*Client]struct{}
	memberOf map[*Client]string
}

type joinRequest struct {
	client *Client
	roomID string
}

type directCast struct {
	client *Client
	data   []byte
}

type roomCast struct {
	roomID string
	data   []byte
	except *Client
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		logger:   logger,
		attach:   make(chan *Client),
		detach:   make(chan *Client),
		join:     make(chan joinRequest),
		direct:   make(chan directCast),
		room:     make(chan roomCast),
		global:   make(chan []byte),
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		memberOf: make(map[*Client]string),
	}
}

// Run processes hub events until the process exits
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.attach:
			h.clients[c] = struct{}{}
			h.logger.Debugf("Connection attached, %d total", len(h.clients))

		case c := <-h.detach:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Debugf("Connection detached, %d total", len(h.clients))
			}

		case req := <-h.join:
			if _, ok := h.clients[req.client]; !ok {
				continue
			}
			// a connection is a member of at most one room
			h.leaveRoom(req.client)
			if h.rooms[req.roomID] == nil {
				h.rooms[req.roomID] = make(map[*Client]struct{})
			}
			h.rooms[req.roomID][req.client] = struct{}{}
			h.memberOf[req.client] = req.roomID
			h.logger.Debugf("Connection joined room %s, %d members", req.roomID, len(h.rooms[req.roomID]))

		case dc := <-h.direct:
			if _, ok := h.clients[dc.client]; ok {
				h.deliver(dc.client, dc.data)
			}

		case rc := <-h.room:
			for c := range h.rooms[rc.roomID] {
				if c == rc.except {
					continue
				}
				h.deliver(c, rc.data)
			}

		case data := <-h.global:
			for c := range h.clients {
				h.deliver(c, data)
			}
		}
	}
}

// deliver queues data on the client's send channel, dropping the client
// when its buffer is full
func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warnf("Connection send buffer full, dropping client")
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	h.leaveRoom(c)
	close(c.send)
}

func (h *Hub) leaveRoom(c *Client) {
	roomID, ok := h.memberOf[c]
	if !ok {
		return
	}
	delete(h.memberOf, c)
	delete(h.rooms[roomID], c)
	if len(h.rooms[roomID]) == 0 {
		delete(h.rooms, roomID)
	}
}

// Attach registers a freshly upgraded connection
func (h *Hub) Attach(c *Client) { h.attach <- c }

// Detach removes a connection and its room membership immediately
func (h *Hub) Detach(c *Client) { h.detach <- c }

// Join moves the connection into roomID, replacing any prior membership
func (h *Hub) Join(c *Client, roomID string) {
	h.join <- joinRequest{client: c, roomID: roomID}
}

func (h *Hub) sendDirect(c *Client, data []byte) {
	h.direct <- directCast{client: c, data: data}
}

// BroadcastRoom fans data out to every member of roomID; except (when
// non-nil) is skipped
func (h *Hub) BroadcastRoom(roomID string, data []byte, except *Client) {
	h.room <- roomCast{roomID: roomID, data: data, except: except}
}

// BroadcastLikeUpdate fans a like toggle out to every connected
// session, not just the message's room. The origin room is not tracked
// at broadcast time; the REST toggle endpoint calls this directly.
func (h *Hub) BroadcastLikeUpdate(messageID string, likeCount int, liked bool) {
	data, err := json.Marshal(likeUpdateEvent{
		Type:      "like-update",
		MessageID: messageID,
		LikeCount: likeCount,
		Liked:     liked,
	})
	if err != nil {
		h.logger.Errorf("marshaling like-update event: %v", err)
		return
	}
	h.global <- data
}
