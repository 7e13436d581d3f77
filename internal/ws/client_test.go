package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fastt-chat-server/internal/pagination"
	"fastt-chat-server/internal/storage"
)

type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]storage.User
	rooms    map[string]storage.Room
	messages map[string][]storage.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:   1,
		users:    make(map[int64]storage.User),
		rooms:    make(map[string]storage.Room),
		messages: make(map[string][]storage.Message),
	}
}

func (s *fakeStore) addRoom(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[slug] = storage.Room{Slug: slug, Title: slug}
}

func (s *fakeStore) GetOrCreateUser(_ context.Context, id int64) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	u := storage.User{ID: id}
	s.users[id] = u
	return u, nil
}

func (s *fakeStore) CreateUser(_ context.Context) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := storage.User{ID: s.nextID}
	s.nextID++
	s.users[u.ID] = u
	return u, nil
}

func (s *fakeStore) UserByID(_ context.Context, id int64) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.User{}, storage.ErrUserNotExist
	}
	return u, nil
}

func (s *fakeStore) RoomBySlug(_ context.Context, slug string) (storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[slug]
	if !ok {
		return storage.Room{}, storage.ErrRoomNotExist
	}
	return r, nil
}

func (s *fakeStore) SaveMessage(_ context.Context, m storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.RoomID] = append(s.messages[m.RoomID], m)
	return nil
}

func (s *fakeStore) savedCount(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[roomID])
}

func (s *fakeStore) RecentMessages(_ context.Context, roomID string, limit int) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[roomID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]storage.Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *fakeStore) OlderMessages(_ context.Context, roomID string, before time.Time, limit int) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Message
	for _, m := range s.messages[roomID] {
		if m.Timestamp.Before(before) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) MessagesAround(_ context.Context, id string, before, after int) ([]storage.Message, error) {
	return nil, storage.ErrMessageNotExist
}

func (s *fakeStore) LikeCounts(_ context.Context, messageIDs []string) (map[string]int, error) {
	return map[string]int{}, nil
}

func newTestServer(t *testing.T, store *fakeStore) (*httptest.Server, *Hub) {
	t.Helper()

	logger := zap.NewNop().Sugar()
	hub := NewHub(logger)
	go hub.Run()

	engine := pagination.New(logger, store)
	srv := httptest.NewServer(NewHandler(logger, hub, store, engine))
	t.Cleanup(srv.Close)

	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func identify(t *testing.T, conn *websocket.Conn, userID int64) int64 {
	t.Helper()

	payload := map[string]interface{}{"type": "identify"}
	if userID > 0 {
		payload["userId"] = userID
	}
	send(t, conn, payload)

	event := readEvent(t, conn)
	require.Equal(t, "identified", event["type"])
	return int64(event["userId"].(float64))
}

func joinRoom(t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()

	send(t, conn, map[string]interface{}{"type": "join-room", "roomId": roomID})
	event := readEvent(t, conn)
	require.Equal(t, "recent-messages", event["type"])
}

func TestIdentifyFreshUser(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, newFakeStore())
	conn := dial(t, srv)

	id := identify(t, conn, 0)
	require.Greater(t, id, int64(0))
}

func TestIdentifyClaimedID(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, newFakeStore())
	conn := dial(t, srv)

	id := identify(t, conn, 4242)
	require.Equal(t, int64(4242), id)
}

func TestJoinUnknownRoom(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, newFakeStore())
	conn := dial(t, srv)
	identify(t, conn, 1)

	send(t, conn, map[string]interface{}{"type": "join-room", "roomId": "deadbeef"})

	event := readEvent(t, conn)
	require.Equal(t, "room-not-found", event["type"])
	require.Equal(t, "deadbeef", event["roomId"])
}

func TestMessageBroadcastToRoom(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRoom("abcd1234")
	srv, _ := newTestServer(t, store)

	alice := dial(t, srv)
	bob := dial(t, srv)
	identify(t, alice, 100)
	identify(t, bob, 200)
	joinRoom(t, alice, "abcd1234")
	joinRoom(t, bob, "abcd1234")

	send(t, alice, map[string]interface{}{"type": "message", "text": "hello"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		event := readEvent(t, conn)
		require.Equal(t, "new-message", event["type"])

		message := event["message"].(map[string]interface{})
		require.Equal(t, "hello", message["text"])
		require.Equal(t, float64(100), message["userId"])
		require.Equal(t, "User 100", message["username"])
		require.NotEmpty(t, message["id"])
	}
	require.Equal(t, 1, store.savedCount("abcd1234"))
}

func TestMessageRequiresIdentify(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRoom("abcd1234")
	srv, _ := newTestServer(t, store)
	conn := dial(t, srv)

	send(t, conn, map[string]interface{}{"type": "message", "text": "hello"})

	event := readEvent(t, conn)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "Must identify first", event["message"])
	require.Zero(t, store.savedCount("abcd1234"))
}

func TestMessageRequiresRoom(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	srv, _ := newTestServer(t, store)
	conn := dial(t, srv)
	identify(t, conn, 1)

	send(t, conn, map[string]interface{}{"type": "message", "text": "hello"})

	event := readEvent(t, conn)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "Must join a room first", event["message"])
}

func TestTypingExcludesSender(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRoom("abcd1234")
	srv, _ := newTestServer(t, store)

	alice := dial(t, srv)
	bob := dial(t, srv)
	identify(t, alice, 100)
	identify(t, bob, 200)
	joinRoom(t, alice, "abcd1234")
	joinRoom(t, bob, "abcd1234")

	send(t, alice, map[string]interface{}{"type": "typing"})

	event := readEvent(t, bob)
	require.Equal(t, "user-typing", event["type"])
	require.Equal(t, float64(100), event["userId"])

	send(t, alice, map[string]interface{}{"type": "stop-typing"})

	event = readEvent(t, bob)
	require.Equal(t, "user-stopped-typing", event["type"])

	// the sender must not have received either typing event
	alice.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := alice.ReadMessage()
	require.Error(t, err)
}

func TestJoinDeliversRecentWindow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRoom("abcd1234")
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveMessage(context.Background(), storage.Message{
			ID:        storage.NewMessageID(),
			RoomID:    "abcd1234",
			UserID:    1,
			Text:      "earlier",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	srv, _ := newTestServer(t, store)

	conn := dial(t, srv)
	identify(t, conn, 1)

	send(t, conn, map[string]interface{}{"type": "join-room", "roomId": "abcd1234"})

	event := readEvent(t, conn)
	require.Equal(t, "recent-messages", event["type"])
	require.Len(t, event["messages"], 3)
}

func TestLeavingRoomOnRejoin(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRoom("roomone1")
	store.addRoom("roomtwo2")
	srv, _ := newTestServer(t, store)

	alice := dial(t, srv)
	bob := dial(t, srv)
	identify(t, alice, 100)
	identify(t, bob, 200)
	joinRoom(t, alice, "roomone1")
	joinRoom(t, bob, "roomone1")
	joinRoom(t, bob, "roomtwo2")

	send(t, alice, map[string]interface{}{"type": "message", "text": "ping"})

	// alice still receives her own broadcast
	event := readEvent(t, alice)
	require.Equal(t, "new-message", event["type"])

	// bob moved to another room and must not see it
	bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := bob.ReadMessage()
	require.Error(t, err)
}

func TestLikeUpdateReachesEveryConnection(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRoom("roomone1")
	store.addRoom("roomtwo2")
	srv, hub := newTestServer(t, store)

	// like updates are unscoped: room membership, or the lack of it,
	// must not matter
	alice := dial(t, srv)
	bob := dial(t, srv)
	carol := dial(t, srv)
	identify(t, alice, 100)
	identify(t, bob, 200)
	identify(t, carol, 300)
	joinRoom(t, alice, "roomone1")
	joinRoom(t, bob, "roomtwo2")

	hub.BroadcastLikeUpdate("m1", 3, true)

	for _, conn := range []*websocket.Conn{alice, bob, carol} {
		event := readEvent(t, conn)
		require.Equal(t, "like-update", event["type"])
		require.Equal(t, "m1", event["messageId"])
		require.Equal(t, float64(3), event["likeCount"])
		require.Equal(t, true, event["liked"])
	}
}

func TestMalformedFrame(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, newFakeStore())
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	event := readEvent(t, conn)
	require.Equal(t, "error", event["type"])
}

func TestUnknownEventType(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, newFakeStore())
	conn := dial(t, srv)

	send(t, conn, map[string]interface{}{"type": "bogus"})

	event := readEvent(t, conn)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "Unknown event type", event["message"])
}
