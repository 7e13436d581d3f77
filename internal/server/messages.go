package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/valyala/fastjson"

	"fastt-chat-server/internal/pagination"
	"fastt-chat-server/internal/storage"
)

// recentMessages handles HTTP requests on "GET /api/rooms/{roomId}/messages"
func (h *handler) recentMessages(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	limit, err := optionalIntQuery(r, "limit")
	if err != nil {
		http.Error(w, "Query parameter \"limit\" must be an integer", http.StatusBadRequest)
		return
	}

	messages, err := h.engine.Recent(r.Context(), roomID, limit)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if messages == nil {
		messages = []storage.Message{}
	}
	h.writeJSON(w, http.StatusOK, messages)
}

// olderMessages handles HTTP requests on "GET /api/rooms/{roomId}/messages/older".
// The before cursor is mandatory; a missing cursor is a client bug and
// answering it with the newest page would duplicate the initial window.
func (h *handler) olderMessages(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	rawBefore := r.URL.Query().Get("before")
	if rawBefore == "" {
		http.Error(w, "Query parameter \"before\" is required", http.StatusBadRequest)
		return
	}
	before, err := parseCursor(rawBefore)
	if err != nil {
		http.Error(w, "Query parameter \"before\" must be an RFC 3339 timestamp or unix milliseconds", http.StatusBadRequest)
		return
	}

	limit, err := optionalIntQuery(r, "limit")
	if err != nil {
		http.Error(w, "Query parameter \"limit\" must be an integer", http.StatusBadRequest)
		return
	}

	messages, err := h.engine.Older(r.Context(), roomID, before, limit)
	if err != nil {
		if errors.Is(err, pagination.ErrFetchInFlight) {
			http.Error(w, "An older-messages fetch for this room is already in flight", http.StatusTooManyRequests)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if messages == nil {
		messages = []storage.Message{}
	}
	h.writeJSON(w, http.StatusOK, messages)
}

// messageContext handles HTTP requests on "GET /api/messages/{messageId}"
func (h *handler) messageContext(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["messageId"]

	before, err := optionalIntQuery(r, "before")
	if err != nil {
		http.Error(w, "Query parameter \"before\" must be an integer", http.StatusBadRequest)
		return
	}
	after, err := optionalIntQuery(r, "after")
	if err != nil {
		http.Error(w, "Query parameter \"after\" must be an integer", http.StatusBadRequest)
		return
	}

	window, err := h.engine.Around(r.Context(), messageID, before, after)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotExist) {
			http.Error(w, "Message does not exist", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, window)
}

// toggleLike handles HTTP requests on "POST /api/messages/{messageId}/like".
// The resulting count is broadcast to every connected client.
func (h *handler) toggleLike(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["messageId"]

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.likePool.Get()
	defer h.parsers.likePool.Put(parser)
	v, _ := parser.ParseBytes(body)

	if !v.Exists("userId") {
		http.Error(w, "Missing Field \"userId\"", http.StatusBadRequest)
		return
	}
	userID := v.GetInt64("userId")
	if userID < 1 {
		http.Error(w, "Field \"userId\" must be a valid user id greater than zero", http.StatusBadRequest)
		return
	}

	liked, count, err := h.store.ToggleLike(r.Context(), messageID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotExist) {
			http.Error(w, "Message does not exist", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.hub.BroadcastLikeUpdate(messageID, count, liked)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"liked":     liked,
		"likeCount": count,
	})
}

// likeCounts handles HTTP requests on "POST /api/messages/likes"
func (h *handler) likeCounts(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.likeCountsPool.Get()
	defer h.parsers.likeCountsPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	messageIDs, err := stringArrayField(v, "messageIds")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	counts, err := h.store.LikeCounts(r.Context(), messageIDs)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, counts)
}

// userLikes handles HTTP requests on "POST /api/messages/user-likes"
func (h *handler) userLikes(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.userLikesPool.Get()
	defer h.parsers.userLikesPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	messageIDs, err := stringArrayField(v, "messageIds")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID := v.GetInt64("userId")
	if userID < 1 {
		http.Error(w, "Field \"userId\" must be a valid user id greater than zero", http.StatusBadRequest)
		return
	}

	liked, err := h.store.UserLikedMessages(r.Context(), messageIDs, userID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if liked == nil {
		liked = []string{}
	}
	h.writeJSON(w, http.StatusOK, liked)
}

func optionalIntQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// parseCursor accepts the timestamp formats clients echo back: the
// RFC 3339 form messages are serialized with, or unix milliseconds.
func parseCursor(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

func stringArrayField(v *fastjson.Value, name string) ([]string, error) {
	if v == nil || !v.Exists(name) {
		return nil, errors.New("Missing Field \"" + name + "\"")
	}
	values, err := v.Get(name).Array()
	if err != nil {
		return nil, errors.New("Field \"" + name + "\" must be an array")
	}

	out := make([]string, 0, len(values))
	for _, item := range values {
		s, err := item.StringBytes()
		if err != nil {
			return nil, errors.New("Each item in \"" + name + "\" array field must be a string")
		}
		out = append(out, string(s))
	}
	return out, nil
}
