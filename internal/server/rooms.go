package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/valyala/fastjson"

	"fastt-chat-server/internal/storage"
)

const (
	maxSlugAttempts  = 10
	defaultRoomLimit = 100
)

// createRoom handles HTTP requests on "POST /api/rooms".
// The body is optional; title, isPublic and userId are honored when
// present. The generated slug is retried on the off chance of a
// collision.
func (h *handler) createRoom(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	room := storage.Room{IsPublic: true}
	if len(body) > 0 {
		parser := h.parsers.createRoomPool.Get()
		defer h.parsers.createRoomPool.Put(parser)

		v, err := parser.ParseBytes(body)
		if err != nil {
			http.Error(w, "Malformed JSON", http.StatusBadRequest)
			return
		}

		if v.Exists("title") {
			titleValue := v.Get("title")
			if titleValue.Type() != fastjson.TypeString {
				http.Error(w, "Field \"title\" must be a string", http.StatusBadRequest)
				return
			}
			room.Title = string(titleValue.GetStringBytes())
		}
		if v.Exists("isPublic") {
			room.IsPublic = v.GetBool("isPublic")
		}
		if v.Exists("userId") {
			userID := v.GetInt64("userId")
			if userID < 1 {
				http.Error(w, "Field \"userId\" must be a valid user id greater than zero", http.StatusBadRequest)
				return
			}
			room.CreatorID = userID
		}
	}

	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		room.Slug = storage.NewRoomSlug()
		room.CreatedAt = time.Now().UTC()

		created, err := h.store.CreateRoom(r.Context(), room)
		if err != nil {
			if errors.Is(err, storage.ErrRoomExists) {
				continue
			}
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		h.writeJSON(w, http.StatusCreated, created)
		return
	}

	h.logger.Errorf("could not allocate a unique room slug after %d attempts", maxSlugAttempts)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// listRooms handles HTTP requests on "GET /api/rooms"
func (h *handler) listRooms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		rooms []storage.Room
		err   error
	)
	if raw := r.URL.Query().Get("userId"); raw != "" {
		userID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil || userID < 1 {
			http.Error(w, "Query parameter \"userId\" must be a valid user id greater than zero", http.StatusBadRequest)
			return
		}
		rooms, err = h.store.UserRooms(ctx, userID, defaultRoomLimit)
	} else {
		rooms, err = h.store.AllRooms(ctx, defaultRoomLimit)
	}
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if rooms == nil {
		rooms = []storage.Room{}
	}
	h.writeJSON(w, http.StatusOK, rooms)
}

// getRoom handles HTTP requests on "GET /api/rooms/{slug}"
func (h *handler) getRoom(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	room, err := h.store.RoomBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, storage.ErrRoomNotExist) {
			http.Error(w, "Room does not exist", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, room)
}

// renameRoom handles HTTP requests on "PUT /api/rooms/{slug}".
// Only the creator may rename.
func (h *handler) renameRoom(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.renameRoomPool.Get()
	defer h.parsers.renameRoomPool.Put(parser)

	v, err := parser.ParseBytes(body)
	if err != nil {
		http.Error(w, "Malformed JSON", http.StatusBadRequest)
		return
	}

	titleValue := v.Get("title")
	if titleValue == nil || titleValue.Type() != fastjson.TypeString {
		http.Error(w, "Field \"title\" must be a string", http.StatusBadRequest)
		return
	}
	title := string(titleValue.GetStringBytes())
	if len(title) == 0 {
		http.Error(w, "Field \"title\" must have non-zero length", http.StatusBadRequest)
		return
	}

	userID := v.GetInt64("userId")
	if userID < 1 {
		http.Error(w, "Field \"userId\" must be a valid user id greater than zero", http.StatusBadRequest)
		return
	}

	room, err := h.store.RoomBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, storage.ErrRoomNotExist) {
			http.Error(w, "Room does not exist", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if room.CreatorID == 0 || room.CreatorID != userID {
		http.Error(w, "Only the room creator may rename it", http.StatusForbidden)
		return
	}

	if err := h.store.RenameRoom(r.Context(), slug, title); err != nil {
		if errors.Is(err, storage.ErrRoomNotExist) {
			http.Error(w, "Room does not exist", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	room.Title = title
	h.writeJSON(w, http.StatusOK, room)
}

// deleteRoom handles HTTP requests on "DELETE /api/rooms/{slug}".
// Only the creator may delete; messages and likes go with the room.
func (h *handler) deleteRoom(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || userID < 1 {
		http.Error(w, "Query parameter \"userId\" must be a valid user id greater than zero", http.StatusBadRequest)
		return
	}

	room, err := h.store.RoomBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, storage.ErrRoomNotExist) {
			http.Error(w, "Room does not exist", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if room.CreatorID == 0 || room.CreatorID != userID {
		http.Error(w, "Only the room creator may delete it", http.StatusForbidden)
		return
	}

	if err := h.store.DeleteRoom(r.Context(), slug); err != nil {
		if errors.Is(err, storage.ErrRoomNotExist) {
			http.Error(w, "Room does not exist", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
