package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/valyala/fastjson"

	"fastt-chat-server/internal/storage"
)

// getUser handles HTTP requests on "GET /api/users/{userId}"
func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["userId"], 10, 64)
	if err != nil || userID < 1 {
		http.Error(w, "Path parameter \"userId\" must be a valid user id greater than zero", http.StatusBadRequest)
		return
	}

	user, err := h.store.UserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User does not exist", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, user)
}

// updateNickname handles HTTP requests on "POST /api/users/{userId}/nickname".
// An empty nickname clears it, falling back to the derived display
// name.
func (h *handler) updateNickname(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["userId"], 10, 64)
	if err != nil || userID < 1 {
		http.Error(w, "Path parameter \"userId\" must be a valid user id greater than zero", http.StatusBadRequest)
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.nicknamePool.Get()
	defer h.parsers.nicknamePool.Put(parser)
	v, _ := parser.ParseBytes(body)

	if v == nil || !v.Exists("nickname") {
		http.Error(w, "Missing Field \"nickname\"", http.StatusBadRequest)
		return
	}
	nicknameValue := v.Get("nickname")
	if nicknameValue.Type() != fastjson.TypeString {
		http.Error(w, "Field \"nickname\" must be a string", http.StatusBadRequest)
		return
	}
	nickname := string(nicknameValue.GetStringBytes())

	if err := h.store.UpdateNickname(r.Context(), userID, nickname); err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User does not exist", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	user, err := h.store.UserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, user)
}
