package server

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"fastt-chat-server/internal/pagination"
	"fastt-chat-server/internal/storage"
	"fastt-chat-server/internal/ws"
)

type parsers struct {
	createRoomPool fastjson.ParserPool
	renameRoomPool fastjson.ParserPool
	likePool       fastjson.ParserPool
	likeCountsPool fastjson.ParserPool
	userLikesPool  fastjson.ParserPool
	nicknamePool   fastjson.ParserPool
}

type handler struct {
	logger    *zap.SugaredLogger
	store     *storage.Store
	hub       *ws.Hub
	engine    *pagination.Engine
	parsers   parsers
	uploadDir string
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// health handles HTTP requests on "/health" endpoint
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
