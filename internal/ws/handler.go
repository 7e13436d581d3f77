package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fastt-chat-server/internal/pagination"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to websocket connections and attaches
// them to the hub
type Handler struct {
	hub    *Hub
	logger *zap.SugaredLogger
	store  Store
	engine *pagination.Engine
}

func NewHandler(logger *zap.SugaredLogger, hub *Hub, store Store, engine *pagination.Engine) *Handler {
	return &Handler{hub: hub, logger: logger, store: store, engine: engine}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("upgrading connection: %v", err)
		return
	}

	c := &Client{
		hub:    h.hub,
		logger: h.logger,
		store:  h.store,
		engine: h.engine,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
	h.hub.Attach(c)

	go c.writePump()
	go c.readPump()
}
