package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"fastt-chat-server/internal/pagination"
	"fastt-chat-server/internal/storage"
	"fastt-chat-server/internal/ws"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger     *zap.SugaredLogger
	httpServer *http.Server
	h          handler
}

// NewServer returns new Server struct wiring the store, the realtime
// hub and the pagination engine behind one router
func NewServer(logger *zap.SugaredLogger, store *storage.Store, hub *ws.Hub, engine *pagination.Engine, opts ...Option) (*Server, error) {
	cfg := config{
		httpServer: &http.Server{Addr: "0.0.0.0:9000"},
		uploadDir:  "uploads",
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	srv := &Server{
		logger:     logger,
		httpServer: cfg.httpServer,
		h: handler{
			logger:    logger,
			store:     store,
			hub:       hub,
			engine:    engine,
			uploadDir: cfg.uploadDir,
		},
	}

	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", srv.h.createRoom).Methods("POST")
	api.HandleFunc("/rooms", srv.h.listRooms).Methods("GET")
	api.HandleFunc("/rooms/{slug}", srv.h.getRoom).Methods("GET")
	api.HandleFunc("/rooms/{slug}", srv.h.renameRoom).Methods("PUT")
	api.HandleFunc("/rooms/{slug}", srv.h.deleteRoom).Methods("DELETE")
	api.HandleFunc("/rooms/{roomId}/messages", srv.h.recentMessages).Methods("GET")
	api.HandleFunc("/rooms/{roomId}/messages/older", srv.h.olderMessages).Methods("GET")
	api.Handle("/messages/likes", enforcePOSTJSON(http.HandlerFunc(srv.h.likeCounts)))
	api.Handle("/messages/user-likes", enforcePOSTJSON(http.HandlerFunc(srv.h.userLikes)))
	api.HandleFunc("/messages/{messageId}", srv.h.messageContext).Methods("GET")
	api.Handle("/messages/{messageId}/like", enforcePOSTJSON(http.HandlerFunc(srv.h.toggleLike)))
	api.HandleFunc("/users/{userId}", srv.h.getUser).Methods("GET")
	api.Handle("/users/{userId}/nickname", enforcePOSTJSON(http.HandlerFunc(srv.h.updateNickname)))
	api.HandleFunc("/upload", srv.h.uploadImage).Methods("POST")

	r.Handle("/ws", ws.NewHandler(logger, hub, store, engine))
	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.uploadDir))))
	r.HandleFunc("/health", srv.h.health).Methods("GET")

	srv.httpServer.Handler = cors.AllowAll().Handler(log(r, logger.Desugar()))

	return srv, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	s.logger.Info("Closing store")
	s.h.store.Close()
	s.logger.Info("Store is closed")

	return nil
}
