package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server manages the local HTTP/WebSocket API lifecycle for a profile daemon.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	addr       string
	logger     *zap.Logger
}

// NewServer binds the configured listen address and builds the router.
func NewServer(listen string, h *Handlers, logger *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", listen, err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(permissiveCORS)
	h.Register(r)

	return &Server{
		httpServer: &http.Server{Handler: r},
		listener:   listener,
		addr:       listener.Addr().String(),
		logger:     logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.addr
}

// Start begins serving. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("console API listening", zap.String("addr", s.addr))
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("console API stopping")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(ctx)
}

// permissiveCORS allows the browser dashboard to call the loopback API from
// any origin. The datastore CRUD endpoints this console consumes do the same.
func permissiveCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
