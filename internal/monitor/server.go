package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/NamanBalaji/chunkdl/internal/logger"
)

const readHeaderTimeout = 5 * time.Second

// Server serves the monitoring router on a TCP address.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	s.ln = ln

	l := logger.With("monitor")
	l.Info().Str("addr", ln.Addr().String()).Msg("monitoring endpoint listening")

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("monitoring server stopped")
		}
	}()

	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}

	return s.srv.Addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
