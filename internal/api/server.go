package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/wonny/cbquant/pkg/config"
	"github.com/wonny/cbquant/pkg/logger"
)

// ShutdownTimeout bounds draining of in-flight backtests on stop
const ShutdownTimeout = 30 * time.Second

// Server serves the backtest API until its context ends
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *logger.Logger
}

// New creates a server on :PORT; nothing is bound until Listen or Run
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      writeTimeout(cfg),
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		logger: log.WithField("component", "api"),
	}
}

// Listen binds the port so address errors surface before serving
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr is the bound address, or the configured one before Listen
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Run serves until ctx is cancelled, then drains for up to ShutdownTimeout
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.logger.WithField("addr", s.Addr()).Info("Starting API server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh

	s.logger.Info("API server stopped")
	return nil
}

// writeTimeout leaves room for the longest allowed backtest request
func writeTimeout(cfg *config.Config) time.Duration {
	if cfg.API.RequestTimeout > 0 {
		return cfg.API.RequestTimeout + 15*time.Second
	}
	return 5 * time.Minute
}
