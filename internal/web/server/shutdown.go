package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ShutdownHook releases a resource during shutdown
type ShutdownHook func(ctx context.Context) error

// OnShutdown registers a hook run after the HTTP server stopped, in
// registration order
func (s *Server) OnShutdown(hook ShutdownHook) {
	s.hooks = append(s.hooks, hook)
}

// Run serves until ctx is canceled, then shuts down gracefully within the
// configured timeout
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.Addr()))
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown stops accepting requests, waits for in-flight ones and runs the
// shutdown hooks. Hook failures are logged and do not stop later hooks.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down", zap.Duration("timeout", s.config.ShutdownTimeout))
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Error("server shutdown failed", zap.Error(err))
	}

	for i, hook := range s.hooks {
		if hookErr := hook(ctx); hookErr != nil {
			s.logger.Error("shutdown hook failed", zap.Int("hook", i), zap.Error(hookErr))
		}
	}

	if err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("shutdown complete")
	return nil
}
