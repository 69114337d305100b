package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultShutdownTimeout = 5 * time.Second

// ServiceManager runs the record API server until its context ends
type ServiceManager struct {
	server          *http.Server
	background      []func(context.Context)
	ShutdownTimeout time.Duration
}

// NewServiceManager creates a manager for server
func NewServiceManager(server *http.Server) *ServiceManager {
	return &ServiceManager{
		server:          server,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// Go registers a background task started with the server and stopped
// through its context
func (sm *ServiceManager) Go(task func(context.Context)) {
	sm.background = append(sm.background, task)
}

// Run serves until ctx is cancelled or the server fails, then shuts the
// server down gracefully
func (sm *ServiceManager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, task := range sm.background {
		go task(ctx)
	}

	serverDone := make(chan error, 1)
	go func() {
		log.Info().Str("addr", sm.server.Addr).Msg("API Server starting")
		serverDone <- sm.server.ListenAndServe()
	}()

	select {
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("API server exited with error")
			return err
		}
		log.Info().Msg("API server exited")
		return nil
	case <-ctx.Done():
		log.Info().Msg("Shutting down API server...")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), sm.ShutdownTimeout)
	defer stop()

	if err := sm.server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed, closing connections")
		return sm.server.Close()
	}

	log.Info().Msg("API server stopped")
	return nil
}
