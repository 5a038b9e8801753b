package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/logging"
)

// GracefulShutdown handles graceful server shutdown with cleanup hooks
type GracefulShutdown struct {
	server        *Server
	shutdownHooks []namedHook
	timeout       time.Duration
	signals       []os.Signal
	logger        *zap.Logger
	mu            sync.Mutex
	shutdownOnce  sync.Once
	shutdownChan  chan struct{}
	shutdownError error
}

// ShutdownHook is a function called during graceful shutdown, after the
// server stopped accepting requests
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   ShutdownHook
}

// ShutdownConfig holds graceful shutdown configuration
type ShutdownConfig struct {
	// Timeout is the maximum time to wait for shutdown
	Timeout time.Duration

	// Signals to listen for (default: SIGINT, SIGTERM)
	Signals []os.Signal

	Logger *zap.Logger
}

// DefaultShutdownConfig returns default shutdown configuration
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// NewGracefulShutdown creates a new graceful shutdown handler
func NewGracefulShutdown(server *Server, config *ShutdownConfig) *GracefulShutdown {
	if config == nil {
		config = DefaultShutdownConfig()
	}
	signals := config.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	return &GracefulShutdown{
		server:       server,
		timeout:      config.Timeout,
		signals:      signals,
		logger:       logging.OrNop(config.Logger).Named("server"),
		shutdownChan: make(chan struct{}),
	}
}

// RegisterHook registers a shutdown hook. Hooks run in registration order;
// a failing hook does not stop the others.
func (gs *GracefulShutdown) RegisterHook(name string, hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.shutdownHooks = append(gs.shutdownHooks, namedHook{name: name, fn: hook})
}

// Run serves until ctx is done, a configured signal arrives or the server
// fails, then shuts down
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		gs.logger.Info("starting server", zap.String("address", gs.server.Addr()))
		if err := gs.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, gs.signals...)
	defer stop()

	select {
	case <-ctx.Done():
		gs.logger.Info("shutdown requested")
		return gs.Shutdown()
	case err := <-errChan:
		return err
	}
}

// Shutdown stops the server, then runs the hooks. It is safe to call more
// than once; every call returns the first result.
func (gs *GracefulShutdown) Shutdown() error {
	gs.shutdownOnce.Do(func() {
		gs.logger.Info("initiating graceful shutdown", zap.Duration("timeout", gs.timeout))

		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		if gs.server != nil {
			if err := gs.server.Shutdown(ctx); err != nil {
				gs.shutdownError = fmt.Errorf("server shutdown error: %w", err)
				gs.logger.Error("server shutdown failed", zap.Error(err))
			}
		}

		gs.mu.Lock()
		hooks := make([]namedHook, len(gs.shutdownHooks))
		copy(hooks, gs.shutdownHooks)
		gs.mu.Unlock()

		for _, hook := range hooks {
			if err := hook.fn(ctx); err != nil {
				gs.logger.Warn("shutdown hook failed", zap.String("hook", hook.name), zap.Error(err))
			}
		}

		gs.logger.Info("shutdown complete")
		close(gs.shutdownChan)
	})

	<-gs.shutdownChan
	return gs.shutdownError
}

// Wait blocks until shutdown is complete
func (gs *GracefulShutdown) Wait() error {
	<-gs.shutdownChan
	return gs.shutdownError
}
