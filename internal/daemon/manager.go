// SPDX-License-Identifier: MIT

// Package daemon manages the netlabd process lifecycle: the HTTP servers
// and ordered teardown of everything behind them.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/netlabio/netlabd/internal/log"
)

const shutdownTimeout = 30 * time.Second

// ShutdownHook performs cleanup during graceful shutdown. Hooks run in
// reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// Options configures the Manager.
type Options struct {
	ListenAddr string
	APIHandler http.Handler

	MetricsAddr    string
	MetricsHandler http.Handler
}

// Manager owns the HTTP servers and the shutdown sequence.
type Manager struct {
	opts Options

	apiServer     *http.Server
	metricsServer *http.Server

	mu            sync.Mutex
	started       bool
	stopping      bool
	shutdownHooks []namedHook

	logger zerolog.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if opts.APIHandler == nil {
		return nil, fmt.Errorf("API handler is required")
	}
	return &Manager{
		opts:   opts,
		logger: xlog.WithComponent("daemon"),
	}, nil
}

// RegisterShutdownHook adds a named cleanup step to the LIFO shutdown
// sequence.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}

// Start brings up the servers and blocks until ctx is cancelled or a
// server fails, then shuts everything down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	m.started = true
	m.mu.Unlock()

	errChan := make(chan error, 2)

	if m.opts.MetricsHandler != nil && m.opts.MetricsAddr != "" {
		m.metricsServer = &http.Server{
			Addr:              m.opts.MetricsAddr,
			Handler:           m.opts.MetricsHandler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			m.logger.Info().Str("addr", m.opts.MetricsAddr).Msg("metrics server listening")
			if err := m.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	m.apiServer = &http.Server{
		Addr:              m.opts.ListenAddr,
		Handler:           m.opts.APIHandler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: notification streams stay open indefinitely.
	}
	go func() {
		m.logger.Info().Str("addr", m.opts.ListenAddr).Msg("API server listening")
		if err := m.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("server error, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the servers and runs the registered hooks in reverse
// order.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return fmt.Errorf("daemon not started")
	}
	m.stopping = true
	hooks := make([]namedHook, len(m.shutdownHooks))
	copy(hooks, m.shutdownHooks)
	m.mu.Unlock()

	var errs []error

	if m.apiServer != nil {
		if err := m.apiServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
		}
	}
	if m.metricsServer != nil {
		if err := m.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(ctx); err != nil {
			m.logger.Error().Err(err).
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("daemon stopped cleanly")
	return nil
}
