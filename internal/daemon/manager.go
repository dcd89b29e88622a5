// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO), after the
// servers and workers have stopped.
type ShutdownHook func(ctx context.Context) error

// ServerConfig holds the HTTP server timeouts.
type ServerConfig struct {
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	// ReadTimeout and WriteTimeout stay zero by default: uploads and
	// segment downloads may legitimately take long.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns the server settings used by the binaries.
func DefaultServerConfig(listen string) ServerConfig {
	return ServerConfig{
		ListenAddr:        listen,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   30 * time.Second,
	}
}

// namedHook represents a shutdown hook with a name for logging
type namedHook struct {
	name string
	hook ShutdownHook
}

// Manager runs the API listener, the metrics listener and the job workers
// until its context is cancelled.
type Manager struct {
	serverCfg ServerConfig
	deps      Deps
	logger    zerolog.Logger

	mu            sync.Mutex
	started       bool
	stopping      bool
	apiServer     *http.Server
	metricsServer *http.Server
	apiAddr       net.Addr
	metricsAddr   net.Addr
	shutdownHooks []namedHook
}

// NewManager creates a new daemon manager with the given configuration and dependencies.
func NewManager(serverCfg ServerConfig, deps Deps) (*Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if serverCfg.ShutdownTimeout <= 0 {
		serverCfg.ShutdownTimeout = 30 * time.Second
	}
	return &Manager{
		serverCfg: serverCfg,
		deps:      deps,
		logger:    deps.Logger.With().Str(xglog.FieldComponent, "manager").Logger(),
	}, nil
}

// Start binds the listeners, starts the workers and blocks until ctx is
// cancelled or one of them fails. Bind errors are returned before anything
// is served.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	var apiLn, metricsLn net.Listener
	var err error
	if m.deps.APIHandler != nil {
		if apiLn, err = net.Listen("tcp", m.serverCfg.ListenAddr); err != nil {
			return errors.Join(fmt.Errorf("API listener: %w", err), m.runHooks(context.WithoutCancel(ctx)))
		}
	}
	if m.deps.MetricsHandler != nil && m.deps.MetricsAddr != "" {
		if metricsLn, err = net.Listen("tcp", m.deps.MetricsAddr); err != nil {
			if apiLn != nil {
				_ = apiLn.Close()
			}
			return errors.Join(fmt.Errorf("metrics listener: %w", err), m.runHooks(context.WithoutCancel(ctx)))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	m.mu.Lock()
	if apiLn != nil {
		m.apiAddr = apiLn.Addr()
		m.apiServer = &http.Server{
			Handler:           m.deps.APIHandler,
			ReadHeaderTimeout: m.serverCfg.ReadHeaderTimeout,
			ReadTimeout:       m.serverCfg.ReadTimeout,
			WriteTimeout:      m.serverCfg.WriteTimeout,
			IdleTimeout:       m.serverCfg.IdleTimeout,
			MaxHeaderBytes:    m.serverCfg.MaxHeaderBytes,
		}
		m.serve(g, "api", m.apiServer, apiLn)
	}
	if metricsLn != nil {
		m.metricsAddr = metricsLn.Addr()
		m.metricsServer = &http.Server{
			Handler:           m.deps.MetricsHandler,
			ReadHeaderTimeout: m.serverCfg.ReadHeaderTimeout,
		}
		m.serve(g, "metrics", m.metricsServer, metricsLn)
	}
	m.mu.Unlock()

	if m.deps.Workers != nil {
		g.Go(func() error {
			if err := m.deps.Workers(gctx); err != nil {
				return fmt.Errorf("workers: %w", err)
			}
			return nil
		})
	}

	for _, task := range m.deps.Background {
		g.Go(func() error { return task(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		m.logger.Info().Str(xglog.FieldEvent, "shutdown.begin").Msg("shutting down")
		return m.stopServers(context.WithoutCancel(ctx))
	})

	runErr := g.Wait()
	hookErr := m.runHooks(context.WithoutCancel(ctx))
	if err := errors.Join(runErr, hookErr); err != nil {
		m.logger.Error().Err(err).Str(xglog.FieldEvent, "shutdown.errors").Msg("stopped with errors")
		return err
	}
	m.logger.Info().Str(xglog.FieldEvent, "shutdown.done").Msg("stopped cleanly")
	return nil
}

func (m *Manager) serve(g *errgroup.Group, name string, srv *http.Server, ln net.Listener) {
	m.logger.Info().Str("server", name).Str("addr", ln.Addr().String()).Msg("listening")
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str("server", name).Str(xglog.FieldEvent, "server.failed").Msg("server failed")
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})
}

func (m *Manager) stopServers(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	servers := []*http.Server{m.apiServer, m.metricsServer}
	m.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) runHooks(ctx context.Context) error {
	m.mu.Lock()
	hooks := m.shutdownHooks
	m.shutdownHooks = nil
	m.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}
	return errors.Join(errs...)
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}

// APIAddr returns the bound API address, or nil before Start.
func (m *Manager) APIAddr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apiAddr
}

// MetricsAddr returns the bound metrics address, or nil when disabled.
func (m *Manager) MetricsAddr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metricsAddr
}
