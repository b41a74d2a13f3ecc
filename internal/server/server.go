// Package server assembles the HTTP router and runs the service lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds server configuration.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Task is a background component that runs until its context ends.
type Task func(ctx context.Context) error

// Server runs the HTTP listener alongside background tasks and tears them
// down in order when the context ends.
type Server struct {
	cfg      Config
	handler  http.Handler
	logger   *zap.Logger
	tasks    []namedTask
	shutdown []namedHook
}

type namedTask struct {
	name string
	run  Task
}

type namedHook struct {
	name string
	fn   func(ctx context.Context) error
}

// New creates a server for handler.
func New(cfg Config, handler http.Handler, logger *zap.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{cfg: cfg, handler: handler, logger: logger}
}

// Go registers a background task. Tasks are cancelled when the server stops;
// a task returning an error stops the whole server.
func (s *Server) Go(name string, t Task) {
	s.tasks = append(s.tasks, namedTask{name: name, run: t})
}

// OnShutdown registers a hook run after the HTTP server has stopped
// accepting requests. Hooks run in registration order and share the
// shutdown timeout.
func (s *Server) OnShutdown(name string, fn func(ctx context.Context) error) {
	s.shutdown = append(s.shutdown, namedHook{name: name, fn: fn})
}

// Run listens on the configured port and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.cfg.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends or a task fails, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	for _, t := range s.tasks {
		g.Go(func() error {
			if err := t.run(gctx); err != nil {
				return fmt.Errorf("%s: %w", t.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down", zap.Duration("timeout", s.cfg.ShutdownTimeout))

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		for _, h := range s.shutdown {
			if err := h.fn(sctx); err != nil {
				s.logger.Error("shutdown hook failed", zap.String("hook", h.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
