package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	applogger "Aegis/pkg/logger"
)

// Component is a long-running part of the process. The HTTP server, the job
// queue and the Kafka consumer all satisfy it.
type Component interface {
	Start() error
	Stop(ctx context.Context) error
}

// Hook adapts plain functions to Component. Nil functions are skipped.
type Hook struct {
	OnStart func() error
	OnStop  func(ctx context.Context) error
}

func (h Hook) Start() error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart()
}

func (h Hook) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}

type namedComponent struct {
	name string
	c    Component
}

type namedCloser struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle. Components start in
// the order they were added and stop in reverse; closers run last, LIFO.
type App struct {
	log             *applogger.Logger
	shutdownTimeout time.Duration
	components      []namedComponent
	closers         []namedCloser
}

// New creates an empty App.
func New(log *applogger.Logger, shutdownTimeout time.Duration) *App {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 20 * time.Second
	}
	return &App{log: log, shutdownTimeout: shutdownTimeout}
}

// Add registers a component.
func (a *App) Add(name string, c Component) *App {
	a.components = append(a.components, namedComponent{name: name, c: c})
	return a
}

// OnShutdown registers a resource to release after all components stopped.
func (a *App) OnShutdown(name string, fn func() error) *App {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	for i, nc := range a.components {
		if err := nc.c.Start(); err != nil {
			a.log.Error("component start failed", applogger.String("component", nc.name), applogger.Error(err))
			startErr := fmt.Errorf("start %s: %w", nc.name, err)
			return errors.Join(startErr, a.shutdown(a.components[:i]))
		}
		a.log.Info("component started", applogger.String("component", nc.name))
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown(a.components)
}

func (a *App) shutdown(started []namedComponent) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		nc := started[i]
		if err := nc.c.Stop(ctx); err != nil {
			a.log.Warn("component stop error", applogger.String("component", nc.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", nc.name, err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		cl := a.closers[i]
		if err := cl.fn(); err != nil {
			a.log.Warn("close error", applogger.String("resource", cl.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", cl.name, err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
