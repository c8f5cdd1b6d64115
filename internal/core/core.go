// Package core runs the relay's components: ordered start, reverse-order
// stop, and signal-driven shutdown.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

// DefaultShutdownTimeout bounds Stop when no timeout is configured.
const DefaultShutdownTimeout = 30 * time.Second

// App manages the lifecycle of a set of components.
type App struct {
	components      []componentInstance
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

type componentInstance struct {
	name      string
	component any
	started   bool
}

// NewApp creates an App. A non-positive shutdownTimeout selects
// DefaultShutdownTimeout.
func NewApp(logger *slog.Logger, shutdownTimeout time.Duration) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &App{
		logger:          logger.With("component", "core"),
		shutdownTimeout: shutdownTimeout,
	}
}

// Add appends a component. It should implement Starter, Stopper or both;
// components start in the order they were added.
func (a *App) Add(name string, component any) {
	a.components = append(a.components, componentInstance{name: name, component: component})
}

// Start starts all components that implement Starter, in order.
// If any Start() fails, already-started components are stopped in reverse order.
func (a *App) Start(ctx context.Context) error {
	for i := range a.components {
		ci := &a.components[i]
		ci.started = true
		s, ok := ci.component.(Starter)
		if !ok {
			continue
		}
		a.logger.Info("starting component", "name", ci.name)
		if err := s.Start(ctx); err != nil {
			ci.started = false
			a.logger.Error("component start failed", "name", ci.name, "error", err)
			_ = a.stopComponents(i - 1)
			return fmt.Errorf("starting %s: %w", ci.name, err)
		}
	}
	a.logger.Info("all components started")
	return nil
}

// Stop stops all started components in reverse order within the shutdown
// timeout. Errors are collected, not fatal.
func (a *App) Stop() error {
	return a.stopComponents(len(a.components) - 1)
}

func (a *App) stopComponents(fromIndex int) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := fromIndex; i >= 0; i-- {
		ci := &a.components[i]
		if !ci.started {
			continue
		}
		ci.started = false
		s, ok := ci.component.(Stopper)
		if !ok {
			continue
		}
		a.logger.Info("stopping component", "name", ci.name)
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("component stop error", "name", ci.name, "error", err)
			errs = append(errs, fmt.Errorf("stopping %s: %w", ci.name, err))
		}
	}
	return errors.Join(errs...)
}

// Run starts all components and blocks until ctx is cancelled or a
// shutdown signal is received, then stops them.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown requested", "cause", context.Cause(ctx))

	err := a.Stop()
	a.logger.Info("shutdown complete")
	return err
}
