// Package bootstrap wires process lifecycle: signal handling, supervised
// runners, and graceful shutdown, grounded on the teacher's
// internal/bootstrap.App — config loading and logger construction live in
// internal/config and internal/logging instead of here, since those are
// reusable independent of process lifecycle.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dcagrid/internal/core"
	"dcagrid/internal/registry"
	"dcagrid/internal/repository"

	"golang.org/x/sync/errgroup"
)

// Runner is a component that runs until its context is canceled.
type Runner interface {
	Run(ctx context.Context) error
}

// App holds the process-wide dependencies Run needs to shut down cleanly.
type App struct {
	Logger core.Logger
	Repo   *repository.Repository
	Reg    *registry.Registry

	ShutdownTimeout time.Duration
}

func NewApp(logger core.Logger, repo *repository.Repository, reg *registry.Registry, shutdownTimeout time.Duration) *App {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &App{Logger: logger, Repo: repo, Reg: reg, ShutdownTimeout: shutdownTimeout}
}

// Run starts every runner under one errgroup, canceling all of them the
// moment any one returns an error or the process receives SIGINT/SIGTERM (teacher:
// App.Run's signal.NotifyContext + errgroup.WithContext pattern). sigCtx is
// kept distinct from the errgroup's derived context: errgroup cancels its
// own context as soon as any runner errors, so checking that context's
// Err() can't tell a signal-triggered shutdown apart from a runner failure.
func (a *App) Run(runners ...Runner) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)

	a.Logger.Info("starting application", "runners", len(runners))

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	err := g.Wait()
	a.Shutdown(a.ShutdownTimeout)

	if err != nil && sigCtx.Err() == nil {
		a.Logger.Error("application stopped with error", "error", err.Error())
		return fmt.Errorf("bootstrap: run: %w", err)
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}

// Shutdown stops every live supervisor (bounded by timeout) and closes the
// database handle. Safe to call even if Run exited on its own.
func (a *App) Shutdown(timeout time.Duration) {
	a.Logger.Info("shutting down", "timeout", timeout.String())
	a.Reg.StopAll(timeout)
	if err := a.Repo.Close(); err != nil {
		a.Logger.Error("failed to close repository", "error", err.Error())
	}
}
