// Package signal wires POSIX signals into the daemon lifecycle: SIGTERM
// and SIGINT drain the HTTP server and close storage, SIGHUP re-reads the
// configuration file and swaps the feature catalog in place.
package signal

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ShutdownTimeout bounds the graceful drain on SIGTERM/SIGINT.
const ShutdownTimeout = 5 * time.Second

// Config configures the handler.
type Config struct {
	// Logger for signal events (optional, slog.Default if nil).
	Logger *slog.Logger

	// ReloadFn runs on SIGHUP. In the daemon this re-reads the config
	// file and replaces the catalog. Nil means SIGHUP is ignored.
	ReloadFn func() error

	// ShutdownFn runs once on a shutdown signal, under a context with
	// the ShutdownTimeout deadline. Nil means only the returned context
	// is canceled.
	ShutdownFn func(context.Context) error
}

// Handler owns the signal channel for the life of the daemon.
type Handler struct {
	logger     *slog.Logger
	signals    chan os.Signal
	cancel     context.CancelFunc
	reloadFn   func() error
	shutdownFn func(context.Context) error
	done       chan struct{}
}

// Setup installs the handlers and returns a context that is canceled once
// shutdown completes. SIGPIPE is ignored so a client disconnect cannot
// kill the daemon mid-write.
func Setup(ctx context.Context, cfg *Config) (context.Context, *Handler) {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handler{
		logger:     logger,
		signals:    make(chan os.Signal, 1),
		cancel:     cancel,
		reloadFn:   cfg.ReloadFn,
		shutdownFn: cfg.ShutdownFn,
		done:       make(chan struct{}),
	}

	signal.Ignore(syscall.SIGPIPE)
	signal.Notify(h.signals, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go h.loop(ctx)

	return ctx, h
}

func (h *Handler) loop(ctx context.Context) {
	defer close(h.done)
	defer signal.Stop(h.signals)

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("signal loop: context canceled")
			return

		case sig := <-h.signals:
			if sig == syscall.SIGHUP {
				h.reload()
				continue
			}
			h.logger.Info("shutdown signal received", "signal", sig)
			h.shutdown()
			return
		}
	}
}

// shutdown drains under the timeout, then cancels the daemon context.
// ShutdownFn errors are logged, not fatal: the process is exiting anyway.
func (h *Handler) shutdown() {
	if h.shutdownFn != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := h.shutdownFn(drainCtx); err != nil {
			h.logger.Warn("graceful shutdown incomplete", "error", err)
		}
	}
	h.cancel()
}

// reload runs the reload hook. A failed reload keeps the previous config
// and catalog in effect.
func (h *Handler) reload() {
	if h.reloadFn == nil {
		h.logger.Debug("SIGHUP received with no reload hook, ignoring")
		return
	}
	h.logger.Info("reload signal received")
	if err := h.reloadFn(); err != nil {
		h.logger.Error("reload failed, keeping previous configuration", "error", err)
		return
	}
	h.logger.Info("configuration reloaded")
}

// Wait blocks until the signal loop has exited.
func (h *Handler) Wait() {
	<-h.done
}

// Stop tears the handler down when shutdown was not signal-initiated.
func (h *Handler) Stop() {
	signal.Stop(h.signals)
	h.cancel()
}
