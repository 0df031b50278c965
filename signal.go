package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// interruptContext returns a context that is canceled on the first SIGINT or
// SIGTERM, aborting the in-flight request so the failure is reported and
// journaled. A second signal exits immediately. Call stop to release the
// signal handler.
func interruptContext(parent context.Context, logger *slog.Logger) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Warn("interrupted, aborting upload", slog.String("signal", sig.String()))
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Error("second interrupt, exiting", slog.String("signal", sig.String()))
			os.Exit(1)
		case <-done:
			return
		}
	}()

	return ctx, func() {
		close(done)
		cancel()
	}
}
