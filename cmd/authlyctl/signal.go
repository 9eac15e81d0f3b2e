package main

import (
	"context"
	"os/signal"
	"syscall"
)

// signalContext returns a context canceled on SIGINT or SIGTERM, so the
// entrypoint can drain in-flight work before exiting.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
