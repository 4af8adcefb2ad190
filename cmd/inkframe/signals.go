package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// exitFunc is replaced in tests.
var exitFunc = os.Exit

// notifyContext returns a context cancelled by the first SIGINT or SIGTERM.
// A second signal exits the process immediately with status 1, in case
// graceful shutdown hangs.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	return watchSignals(parent, sigs, func() { signal.Stop(sigs) })
}

// watchSignals cancels on the first value from sigs and exits on the second.
func watchSignals(parent context.Context, sigs <-chan os.Signal, stopNotify func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigs:
			cancel()
		case <-done:
			return
		}
		select {
		case sig := <-sigs:
			fmt.Fprintf(os.Stderr, "received second %s, forcing exit\n", sig)
			exitFunc(1)
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			stopNotify()
			close(done)
			cancel()
		})
	}
}
