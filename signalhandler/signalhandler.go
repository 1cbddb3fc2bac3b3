// Package signalhandler turns SIGINT and SIGTERM into an orderly shutdown.
package signalhandler

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"imagedupes/logging"
)

// SetupHandler returns a context that is cancelled on the first SIGINT or SIGTERM,
// giving the caller a chance to snapshot the cache before exiting. A second signal
// exits immediately.
func SetupHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logging.LogWarning("Received %v, finishing in-flight work and saving the cache (send again to abort)", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		sig := <-sigChan
		logging.LogError("Received %v again, exiting without saving", sig)
		os.Exit(1)
	}()

	return ctx, cancel
}

// GetOptimalProcs returns the optimal number of worker goroutines for the system
func GetOptimalProcs() int {
	numCPU := runtime.NumCPU()

	// Leave headroom for the cgo decoders and the rest of the system
	maxProcs := (numCPU * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}

	return maxProcs
}
