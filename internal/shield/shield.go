// Package shield implements the interrupt shield used by both the
// worker and publisher loops: a scoped region during which SIGINT and
// SIGTERM are buffered instead of delivered, so a critical section (step
// dispatch plus persistence, or a fetch-transition-publish batch) can't
// be torn down mid-update.
package shield

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

type buffer struct {
	mu       sync.Mutex
	sigCh    chan os.Signal
	stop     chan struct{}
	received []os.Signal
}

// Enter installs a buffering handler for SIGINT/SIGTERM and returns a
// release function. The caller must defer the release function
// immediately; calling it restores default signal delivery and
// re-raises, in order, any signal that arrived while shielded.
func Enter() func() {
	b := &buffer{
		sigCh: make(chan os.Signal, 2),
		stop:  make(chan struct{}),
	}
	signal.Notify(b.sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-b.sigCh:
				b.mu.Lock()
				b.received = append(b.received, sig)
				b.mu.Unlock()
			case <-b.stop:
				return
			}
		}
	}()

	return func() {
		signal.Stop(b.sigCh)
		close(b.stop)
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, sig := range b.received {
			if ss, ok := sig.(syscall.Signal); ok {
				_ = syscall.Kill(os.Getpid(), ss)
			}
		}
	}
}
