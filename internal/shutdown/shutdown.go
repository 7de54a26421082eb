// Package shutdown provides the process-wide stop flag polled by the
// client and server loops.
package shutdown

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// Flag is set once when the process should stop. Loops poll it at tick
// boundaries; it never interrupts a tick in progress.
type Flag struct {
	requested atomic.Bool
}

// Request sets the flag.
func (f *Flag) Request() { f.requested.Store(true) }

// Requested reports whether the flag is set.
func (f *Flag) Requested() bool { return f.requested.Load() }

// Notify sets f when SIGINT or SIGTERM arrives. The returned function stops
// signal delivery.
func Notify(f *Flag) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			f.Request()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
