package bag

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptContext is like signal.NotifyContext, except that SIGINT and SIGTERM
// cancel the context with cause ErrInterrupted.
func InterruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			cancel(ErrInterrupted)
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
			cancel(nil)
		})
	}
}
