package bag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onkernel/bagctl/lib/logger"
)

// Use runs fn and then cleans up the child process:
//
//   - if the child is still running and fn succeeded, a warning is logged and the child is left alone;
//   - if fn failed or panicked, the child is stopped;
//   - a user interrupt (ErrInterrupted, or a context cancelled with that cause) is logged and absorbed;
//   - any other error is logged at critical level and returned unchanged, and panics are re-raised.
func (b *Bag) Use(ctx context.Context, fn func(ctx context.Context) error) error {
	defer func() {
		if r := recover(); r != nil {
			_ = b.exit(ctx, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	return b.exit(ctx, fn(ctx))
}

func (b *Bag) exit(ctx context.Context, err error) error {
	log := logger.FromContext(ctx)

	// let the child's own output flush before ours
	time.Sleep(b.flushDelay)

	if b.IsRunning() {
		if err == nil {
			log.Warn("exited while bag process is still running")
			log.Info("hint: use Wait or play with Wait set to wait until completion")
		} else if stopErr := b.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			log.Error("failed to stop bag process", "err", stopErr)
		}
	}

	switch {
	case err == nil:
		log.Info("goodbye")
		return nil
	case isInterrupt(ctx, err):
		log.Info("user exit")
		return nil
	default:
		logger.Critical(ctx, log, "an error occurred, exiting", "err", err)
		return err
	}
}

func isInterrupt(ctx context.Context, err error) bool {
	if errors.Is(err, ErrInterrupted) {
		return true
	}
	return errors.Is(err, context.Canceled) && errors.Is(context.Cause(ctx), ErrInterrupted)
}
