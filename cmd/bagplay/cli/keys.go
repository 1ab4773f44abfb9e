package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/onkernel/bagctl/lib/bag"
	"github.com/onkernel/bagctl/lib/logger"
)

const (
	keyCtrlC = 0x03
	keyQuit  = 'q'
	keySpace = ' '
	keyStep  = 's'
)

type controller interface {
	Pause() error
	Step() error
}

// rawTerminal switches f to raw mode and returns a function restoring it.
func rawTerminal(f *os.File) (func(), error) {
	fd := int(f.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = term.Restore(fd, state) }, nil
}

// forwardKeys reads keystrokes from r and drives c until r is exhausted or ctx
// is done. Quit keys cancel ctx with bag.ErrInterrupted.
func forwardKeys(ctx context.Context, r io.Reader, c controller, interrupt context.CancelCauseFunc) error {
	log := logger.FromContext(ctx)
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		if n == 1 {
			var sendErr error
			switch buf[0] {
			case keySpace:
				sendErr = c.Pause()
			case keyStep, 'S':
				sendErr = c.Step()
			case keyQuit, 'Q', keyCtrlC:
				interrupt(bag.ErrInterrupted)
				return nil
			}
			if sendErr != nil {
				log.Debug("failed to forward key", "key", string(buf[0]), "err", sendErr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
