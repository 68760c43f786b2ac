package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Raw puts f into raw mode when it is a terminal and returns a function
// restoring the previous state. When f is not a terminal Raw is a no-op.
func Raw(f *os.File) (restore func() error, err error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() error { return nil }, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("terminal: raw mode: %w", err)
	}
	return func() error { return term.Restore(fd, state) }, nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool { return term.IsTerminal(int(f.Fd())) }

// KeySink receives one keystroke at a time. Satisfied by
// *dispatch.Dispatcher.
type KeySink interface {
	Input(ctx context.Context, key rune) error
}

// ReadKeys forwards every rune read from r to sink until r is exhausted or
// ctx ends. A blocked read on stdin cannot be interrupted; the goroutine
// running ReadKeys simply ends with the process.
func ReadKeys(ctx context.Context, r io.Reader, sink KeySink) error {
	br := bufio.NewReader(r)
	for {
		key, _, err := br.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("terminal: read key: %w", err)
		}
		if err := sink.Input(ctx, key); err != nil {
			return err
		}
	}
}
