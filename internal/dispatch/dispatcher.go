package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ladder-terminal/ladder/internal/publish"
)

// QuitKey ends the dispatch loop.
const QuitKey = 'q'

// Kind tags an Event.
type Kind uint8

const (
	KindTick Kind = iota + 1
	KindInput
)

func (k Kind) String() string {
	switch k {
	case KindTick:
		return "tick"
	case KindInput:
		return "input"
	default:
		return "unknown"
	}
}

// Event is either a Tick (a new projection is ready) or an Input carrying one
// captured keystroke.
type Event struct {
	Kind Kind
	Key  rune
}

// Tick returns a Tick event.
func Tick() Event { return Event{Kind: KindTick} }

// Input returns an Input event for key.
func Input(key rune) Event { return Event{Kind: KindInput, Key: key} }

// Source is the read side of the snapshot buffer.
type Source interface {
	Load() publish.Projection
}

// Display renders one projection.
type Display interface {
	Render(p publish.Projection) error
}

// Dispatcher merges feed ticks and keystrokes into one channel consumed in
// arrival order by Run.
type Dispatcher struct {
	events  chan Event
	dropped atomic.Uint64
}

// New creates a Dispatcher whose channel holds up to size pending events.
func New(size int) *Dispatcher {
	return &Dispatcher{events: make(chan Event, size)}
}

// Tick enqueues a Tick without blocking the caller. When the queue is full the
// tick is dropped and false is returned; the next tick still renders the
// latest buffer contents, so nothing is lost but a redundant redraw.
func (d *Dispatcher) Tick() bool {
	select {
	case d.events <- Tick():
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Dropped returns how many ticks were discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Input enqueues a keystroke, blocking until there is room or ctx ends.
// Keystrokes are never dropped.
func (d *Dispatcher) Input(ctx context.Context, key rune) error {
	select {
	case d.events <- Input(key):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes events until the quit key arrives, ctx ends, or the display
// fails. On every Tick the buffer is copied out and the copy is rendered, so
// the buffer lock is never held while drawing. A nil return means the user
// quit.
func (d *Dispatcher) Run(ctx context.Context, src Source, display Display) error {
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case ev := <-d.events:
			switch ev.Kind {
			case KindTick:
				if err := display.Render(src.Load()); err != nil {
					return fmt.Errorf("dispatch: render: %w", err)
				}
			case KindInput:
				if ev.Key == QuitKey {
					return nil
				}
			}
		}
	}
}
