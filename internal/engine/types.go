package engine

import (
	"context"

	"github.com/ladder-terminal/ladder/internal/adapter/kraken"
)

// Feed is a single-session source of decoded book messages.
// Satisfied by *kraken.Adapter.
type Feed interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) ([]kraken.Message, error)
}

// Alarm reports, without blocking, whether a publish is due.
// Satisfied by *publish.Scheduler.
type Alarm interface {
	Due() bool
}

// Notifier receives one Tick per publish cycle. Tick must not block and
// reports false when the tick was dropped.
// Satisfied by *dispatch.Dispatcher.
type Notifier interface {
	Tick() bool
}
