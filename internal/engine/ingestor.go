package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ladder-terminal/ladder/internal/adapter/kraken"
	"github.com/ladder-terminal/ladder/internal/book"
	"github.com/ladder-terminal/ladder/internal/metrics"
	"github.com/ladder-terminal/ladder/internal/publish"
)

// Ingestor owns the order book. It reads the feed, applies each decoded
// message in order, and after every frame checks whether a publish is due.
// Everything happens on the goroutine that calls Run.
type Ingestor struct {
	feed   Feed
	book   *book.OrderBook
	buf    *publish.Buffer
	alarm  Alarm
	notify Notifier
	log    zerolog.Logger

	projections chan publish.Projection
}

// NewIngestor wires the ingestion path. buf must hold at least
// ob.MaxDepth() levels per side.
func NewIngestor(feed Feed, ob *book.OrderBook, buf *publish.Buffer, alarm Alarm, notify Notifier, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		feed:        feed,
		book:        ob,
		buf:         buf,
		alarm:       alarm,
		notify:      notify,
		log:         logger.With().Str("component", "engine").Logger(),
		projections: make(chan publish.Projection, 64),
	}
}

// Projections returns a channel receiving a copy of every published
// projection. Sends never block; projections are dropped when nobody reads.
func (in *Ingestor) Projections() <-chan publish.Projection {
	return in.projections
}

// Run pushes the initial Tick, opens the feed and processes frames until the
// feed fails, a frame is rejected, or ctx is cancelled. Cancellation returns
// nil; every other exit is fatal to the session and returned wrapped.
func (in *Ingestor) Run(ctx context.Context) error {
	in.tick()

	if err := in.feed.Open(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("engine: open feed: %w", err)
	}

	for {
		msgs, err := in.feed.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("engine: read feed: %w", err)
		}
		if err := in.apply(msgs); err != nil {
			return fmt.Errorf("engine: apply: %w", err)
		}
		if in.alarm.Due() {
			in.publish()
		}
	}
}

// apply validates the whole frame, then mutates the book message by message.
func (in *Ingestor) apply(msgs []kraken.Message) error {
	if err := Validate(msgs); err != nil {
		return err
	}

	for _, m := range msgs {
		metrics.FeedMessagesTotal.WithLabelValues(m.Kind.String()).Inc()

		switch m.Kind {
		case kraken.Snapshot:
			if err := in.book.Initialize(m.Snapshot); err != nil {
				return err
			}
			in.log.Debug().
				Int("bids", len(m.Snapshot.Bids)).
				Int("asks", len(m.Snapshot.Asks)).
				Msg("snapshot applied")
		case kraken.AskDiff, kraken.BidDiff:
			side := m.Side()
			evicted, err := in.book.ApplySideUpdate(side, m.Levels)
			if err != nil {
				return err
			}
			if len(evicted) > 0 {
				metrics.BookEvictionsTotal.WithLabelValues(side.String()).Add(float64(len(evicted)))
			}
		}
	}
	return nil
}

// publish copies the top of the book into the shared buffer and signals the
// display.
func (in *Ingestor) publish() {
	p := in.buf.Store(in.book.CopyTop)
	metrics.PublishCyclesTotal.Inc()

	select {
	case in.projections <- p:
	default:
	}

	in.tick()
}

func (in *Ingestor) tick() {
	if !in.notify.Tick() {
		metrics.TicksDroppedTotal.Inc()
		in.log.Debug().Msg("dispatch queue full, tick dropped")
	}
}
