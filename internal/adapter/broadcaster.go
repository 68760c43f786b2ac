package adapter

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ladder-terminal/ladder/internal/publish"
)

// ProjectionProvider is satisfied by anything that emits published book
// projections, in practice the ingestion engine.
type ProjectionProvider interface {
	Projections() <-chan publish.Projection
}

type subscriber struct {
	name string
	ch   chan publish.Projection
}

// Broadcaster fans every published projection out to its subscribers (metrics,
// Redis mirror, health monitor). Delivery is non-blocking: a slow subscriber
// misses projections rather than stalling the others.
type Broadcaster struct {
	log     zerolog.Logger
	sources []<-chan publish.Projection

	mu   sync.RWMutex
	subs []subscriber
}

// NewBroadcaster creates a Broadcaster ready for source registration.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		log: logger.With().Str("component", "broadcaster").Logger(),
	}
}

// Register adds a provider's projection channel as a source. Must be called
// before Run.
func (b *Broadcaster) Register(provider ProjectionProvider) {
	b.sources = append(b.sources, provider.Projections())
}

// Subscribe returns a buffered channel receiving every projection. name only
// labels drop warnings.
func (b *Broadcaster) Subscribe(name string) <-chan publish.Projection {
	ch := make(chan publish.Projection, 64)

	b.mu.Lock()
	b.subs = append(b.subs, subscriber{name: name, ch: ch})
	b.mu.Unlock()

	return ch
}

// Run consumes every registered source until ctx is cancelled or all sources
// are closed.
func (b *Broadcaster) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, src := range b.sources {
		wg.Add(1)
		go func(ch <-chan publish.Projection) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case p, ok := <-ch:
					if !ok {
						return
					}
					b.distribute(p)
				}
			}
		}(src)
	}

	wg.Wait()
}

func (b *Broadcaster) distribute(p publish.Projection) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		select {
		case s.ch <- p:
		default:
			b.log.Debug().Str("subscriber", s.name).Uint64("seq", p.Seq).Msg("dropping projection for slow subscriber")
		}
	}
}
