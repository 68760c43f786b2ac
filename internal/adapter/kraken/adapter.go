package kraken

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ladder-terminal/ladder/internal/adapter"
)

// DefaultURL is the public Kraken websocket endpoint.
const DefaultURL = "wss://ws.kraken.com/"

// Adapter connects to the Kraken websocket, sends the book subscription and
// decodes frames for a single pair.
type Adapter struct {
	ws    *adapter.WSClient
	raw   <-chan []byte
	pair  string
	depth int
	log   zerolog.Logger
}

// New creates an Adapter backed by the given WSClient.
// It immediately subscribes to the WSClient fan-out so no frames are missed.
func New(ws *adapter.WSClient, pair string, depth int, logger zerolog.Logger) *Adapter {
	return &Adapter{
		ws:    ws,
		raw:   ws.Subscribe(),
		pair:  pair,
		depth: depth,
		log:   logger.With().Str("component", "kraken").Str("pair", pair).Logger(),
	}
}

// Pair returns the subscribed pair.
func (ka *Adapter) Pair() string { return ka.pair }

// Open connects and sends the book subscription.
func (ka *Adapter) Open(ctx context.Context) error {
	if err := ka.ws.Connect(ctx); err != nil {
		return err
	}
	req, err := SubscribeRequest(ka.pair, ka.depth)
	if err != nil {
		return fmt.Errorf("kraken: encode subscription: %w", err)
	}
	if err := ka.ws.Send(req); err != nil {
		return fmt.Errorf("kraken: subscribe: %w", err)
	}
	ka.log.Info().Int("depth", ka.depth).Msg("subscribed")
	return nil
}

// Next blocks for the next frame and returns its decoded book messages,
// which may be empty for frames that carry no book data. It returns the
// session error once the connection has ended.
func (ka *Adapter) Next(ctx context.Context) ([]Message, error) {
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case raw, ok := <-ka.raw:
		if !ok {
			if err := ka.ws.Err(); err != nil {
				return nil, err
			}
			return nil, adapter.ErrClosed
		}
		msgs, err := Decode(raw)
		if err != nil {
			ka.log.Debug().Bytes("frame", raw).Msg("undecodable frame")
			return nil, err
		}
		return msgs, nil
	}
}

// Close ends the session.
func (ka *Adapter) Close() { ka.ws.Close() }
