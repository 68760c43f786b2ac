package book

import "fmt"

// OrderBook holds the bid and ask ladders for a single pair, each bounded to
// the same maximum depth.
//
// The book has a single writer: the ingestion goroutine. It performs no
// locking of its own and must never be handed to the display path; readers
// get copies through CopyTop.
type OrderBook struct {
	maxDepth int
	bids     *Ladder
	asks     *Ladder
}

// New creates an empty book that keeps at most maxDepth levels per side after
// every diff.
func New(maxDepth int, ordering Ordering) *OrderBook {
	return &OrderBook{
		maxDepth: maxDepth,
		bids:     newLadder(Bid, maxDepth, ordering),
		asks:     newLadder(Ask, maxDepth, ordering),
	}
}

// MaxDepth returns the per-side depth bound.
func (b *OrderBook) MaxDepth() int { return b.maxDepth }

// Bids returns the bid ladder.
func (b *OrderBook) Bids() *Ladder { return b.bids }

// Asks returns the ask ladder.
func (b *OrderBook) Asks() *Ladder { return b.asks }

// Ladder returns the ladder for side.
func (b *OrderBook) Ladder(side Side) (*Ladder, error) {
	switch side {
	case Bid:
		return b.bids, nil
	case Ask:
		return b.asks, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSide, side)
	}
}

// Initialize loads a snapshot, overwriting any level already stored at the
// same price. The depth bound is not enforced here: the snapshot is trusted
// to match the subscribed depth, and an oversized side is trimmed by the next
// diff that inserts into it. Loading the same snapshot twice is a no-op.
func (b *OrderBook) Initialize(snap Snapshot) error {
	bids, err := b.bids.keys(snap.Bids)
	if err != nil {
		return fmt.Errorf("book: snapshot bids: %w", err)
	}
	asks, err := b.asks.keys(snap.Asks)
	if err != nil {
		return fmt.Errorf("book: snapshot asks: %w", err)
	}
	for _, e := range bids {
		b.bids.tree.ReplaceOrInsert(e)
	}
	for _, e := range asks {
		b.asks.tree.ReplaceOrInsert(e)
	}
	return nil
}

// ApplySideUpdate applies an ordered batch of diff records to one side.
//
// A record with a non-zero quantity inserts or overwrites its price and then
// trims the side back to the depth bound. A zero quantity removes the price;
// removing a missing price is a no-op. The evicted levels are returned in
// eviction order.
func (b *OrderBook) ApplySideUpdate(side Side, updates []Level) ([]Level, error) {
	l, err := b.Ladder(side)
	if err != nil {
		return nil, err
	}
	entries, err := l.keys(updates)
	if err != nil {
		return nil, fmt.Errorf("book: %s update: %w", side, err)
	}

	var evicted []Level
	for _, e := range entries {
		if e.Qty == 0 {
			l.tree.Delete(e)
			continue
		}
		l.tree.ReplaceOrInsert(e)
		evicted = append(evicted, l.evict()...)
	}
	return evicted, nil
}

// CopyTop writes the first levels of each ladder into bids and asks and
// returns the number of index-aligned pairs, which is bounded by the shorter
// ladder and the shorter destination. Slots at or past the returned count may
// hold data from the longer side and should be ignored.
func (b *OrderBook) CopyTop(bids, asks []Level) int {
	nb := b.bids.CopyTo(bids)
	na := b.asks.CopyTo(asks)
	return min(nb, na)
}
