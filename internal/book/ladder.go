package book

import (
	"fmt"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const ladderDegree = 8

// entry is the btree item. num is only populated under NumericOrder.
type entry struct {
	Level
	num decimal.Decimal
}

func lexicalLess(a, b entry) bool { return a.Price < b.Price }

// numericLess falls back to the text so "100.5" and "100.50" stay distinct
// keys, matching the text-keyed identity of a level.
func numericLess(a, b entry) bool {
	if c := a.num.Cmp(b.num); c != 0 {
		return c < 0
	}
	return a.Price < b.Price
}

// Ladder is one depth-bounded side of the book, ordered by price key.
//
// A Ladder is not safe for concurrent use; it is owned by the goroutine that
// applies feed messages.
type Ladder struct {
	side     Side
	maxDepth int
	ordering Ordering
	tree     *btree.BTreeG[entry]
}

func newLadder(side Side, maxDepth int, ordering Ordering) *Ladder {
	less := lexicalLess
	if ordering == NumericOrder {
		less = numericLess
	}
	return &Ladder{
		side:     side,
		maxDepth: maxDepth,
		ordering: ordering,
		tree:     btree.NewG[entry](ladderDegree, less),
	}
}

// Side reports which side of the book this ladder holds.
func (l *Ladder) Side() Side { return l.side }

// Len returns the number of price levels currently held.
func (l *Ladder) Len() int { return l.tree.Len() }

// Get returns the level stored at price.
func (l *Ladder) Get(price string) (Level, bool) {
	key, err := l.key(Level{Price: price})
	if err != nil {
		return Level{}, false
	}
	e, ok := l.tree.Get(key)
	return e.Level, ok
}

// Ascend calls fn for each level in key order until fn returns false.
func (l *Ladder) Ascend(fn func(Level) bool) {
	l.tree.Ascend(func(e entry) bool { return fn(e.Level) })
}

// Levels returns a copy of every level in key order.
func (l *Ladder) Levels() []Level {
	out := make([]Level, 0, l.tree.Len())
	l.Ascend(func(lv Level) bool {
		out = append(out, lv)
		return true
	})
	return out
}

// CopyTo fills dst with the first len(dst) levels in key order and returns
// how many were written.
func (l *Ladder) CopyTo(dst []Level) int {
	n := 0
	l.tree.Ascend(func(e entry) bool {
		if n == len(dst) {
			return false
		}
		dst[n] = e.Level
		n++
		return true
	})
	return n
}

func (l *Ladder) key(lv Level) (entry, error) {
	e := entry{Level: lv}
	if l.ordering != NumericOrder {
		return e, nil
	}
	num, err := decimal.NewFromString(lv.Price)
	if err != nil {
		return entry{}, fmt.Errorf("%w: %q", ErrInvalidPrice, lv.Price)
	}
	e.num = num
	return e, nil
}

// keys converts a whole batch up front so a bad price never leaves the
// ladder half-updated.
func (l *Ladder) keys(levels []Level) ([]entry, error) {
	out := make([]entry, len(levels))
	for i, lv := range levels {
		e, err := l.key(lv)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// evict removes levels from the far end until the depth bound holds again.
// Asks drop their largest key, bids their smallest.
func (l *Ladder) evict() []Level {
	var evicted []Level
	for l.tree.Len() > l.maxDepth {
		var (
			e  entry
			ok bool
		)
		if l.side == Ask {
			e, ok = l.tree.DeleteMax()
		} else {
			e, ok = l.tree.DeleteMin()
		}
		if !ok {
			break
		}
		evicted = append(evicted, e.Level)
	}
	return evicted
}
