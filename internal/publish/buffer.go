package publish

import (
	"sync"
	"time"

	"github.com/ladder-terminal/ladder/internal/book"
)

// Projection is an immutable copy of the top of the book taken in one publish
// cycle. Bids[i] and Asks[i] are paired by index only.
type Projection struct {
	Seq  uint64
	At   time.Time
	Bids []book.Level
	Asks []book.Level
}

// Len returns the number of index-aligned pairs.
func (p Projection) Len() int { return min(len(p.Bids), len(p.Asks)) }

// FillFunc writes up to len(bids) pairs into the provided slots and returns
// how many pairs are valid.
type FillFunc func(bids, asks []book.Level) int

// Buffer is the fixed-capacity region shared between the ingestion goroutine
// and the display loop. Both sides only copy in or out while holding the lock.
type Buffer struct {
	mu    sync.Mutex
	bids  []book.Level
	asks  []book.Level
	n     int
	seq   uint64
	at    time.Time
	clock func() time.Time
}

// NewBuffer allocates a Buffer holding up to depth levels per side.
func NewBuffer(depth int) *Buffer {
	return &Buffer{
		bids:  make([]book.Level, depth),
		asks:  make([]book.Level, depth),
		clock: time.Now,
	}
}

// Capacity returns the per-side slot count.
func (b *Buffer) Capacity() int { return len(b.bids) }

// Store runs fill against the buffer slots under the lock, clears every slot
// past the returned count, and returns the resulting projection.
func (b *Buffer) Store(fill FillFunc) Projection {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := fill(b.bids, b.asks)
	n = max(0, min(n, len(b.bids)))
	clear(b.bids[n:])
	clear(b.asks[n:])

	b.n = n
	b.seq++
	b.at = b.clock()
	return b.snapshotLocked()
}

// Load copies the current contents out of the buffer.
func (b *Buffer) Load() Projection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Buffer) snapshotLocked() Projection {
	p := Projection{
		Seq:  b.seq,
		At:   b.at,
		Bids: make([]book.Level, b.n),
		Asks: make([]book.Level, b.n),
	}
	copy(p.Bids, b.bids[:b.n])
	copy(p.Asks, b.asks[:b.n])
	return p
}
