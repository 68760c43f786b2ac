package book

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the book package.
var (
	ErrInvalidPrice    = errors.New("invalid price")
	ErrUnknownSide     = errors.New("unknown book side")
	ErrUnknownOrdering = errors.New("unknown price ordering")
)

// Side identifies one ladder of the book.
type Side uint8

const (
	Bid Side = iota + 1
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Level is a single price level. Price keeps the exact text received from the
// feed and doubles as the ladder key; Qty is the only mutable field.
type Level struct {
	Price string
	Qty   float64
}

// Snapshot is a full replacement payload for both ladders.
type Snapshot struct {
	Bids []Level
	Asks []Level
}

// Ordering selects how price keys are compared inside a ladder.
type Ordering uint8

const (
	// LexicalOrder compares the raw price text byte-wise. "9.5" sorts after
	// "10.2" under this ordering.
	LexicalOrder Ordering = iota
	// NumericOrder compares the decimal value of the price text.
	NumericOrder
)

func (o Ordering) String() string {
	switch o {
	case LexicalOrder:
		return "lexical"
	case NumericOrder:
		return "numeric"
	default:
		return "unknown"
	}
}

// ParseOrdering maps a config value onto an Ordering.
func ParseOrdering(s string) (Ordering, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lexical":
		return LexicalOrder, nil
	case "numeric":
		return NumericOrder, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOrdering, s)
	}
}
