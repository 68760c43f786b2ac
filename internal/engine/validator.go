package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/ladder-terminal/ladder/internal/adapter/kraken"
	"github.com/ladder-terminal/ladder/internal/book"
)

// Sentinel errors returned by Validate.
var (
	ErrInvalidKind     = errors.New("invalid message kind")
	ErrPriceMissing    = errors.New("level has an empty price")
	ErrQuantityInvalid = errors.New("quantity must be finite and non-negative")
)

// Validate runs pre-flight checks on a decoded frame before any message in
// it reaches the book. It fails fast: the first failing check rejects the
// whole frame.
func Validate(msgs []kraken.Message) error {
	for i, m := range msgs {
		if err := validate(m); err != nil {
			return fmt.Errorf("message %d (%s): %w", i, m.Kind, err)
		}
	}
	return nil
}

func validate(m kraken.Message) error {
	switch m.Kind {
	case kraken.Snapshot:
		if err := validateLevels(m.Snapshot.Asks); err != nil {
			return fmt.Errorf("asks: %w", err)
		}
		if err := validateLevels(m.Snapshot.Bids); err != nil {
			return fmt.Errorf("bids: %w", err)
		}
		return nil
	case kraken.AskDiff, kraken.BidDiff:
		return validateLevels(m.Levels)
	default:
		return ErrInvalidKind
	}
}

// validateLevels rejects empty prices and quantities Kraken never sends.
// ParseFloat accepts "NaN" and "Inf", so they are caught here.
func validateLevels(levels []book.Level) error {
	for _, lv := range levels {
		if lv.Price == "" {
			return ErrPriceMissing
		}
		if math.IsNaN(lv.Qty) || math.IsInf(lv.Qty, 0) || lv.Qty < 0 {
			return fmt.Errorf("%w: %q has %v", ErrQuantityInvalid, lv.Price, lv.Qty)
		}
	}
	return nil
}
