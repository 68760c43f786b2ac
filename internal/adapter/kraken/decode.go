package kraken

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ladder-terminal/ladder/internal/book"
)

// Sentinel errors returned by Decode.
var (
	ErrFeed         = errors.New("kraken: feed error")
	ErrUnknownShape = errors.New("kraken: unknown payload shape")
	ErrBadRecord    = errors.New("kraken: malformed level record")
)

// FeedError carries an errorMessage reported by the exchange.
type FeedError struct {
	Message string
}

func (e *FeedError) Error() string { return "kraken: feed error: " + e.Message }

// Unwrap lets errors.Is match ErrFeed.
func (e *FeedError) Unwrap() error { return ErrFeed }

// Kind classifies a decoded book payload.
type Kind int

const (
	Snapshot Kind = iota + 1
	AskDiff
	BidDiff
)

func (k Kind) String() string {
	switch k {
	case Snapshot:
		return "snapshot"
	case AskDiff:
		return "ask_diff"
	case BidDiff:
		return "bid_diff"
	default:
		return "unknown"
	}
}

// Message is one decoded book payload. Snapshot is set for Snapshot; Levels
// for AskDiff and BidDiff.
type Message struct {
	Kind     Kind
	Snapshot book.Snapshot
	Levels   []book.Level
}

// Side returns the ladder a diff applies to.
func (m Message) Side() book.Side {
	if m.Kind == BidDiff {
		return book.Bid
	}
	return book.Ask
}

// payload holds the members of a book object that matter; anything else
// (checksum "c", etc.) is ignored by encoding/json.
type payload struct {
	As           []json.RawMessage `json:"as"`
	Bs           []json.RawMessage `json:"bs"`
	A            []json.RawMessage `json:"a"`
	B            []json.RawMessage `json:"b"`
	ErrorMessage *string           `json:"errorMessage"`

	seen map[string]bool
}

func (p *payload) UnmarshalJSON(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	p.seen = make(map[string]bool, len(members))
	for k := range members {
		p.seen[k] = true
	}
	type plain payload
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	p.As, p.Bs, p.A, p.B, p.ErrorMessage = v.As, v.Bs, v.A, v.B, v.ErrorMessage
	return nil
}

// Decode parses one feed frame into book messages in payload order.
//
// Array frames carry book payload objects between the channel id and the
// trailing channel name and pair; non-object members are skipped. Object
// frames (heartbeat, systemStatus, subscriptionStatus) carry no book data
// and yield no messages unless they report an errorMessage, which is
// returned as a *FeedError.
func Decode(raw []byte) ([]Message, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("kraken: decode frame: empty")
	}

	switch trimmed[0] {
	case '{':
		var p payload
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("kraken: decode frame: %w", err)
		}
		if p.ErrorMessage != nil {
			return nil, &FeedError{Message: *p.ErrorMessage}
		}
		return nil, nil
	case '[':
	default:
		return nil, fmt.Errorf("kraken: decode frame: %w: not an array or object", ErrUnknownShape)
	}

	var members []json.RawMessage
	if err := json.Unmarshal(trimmed, &members); err != nil {
		return nil, fmt.Errorf("kraken: decode frame: %w", err)
	}

	var msgs []Message
	for _, m := range members {
		if !isObject(m) {
			continue
		}
		msg, err := decodePayload(m)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func decodePayload(raw json.RawMessage) (Message, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Message{}, fmt.Errorf("kraken: decode payload: %w", err)
	}
	if p.ErrorMessage != nil {
		return Message{}, &FeedError{Message: *p.ErrorMessage}
	}

	hasAs, hasBs := p.seen["as"], p.seen["bs"]
	hasA, hasB := p.seen["a"], p.seen["b"]

	switch {
	case hasAs || hasBs:
		if !hasAs || !hasBs || hasA || hasB {
			return Message{}, fmt.Errorf("%w: snapshot needs both as and bs", ErrUnknownShape)
		}
		asks, err := decodeLevels(p.As)
		if err != nil {
			return Message{}, err
		}
		bids, err := decodeLevels(p.Bs)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: Snapshot, Snapshot: book.Snapshot{Bids: bids, Asks: asks}}, nil
	case hasA && hasB:
		return Message{}, fmt.Errorf("%w: payload carries both a and b", ErrUnknownShape)
	case hasA:
		levels, err := decodeLevels(p.A)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: AskDiff, Levels: levels}, nil
	case hasB:
		levels, err := decodeLevels(p.B)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: BidDiff, Levels: levels}, nil
	default:
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownShape, truncate(raw, 64))
	}
}

// decodeLevels parses [price, qty, ts, ...] records. Quantities are parsed
// here so a bad record rejects the whole payload before the book is touched.
func decodeLevels(records []json.RawMessage) ([]book.Level, error) {
	levels := make([]book.Level, 0, len(records))
	for i, r := range records {
		var fields []string
		if err := json.Unmarshal(r, &fields); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrBadRecord, i, err)
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: record %d has %d fields", ErrBadRecord, i, len(fields))
		}
		qty, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d quantity %q: %v", ErrBadRecord, i, fields[1], err)
		}
		levels = append(levels, book.Level{Price: fields[0], Qty: qty})
	}
	return levels, nil
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimLeft(raw, " \t\r\n")
	return len(t) > 0 && t[0] == '{'
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// subscribeRequest is the Kraken subscription envelope.
type subscribeRequest struct {
	Event        string       `json:"event"`
	Subscription subscription `json:"subscription"`
	Pair         []string     `json:"pair"`
}

type subscription struct {
	Name  string `json:"name"`
	Depth int    `json:"depth"`
}

// SubscribeRequest builds the book subscription sent once after connecting.
func SubscribeRequest(pair string, depth int) ([]byte, error) {
	return json.Marshal(subscribeRequest{
		Event:        "subscribe",
		Subscription: subscription{Name: "book", Depth: depth},
		Pair:         []string{pair},
	})
}
