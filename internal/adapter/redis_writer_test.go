package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ladder-terminal/ladder/internal/book"
	"github.com/ladder-terminal/ladder/internal/publish"
)

// mockRedis records every HSet call for assertion.
type mockRedis struct {
	mu    sync.Mutex
	calls []hsetCall
	err   error
}

type hsetCall struct {
	Key    string
	Fields map[string]string
}

func (m *mockRedis) HSet(_ context.Context, key string, values ...any) error {
	fields := make(map[string]string)
	for i := 0; i+1 < len(values); i += 2 {
		k, _ := values[i].(string)
		v, _ := values[i+1].(string)
		fields[k] = v
	}
	m.mu.Lock()
	m.calls = append(m.calls, hsetCall{Key: key, Fields: fields})
	err := m.err
	m.mu.Unlock()
	return err
}

func (m *mockRedis) getCalls() []hsetCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]hsetCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func TestRedisWriter_HSetCommand(t *testing.T) {
	mock := &mockRedis{}
	feed := make(chan publish.Projection, 8)

	rw := NewRedisWriter(mock, ExchangeKraken, "XBT/USD", feed, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go rw.Run(ctx)

	feed <- publish.Projection{
		Seq: 42,
		At:  time.UnixMilli(1700000000000),
		Bids: []book.Level{
			{Price: "100.0", Qty: 1.5},
			{Price: "101.0", Qty: 2},
		},
		Asks: []book.Level{
			{Price: "102.0", Qty: 0.25},
			{Price: "103.0", Qty: 3},
		},
	}

	// Wait for the write to propagate.
	deadline := time.After(time.Second)
	for {
		calls := mock.getCalls()
		if len(calls) > 0 {
			c := calls[0]
			if c.Key != "book:kraken:XBT/USD" {
				t.Fatalf("wrong key: %s", c.Key)
			}
			if want := `[["100.0","1.5"],["101.0","2"]]`; c.Fields["bids"] != want {
				t.Fatalf("expected bids %s, got %s", want, c.Fields["bids"])
			}
			if want := `[["102.0","0.25"],["103.0","3"]]`; c.Fields["asks"] != want {
				t.Fatalf("expected asks %s, got %s", want, c.Fields["asks"])
			}
			if c.Fields["seq"] != "42" {
				t.Fatalf("expected seq '42', got %q", c.Fields["seq"])
			}
			if c.Fields["ts"] != "1700000000000" {
				t.Fatalf("expected ts '1700000000000', got %q", c.Fields["ts"])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for HSET call")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRedisWriter_EmptyLadders(t *testing.T) {
	mock := &mockRedis{}
	feed := make(chan publish.Projection, 8)

	rw := NewRedisWriter(mock, ExchangeKraken, "ETH/USD", feed, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go rw.Run(ctx)

	feed <- publish.Projection{Seq: 1, At: time.UnixMilli(1)}

	waitFor(t, "HSET", func() bool { return len(mock.getCalls()) == 1 })

	c := mock.getCalls()[0]
	if c.Fields["bids"] != "[]" || c.Fields["asks"] != "[]" {
		t.Fatalf("expected empty arrays, got bids=%s asks=%s", c.Fields["bids"], c.Fields["asks"])
	}
}

func TestRedisWriter_DuplicateSuppression(t *testing.T) {
	mock := &mockRedis{}
	feed := make(chan publish.Projection, 8)

	rw := NewRedisWriter(mock, ExchangeKraken, "XBT/USD", feed, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go rw.Run(ctx)

	base := publish.Projection{
		Seq:  1,
		At:   time.UnixMilli(1000),
		Bids: []book.Level{{Price: "100.0", Qty: 3}},
		Asks: []book.Level{{Price: "101.0", Qty: 2}},
	}

	// Send the same ladders three times.
	feed <- base

	dup := base
	dup.Seq = 2
	dup.At = time.UnixMilli(2000)
	feed <- dup

	dup2 := base
	dup2.Seq = 3
	dup2.At = time.UnixMilli(3000)
	feed <- dup2

	// Wait for processing.
	time.Sleep(200 * time.Millisecond)

	calls := mock.getCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 HSET call (duplicates suppressed), got %d", len(calls))
	}

	// A changed quantity triggers a second write.
	changed := base
	changed.Seq = 4
	changed.Bids = []book.Level{{Price: "100.0", Qty: 1}}
	changed.At = time.UnixMilli(4000)
	feed <- changed

	time.Sleep(200 * time.Millisecond)

	calls = mock.getCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 HSET calls after change, got %d", len(calls))
	}
	if calls[1].Fields["bids"] != `[["100.0","1"]]` {
		t.Fatalf("expected updated bids, got %s", calls[1].Fields["bids"])
	}
	if calls[1].Fields["seq"] != "4" {
		t.Fatalf("expected seq '4', got %q", calls[1].Fields["seq"])
	}
}

func TestRedisWriter_ErrorIsNotFatal(t *testing.T) {
	mock := &mockRedis{err: errors.New("connection refused")}
	feed := make(chan publish.Projection, 8)

	rw := NewRedisWriter(mock, ExchangeKraken, "XBT/USD", feed, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go rw.Run(ctx)

	feed <- publish.Projection{Seq: 1, Bids: []book.Level{{Price: "1", Qty: 1}}}
	feed <- publish.Projection{Seq: 2, Bids: []book.Level{{Price: "2", Qty: 1}}}

	waitFor(t, "both HSET attempts", func() bool { return len(mock.getCalls()) == 2 })
}
