package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ladder-terminal/ladder/internal/book"
	"github.com/ladder-terminal/ladder/internal/publish"
)

// recordingDisplay captures every rendered projection.
type recordingDisplay struct {
	mu     sync.Mutex
	frames []publish.Projection
	err    error
}

func (r *recordingDisplay) Render(p publish.Projection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, p)
	return r.err
}

func (r *recordingDisplay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func runAsync(ctx context.Context, d *Dispatcher, src Source, display Display) <-chan error {
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, src, display) }()
	return done
}

func TestDispatcher_QuitKeyStopsLoop(t *testing.T) {
	d := New(16)
	display := &recordingDisplay{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := runAsync(ctx, d, publish.NewBuffer(10), display)

	if err := d.Input(ctx, QuitKey); err != nil {
		t.Fatalf("Input: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on quit, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on quit key")
	}
}

func TestDispatcher_OtherKeysIgnored(t *testing.T) {
	d := New(16)
	display := &recordingDisplay{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := runAsync(ctx, d, publish.NewBuffer(10), display)

	for _, k := range "abcQ\x03" {
		if err := d.Input(ctx, k); err != nil {
			t.Fatalf("Input: %v", err)
		}
	}

	select {
	case err := <-done:
		t.Fatalf("dispatcher stopped on a non-quit key: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if display.count() != 0 {
		t.Fatal("keystrokes should not render")
	}

	d.Input(ctx, QuitKey)
	<-done
}

func TestDispatcher_TickWithEmptyBookRendersEmpty(t *testing.T) {
	d := New(16)
	display := &recordingDisplay{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := runAsync(ctx, d, publish.NewBuffer(10), display)

	d.Tick()
	d.Input(ctx, QuitKey)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if display.count() != 1 {
		t.Fatalf("expected 1 frame, got %d", display.count())
	}
	if p := display.frames[0]; p.Len() != 0 {
		t.Fatalf("expected empty projection, got %+v", p)
	}
}

func TestDispatcher_TickRendersLatestBuffer(t *testing.T) {
	d := New(16)
	display := &recordingDisplay{}
	buf := publish.NewBuffer(10)
	buf.Store(func(bids, asks []book.Level) int {
		bids[0] = book.Level{Price: "100.0", Qty: 1}
		asks[0] = book.Level{Price: "101.0", Qty: 2}
		return 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := runAsync(ctx, d, buf, display)

	d.Tick()
	d.Input(ctx, QuitKey)
	<-done

	if display.count() != 1 {
		t.Fatalf("expected 1 frame, got %d", display.count())
	}
	p := display.frames[0]
	if p.Len() != 1 || p.Bids[0].Price != "100.0" || p.Asks[0].Price != "101.0" {
		t.Fatalf("unexpected frame: %+v", p)
	}
}

func TestDispatcher_ArrivalOrder(t *testing.T) {
	d := New(16)
	display := &recordingDisplay{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Queue before the loop starts: the quit key arrives after two ticks and
	// before a third, so exactly two frames render.
	d.Tick()
	d.Tick()
	d.Input(ctx, QuitKey)
	d.Tick()

	if err := d.Run(ctx, publish.NewBuffer(10), display); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if display.count() != 2 {
		t.Fatalf("expected 2 frames before quit, got %d", display.count())
	}
}

func TestDispatcher_TickDropsWhenFull(t *testing.T) {
	d := New(1)

	if !d.Tick() {
		t.Fatal("first tick should be queued")
	}
	if d.Tick() {
		t.Fatal("second tick should be dropped on a full queue")
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected 1 dropped tick, got %d", d.Dropped())
	}
}

func TestDispatcher_RenderErrorStopsLoop(t *testing.T) {
	d := New(4)
	boom := errors.New("terminal gone")
	display := &recordingDisplay{err: boom}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d.Tick()
	err := d.Run(ctx, publish.NewBuffer(10), display)
	if !errors.Is(err, boom) {
		t.Fatalf("expected render error, got %v", err)
	}
}

func TestDispatcher_CancelCause(t *testing.T) {
	d := New(4)
	fatal := errors.New("feed failed")

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(fatal)

	err := d.Run(ctx, publish.NewBuffer(10), &recordingDisplay{})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected cancel cause, got %v", err)
	}
}
