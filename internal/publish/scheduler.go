package publish

import (
	"context"
	"time"
)

// Scheduler raises a "publish is due" signal on a fixed interval,
// independently of how fast feed messages arrive. The signal is a single
// slot: firings that happen before the signal is consumed collapse into one.
type Scheduler struct {
	interval time.Duration
	due      chan struct{}
}

// NewScheduler creates a Scheduler. Call Start to begin firing.
func NewScheduler(interval time.Duration) *Scheduler {
	return &Scheduler{
		interval: interval,
		due:      make(chan struct{}, 1),
	}
}

// Interval returns the configured publish interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Start launches the timer goroutine. It stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Fire()
			}
		}
	}()
}

// Fire raises the signal without blocking. A signal that is already pending
// absorbs this one.
func (s *Scheduler) Fire() {
	select {
	case s.due <- struct{}{}:
	default:
	}
}

// Due reports whether a publish is pending and clears it. It never blocks.
func (s *Scheduler) Due() bool {
	select {
	case <-s.due:
		return true
	default:
		return false
	}
}
