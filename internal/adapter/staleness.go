package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ladder-terminal/ladder/internal/publish"
)

// StalenessConfig holds tunable parameters for the StalenessMonitor.
type StalenessConfig struct {
	// StaleThreshold is the maximum age of the last projection before the
	// view is considered stale. Default: 5s.
	StaleThreshold time.Duration

	// PollInterval is how frequently the monitor re-evaluates freshness
	// while no projection arrives. Default: 100ms.
	PollInterval time.Duration
}

// DefaultStalenessConfig returns production-tuned defaults.
func DefaultStalenessConfig() StalenessConfig {
	return StalenessConfig{
		StaleThreshold: 5 * time.Second,
		PollInterval:   100 * time.Millisecond,
	}
}

// StalenessMonitor tracks when the last projection was published and
// reports whether the view is fresh. A monitor that has never seen a
// projection is unhealthy.
type StalenessMonitor struct {
	cfg  StalenessConfig
	feed <-chan publish.Projection
	log  zerolog.Logger

	mu       sync.RWMutex
	last     time.Time
	lastSeq  uint64
	reported bool
	onChange func(healthy bool)

	nowFunc func() time.Time // injectable clock for testing
}

// NewStalenessMonitor creates a monitor fed by a Broadcaster subscription.
func NewStalenessMonitor(cfg StalenessConfig, feed <-chan publish.Projection, logger zerolog.Logger) *StalenessMonitor {
	return &StalenessMonitor{
		cfg:     cfg,
		feed:    feed,
		log:     logger.With().Str("component", "staleness").Logger(),
		nowFunc: time.Now,
	}
}

// OnChange registers fn to be called on every health transition. Must be
// called before Run.
func (sm *StalenessMonitor) OnChange(fn func(healthy bool)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Healthy reports whether a projection arrived within StaleThreshold.
func (sm *StalenessMonitor) Healthy() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.healthyLocked(sm.nowFunc())
}

// LastSeq returns the sequence number of the most recent projection seen.
func (sm *StalenessMonitor) LastSeq() uint64 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastSeq
}

func (sm *StalenessMonitor) healthyLocked(now time.Time) bool {
	if sm.last.IsZero() {
		return false
	}
	return now.Sub(sm.last) <= sm.cfg.StaleThreshold
}

// Run consumes the feed and polls for staleness until ctx is cancelled or
// the feed is closed.
func (sm *StalenessMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(sm.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-sm.feed:
			if !ok {
				return
			}
			sm.record(p)
		case <-ticker.C:
			sm.evaluate()
		}
	}
}

func (sm *StalenessMonitor) record(p publish.Projection) {
	sm.mu.Lock()
	sm.last = sm.nowFunc()
	sm.lastSeq = p.Seq
	sm.mu.Unlock()
	sm.evaluate()
}

// evaluate fires onChange when health differs from the last reported state.
func (sm *StalenessMonitor) evaluate() {
	sm.mu.Lock()
	healthy := sm.healthyLocked(sm.nowFunc())
	changed := healthy != sm.reported
	sm.reported = healthy
	fn := sm.onChange
	seq := sm.lastSeq
	sm.mu.Unlock()

	if !changed {
		return
	}
	if healthy {
		sm.log.Info().Uint64("seq", seq).Msg("view fresh")
	} else {
		sm.log.Warn().Uint64("seq", seq).Dur("threshold", sm.cfg.StaleThreshold).Msg("view stale")
	}
	if fn != nil {
		fn(healthy)
	}
}
