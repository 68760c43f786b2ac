package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ladder-terminal/ladder/internal/publish"
)

var (
	FeedMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ladder_feed_messages_total", Help: "Decoded feed payloads by kind"}, []string{"kind"})
	BookEvictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ladder_book_evictions_total", Help: "Levels evicted to hold max depth, by side"}, []string{"side"})
	PublishCyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "ladder_publish_cycles_total", Help: "Completed publish cycles"})
	TicksDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "ladder_ticks_dropped_total", Help: "Ticks dropped because the dispatch queue was full"})
	BookLevels = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "ladder_book_levels", Help: "Levels in the last published projection, by side"}, []string{"side"})
)

// Init registers every ladder collector plus the Go and process collectors
// on a fresh registry.
func Init(logger zerolog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		FeedMessagesTotal, BookEvictionsTotal, PublishCyclesTotal, TicksDroppedTotal, BookLevels,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		_ = reg.Register(c)
	}
	logger.Debug().Msg("prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Record updates the level gauges from one projection.
func Record(p publish.Projection) {
	BookLevels.WithLabelValues("bid").Set(float64(len(p.Bids)))
	BookLevels.WithLabelValues("ask").Set(float64(len(p.Asks)))
}

// Run records every projection from feed until ctx is cancelled or feed is
// closed.
func Run(ctx context.Context, feed <-chan publish.Projection) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-feed:
			if !ok {
				return
			}
			Record(p)
		}
	}
}
