package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ladder-terminal/ladder/internal/adapter"
	"github.com/ladder-terminal/ladder/internal/adapter/kraken"
	"github.com/ladder-terminal/ladder/internal/book"
	"github.com/ladder-terminal/ladder/internal/config"
	"github.com/ladder-terminal/ladder/internal/dispatch"
	"github.com/ladder-terminal/ladder/internal/engine"
	"github.com/ladder-terminal/ladder/internal/health"
	"github.com/ladder-terminal/ladder/internal/logging"
	"github.com/ladder-terminal/ladder/internal/metrics"
	"github.com/ladder-terminal/ladder/internal/publish"
	"github.com/ladder-terminal/ladder/internal/terminal"
)

// eventQueueSize bounds pending dispatcher events. Ticks beyond it are
// dropped; keystrokes wait.
const eventQueueSize = 1024

var errTerminated = errors.New("terminated by signal")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Print(config.Usage())
			return 0
		}
		fmt.Fprintf(os.Stderr, "%v\n\n%s", err, config.Usage())
		return 2
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log: %v\n", err)
		return 1
	}
	defer closer.Close()

	logger.Info().
		Str("pair", cfg.Pair).
		Dur("delay", cfg.Delay).
		Int("depth", cfg.Depth).
		Str("ordering", cfg.Ordering.String()).
		Msg("ladder starting")

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	// Raw mode turns Ctrl-C into a plain key, so only external signals land here.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel(errTerminated)
		case <-ctx.Done():
		}
	}()

	reg := metrics.Init(logger)
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	// Ingestion path.
	ws := adapter.NewWSClient(adapter.DefaultWSConfig(cfg.Feed.URL), logger)
	feed := kraken.New(ws, cfg.Pair, cfg.Depth, logger)
	defer feed.Close()

	ob := book.New(cfg.Depth, cfg.Ordering)
	buf := publish.NewBuffer(cfg.Depth)
	sched := publish.NewScheduler(cfg.Delay)
	sched.Start(ctx)
	d := dispatch.New(eventQueueSize)
	in := engine.NewIngestor(feed, ob, buf, sched, d, logger)

	// Projection sinks.
	bc := adapter.NewBroadcaster(logger)
	bc.Register(in)
	go metrics.Run(ctx, bc.Subscribe("metrics"))

	if cfg.Redis.Addr != "" {
		rc := adapter.NewGoRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rc.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, mirror will keep retrying")
		}
		pingCancel()

		rw := adapter.NewRedisWriter(rc, adapter.ExchangeKraken, cfg.Pair, bc.Subscribe("redis"), logger)
		go rw.Run(ctx)
	}

	if cfg.Health.Addr != "" {
		hs, err := health.New(cfg.Health.Addr, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create health server: %v\n", err)
			return 1
		}
		defer hs.GracefulStop()

		sm := adapter.NewStalenessMonitor(adapter.StalenessConfig{
			StaleThreshold: cfg.Health.StaleAfter,
			PollInterval:   100 * time.Millisecond,
		}, bc.Subscribe("health"), logger)
		sm.OnChange(hs.SetServing)
		go sm.Run(ctx)

		go func() {
			if err := hs.Serve(); err != nil {
				logger.Error().Err(err).Msg("health server stopped")
			}
		}()
	}

	go bc.Run(ctx)

	restore, err := terminal.Raw(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	go func() {
		if err := in.Run(ctx); err != nil {
			cancel(err)
		}
	}()
	go func() {
		if err := terminal.ReadKeys(ctx, os.Stdin, d); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("key reader stopped")
		}
	}()

	renderer := terminal.NewRenderer(os.Stdout, cfg.Pair, terminal.IsTerminal(os.Stdout))
	err = d.Run(ctx, buf, renderer)

	if rerr := restore(); rerr != nil {
		logger.Warn().Err(rerr).Msg("restore terminal")
	}

	if err != nil {
		logger.Error().Err(err).Msg("ladder stopped")
		fmt.Fprintf(os.Stderr, "ladder: %v\n", err)
		return 1
	}
	logger.Info().Uint64("ticks_dropped", d.Dropped()).Msg("ladder stopped")
	return 0
}
