package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/ladder-terminal/ladder/internal/book"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Pair != "XBT/USD" {
		t.Errorf("expected pair XBT/USD, got %s", cfg.Pair)
	}
	if cfg.Delay != time.Millisecond {
		t.Errorf("expected 1ms delay, got %s", cfg.Delay)
	}
	if cfg.Depth != 10 {
		t.Errorf("expected depth 10, got %d", cfg.Depth)
	}
	if cfg.Ordering != book.LexicalOrder {
		t.Errorf("expected lexical ordering, got %s", cfg.Ordering)
	}
	if cfg.Feed.URL != "wss://ws.kraken.com/" {
		t.Errorf("unexpected feed url: %s", cfg.Feed.URL)
	}
	if cfg.Log.Level != "warn" || !cfg.Log.Pretty || cfg.Log.File != "" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Metrics.Addr != "" || cfg.Health.Addr != "" || cfg.Redis.Addr != "" {
		t.Errorf("expected optional sinks disabled by default")
	}
	if cfg.Health.StaleAfter != 5*time.Second {
		t.Errorf("expected 5s stale threshold, got %s", cfg.Health.StaleAfter)
	}
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{"-p", "ETH/USD", "-m", "250", "--depth", "25", "--ordering", "numeric", "--redis-addr", "localhost:6379"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Pair != "ETH/USD" {
		t.Errorf("expected pair ETH/USD, got %s", cfg.Pair)
	}
	if cfg.Delay != 250*time.Millisecond {
		t.Errorf("expected 250ms delay, got %s", cfg.Delay)
	}
	if cfg.Depth != 25 {
		t.Errorf("expected depth 25, got %d", cfg.Depth)
	}
	if cfg.Ordering != book.NumericOrder {
		t.Errorf("expected numeric ordering, got %s", cfg.Ordering)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("unexpected redis addr: %s", cfg.Redis.Addr)
	}
}

func TestLoadLongFlags(t *testing.T) {
	cfg, err := Load([]string{"--pair=XBT/EUR", "--ms=5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pair != "XBT/EUR" || cfg.Delay != 5*time.Millisecond {
		t.Errorf("unexpected config: pair=%s delay=%s", cfg.Pair, cfg.Delay)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LADDER_PAIR", "ETH/EUR")
	t.Setenv("LADDER_DELAY", "100")
	t.Setenv("LADDER_HEALTH_STALE_MS", "750")
	t.Setenv("LADDER_REDIS_DB", "3")
	t.Setenv("LADDER_LOG_PRETTY", "false")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Pair != "ETH/EUR" {
		t.Errorf("expected pair ETH/EUR, got %s", cfg.Pair)
	}
	if cfg.Delay != 100*time.Millisecond {
		t.Errorf("expected 100ms delay, got %s", cfg.Delay)
	}
	if cfg.Health.StaleAfter != 750*time.Millisecond {
		t.Errorf("expected 750ms stale threshold, got %s", cfg.Health.StaleAfter)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("expected redis db 3, got %d", cfg.Redis.DB)
	}
	if cfg.Log.Pretty {
		t.Errorf("expected pretty logging disabled")
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("LADDER_PAIR", "ETH/EUR")

	cfg, err := Load([]string{"--pair", "XBT/USD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pair != "XBT/USD" {
		t.Errorf("expected flag to win, got %s", cfg.Pair)
	}
}

func TestLoadHelp(t *testing.T) {
	for _, arg := range []string{"-h", "--help"} {
		_, err := Load([]string{arg})
		if !errors.Is(err, pflag.ErrHelp) {
			t.Fatalf("%s: expected pflag.ErrHelp, got %v", arg, err)
		}
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string][]string{
		"non-numeric interval": {"-m", "fast"},
		"zero interval":        {"-m", "0"},
		"unknown flag":         {"--nope"},
		"bad depth":            {"--depth", "7"},
		"bad ordering":         {"--ordering", "random"},
		"bad log level":        {"--log-level", "loud"},
		"empty pair":           {"--pair", " "},
		"positional argument":  {"extra"},
	}
	for name, args := range cases {
		_, err := Load(args)
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestUsageListsFlags(t *testing.T) {
	u := Usage()
	for _, want := range []string{"--pair", "--ms", "--depth", "--help", "Press q"} {
		if !strings.Contains(u, want) {
			t.Errorf("usage missing %q", want)
		}
	}
}
