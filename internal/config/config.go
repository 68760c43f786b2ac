package config

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ladder-terminal/ladder/internal/book"
)

// ErrInvalid wraps every command-line or environment validation failure.
var ErrInvalid = errors.New("invalid configuration")

// AllowedDepths are the book depths the Kraken feed accepts.
var AllowedDepths = []int{10, 25, 100, 500, 1000}

// Config holds all application configuration.
type Config struct {
	Pair     string        `mapstructure:"pair"`
	Delay    time.Duration `mapstructure:"delay"`
	Depth    int           `mapstructure:"depth"`
	Ordering book.Ordering `mapstructure:"ordering"`
	Feed     FeedConfig
	Log      LogConfig
	Metrics  MetricsConfig
	Health   HealthConfig
	Redis    RedisConfig
}

// FeedConfig holds the market-data endpoint.
type FeedConfig struct {
	URL string `mapstructure:"url"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig holds the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// HealthConfig holds the gRPC health listener. An empty Addr disables it.
type HealthConfig struct {
	Addr       string        `mapstructure:"addr"`
	StaleAfter time.Duration `mapstructure:"stale_ms"`
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// mirror.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// flag name → viper key
var flagKeys = map[string]string{
	"pair":         "pair",
	"ms":           "delay",
	"depth":        "depth",
	"url":          "feed.url",
	"ordering":     "ordering",
	"log-level":    "log.level",
	"log-file":     "log.file",
	"metrics-addr": "metrics.addr",
	"health-addr":  "health.addr",
	"redis-addr":   "redis.addr",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("ladder", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.StringP("pair", "p", "XBT/USD", "currency pair to subscribe to")
	fs.IntP("ms", "m", 1, "publish interval in milliseconds")
	fs.Int("depth", 10, "book depth to subscribe to (10, 25, 100, 500, 1000)")
	fs.String("url", "wss://ws.kraken.com/", "websocket feed endpoint")
	fs.String("ordering", "lexical", "price ordering: lexical or numeric")
	fs.String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	fs.String("log-file", "", "write logs to this file instead of stderr")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.String("health-addr", "", "serve gRPC health on this address")
	fs.String("redis-addr", "", "mirror the latest view into Redis at this address")
	return fs
}

// Usage returns the command-line help text.
func Usage() string {
	var b strings.Builder
	b.WriteString("Usage: ladder [flags]\n\n")
	b.WriteString("Live bounded-depth order book viewer. Press q to quit.\n\n")
	b.WriteString("Flags:\n")
	b.WriteString(newFlagSet().FlagUsages())
	b.WriteString("  -h, --help                 show this help\n")
	return b.String()
}

// Load parses args (without the program name) and reads environment
// variables prefixed with LADDER_. Flags win over environment, environment
// wins over defaults. A help request returns pflag.ErrHelp.
func Load(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected argument %q", ErrInvalid, fs.Arg(0))
	}

	v := viper.New()
	v.SetEnvPrefix("LADDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("pair", "XBT/USD")
	v.SetDefault("delay", 1)
	v.SetDefault("depth", 10)
	v.SetDefault("ordering", "lexical")
	v.SetDefault("feed.url", "wss://ws.kraken.com/")

	// Log defaults
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.file", "")
	v.SetDefault("log.pretty", true)

	// Sink defaults
	v.SetDefault("metrics.addr", "")
	v.SetDefault("health.addr", "")
	v.SetDefault("health.stale_ms", 5000)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", name, err)
		}
	}

	cfg := &Config{
		Pair:  strings.TrimSpace(v.GetString("pair")),
		Delay: time.Duration(v.GetInt("delay")) * time.Millisecond,
		Depth: v.GetInt("depth"),
		Feed: FeedConfig{
			URL: v.GetString("feed.url"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			File:   v.GetString("log.file"),
			Pretty: v.GetBool("log.pretty"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
		Health: HealthConfig{
			Addr:       v.GetString("health.addr"),
			StaleAfter: time.Duration(v.GetInt("health.stale_ms")) * time.Millisecond,
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}

	ordering, err := book.ParseOrdering(v.GetString("ordering"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.Ordering = ordering

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pair == "" {
		return fmt.Errorf("%w: pair must not be empty", ErrInvalid)
	}
	if c.Delay < time.Millisecond {
		return fmt.Errorf("%w: publish interval must be at least 1ms", ErrInvalid)
	}
	if !slices.Contains(AllowedDepths, c.Depth) {
		return fmt.Errorf("%w: depth %d not in %v", ErrInvalid, c.Depth, AllowedDepths)
	}
	if c.Feed.URL == "" {
		return fmt.Errorf("%w: feed url must not be empty", ErrInvalid)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.Log.Level)
	}
	if c.Health.StaleAfter <= 0 {
		return fmt.Errorf("%w: health stale threshold must be positive", ErrInvalid)
	}
	return nil
}
