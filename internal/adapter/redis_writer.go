package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ladder-terminal/ladder/internal/book"
	"github.com/ladder-terminal/ladder/internal/publish"
)

// RedisClient abstracts the Redis operations used by RedisWriter.
// In production this is satisfied by GoRedis; in tests by a mock.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) error
}

// GoRedis adapts *redis.Client to RedisClient.
type GoRedis struct {
	Client *redis.Client
}

// NewGoRedis opens a go-redis client for addr.
func NewGoRedis(addr, password string, db int) *GoRedis {
	return &GoRedis{Client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// HSet implements RedisClient.
func (g *GoRedis) HSet(ctx context.Context, key string, values ...any) error {
	return g.Client.HSet(ctx, key, values...).Err()
}

// Ping checks the server is reachable.
func (g *GoRedis) Ping(ctx context.Context) error {
	return g.Client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (g *GoRedis) Close() error { return g.Client.Close() }

// RedisWriter mirrors the latest published ladders into a single Redis hash:
//
//	Key:    book:{exchange}:{pair}
//	Fields: bids, asks, seq, ts
//
// bids and asks are JSON arrays of [price, qty] string pairs. Each write
// overwrites the previous one; no history is kept. Writes are non-blocking:
// projections are buffered in an internal channel and flushed by a dedicated
// goroutine. Identical consecutive ladders are suppressed.
type RedisWriter struct {
	client RedisClient
	key    string
	feed   <-chan publish.Projection
	buf    chan publish.Projection
	log    zerolog.Logger

	mu   sync.Mutex
	last string
}

// NewRedisWriter creates a RedisWriter that reads from a Broadcaster
// subscription and writes to the given Redis client.
func NewRedisWriter(client RedisClient, exchange Exchange, pair string, feed <-chan publish.Projection, logger zerolog.Logger) *RedisWriter {
	return &RedisWriter{
		client: client,
		key:    fmt.Sprintf("book:%s:%s", exchange, pair),
		feed:   feed,
		buf:    make(chan publish.Projection, 1024),
		log:    logger.With().Str("component", "redis").Logger(),
	}
}

// Key returns the Redis hash key written to.
func (rw *RedisWriter) Key() string { return rw.key }

// Run starts two goroutines: one to drain the Broadcaster feed into an
// internal buffer, and one to flush buffered projections to Redis. It blocks
// until ctx is cancelled.
func (rw *RedisWriter) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-rw.feed:
				if !ok {
					return
				}
				select {
				case rw.buf <- p:
				default:
					// Buffer full; a later projection supersedes this one.
				}
			}
		}
	}()

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-rw.buf:
				rw.write(ctx, p)
			}
		}
	}()

	wg.Wait()
}

// write encodes both ladders, checks for duplicates, and issues an HSET.
func (rw *RedisWriter) write(ctx context.Context, p publish.Projection) {
	bids, err := encodeLevels(p.Bids)
	if err != nil {
		rw.log.Warn().Err(err).Msg("encode bids")
		return
	}
	asks, err := encodeLevels(p.Asks)
	if err != nil {
		rw.log.Warn().Err(err).Msg("encode asks")
		return
	}

	sig := bids + "|" + asks
	rw.mu.Lock()
	if sig == rw.last {
		rw.mu.Unlock()
		return
	}
	rw.last = sig
	rw.mu.Unlock()

	err = rw.client.HSet(ctx, rw.key,
		"bids", bids,
		"asks", asks,
		"seq", strconv.FormatUint(p.Seq, 10),
		"ts", strconv.FormatInt(p.At.UnixMilli(), 10),
	)
	if err != nil {
		rw.log.Warn().Err(err).Str("key", rw.key).Msg("hset failed")
	}
}

func encodeLevels(levels []book.Level) (string, error) {
	pairs := make([][2]string, len(levels))
	for i, lv := range levels {
		pairs[i] = [2]string{lv.Price, strconv.FormatFloat(lv.Qty, 'f', -1, 64)}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
