package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shubham-shewale/option-chain-feed/pkg/models"
)

const (
	latestKeyFmt  = "ticks:%s:latest"
	quoteKeyFmt   = "quote:%s"
	channelFmt    = "ticks.%s"
	redisSinkName = "redis"
)

// Compile-time check to ensure RedisSink implements TickSink
var _ TickSink = (*RedisSink)(nil)

// RedisSink mirrors ticks into Redis: the latest tick per symbol, the latest
// quote per token, and a PUBLISH on the symbol's tick channel.
type RedisSink struct {
	client RedisClient
	ttl    time.Duration
}

func NewRedisSink(client RedisClient, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, ttl: ttl}
}

func (r *RedisSink) Name() string { return redisSinkName }

func (r *RedisSink) Write(ctx context.Context, ev models.TickEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode tick %d: %w", ev.Seq, err)
	}

	// Atomic Update via MULTI/EXEC
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, LatestKey(ev.Symbol), payload, r.ttl)
	for token, q := range ev.Updates {
		b, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode quote %s: %w", token, err)
		}
		pipe.Set(ctx, QuoteKey(token), b, r.ttl)
	}
	pipe.Publish(ctx, Channel(ev.Symbol), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Quotes fetches the mirrored quotes for tokens (MGET). Missing tokens are omitted.
func (r *RedisSink) Quotes(ctx context.Context, tokens []string) (models.TickDiff, error) {
	out := make(models.TickDiff, len(tokens))
	if len(tokens) == 0 {
		return out, nil
	}

	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = QuoteKey(t)
	}
	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		var q models.Quote
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			return nil, fmt.Errorf("decode quote %s: %w", tokens[i], err)
		}
		out[tokens[i]] = q
	}
	return out, nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}

func LatestKey(symbol string) string { return fmt.Sprintf(latestKeyFmt, symbol) }
func QuoteKey(token string) string   { return fmt.Sprintf(quoteKeyFmt, token) }
func Channel(symbol string) string   { return fmt.Sprintf(channelFmt, symbol) }
