// Package redisstream appends published SMS envelopes to a Redis stream so
// consumers outside this process can pick them up.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Enriquefft/openclaw-sms-webhook/internal/bus"
)

// streamAdder is the slice of the go-redis client the sink needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Sink writes each envelope as one stream entry with fields
// "id", "source" and "envelope" (the JSON-encoded envelope).
type Sink struct {
	client streamAdder
	stream string
	maxLen int64
}

// New creates a sink on stream. A positive maxLen trims the stream
// approximately to that length on every add.
func New(client streamAdder, stream string, maxLen int64) *Sink {
	return &Sink{client: client, stream: stream, maxLen: maxLen}
}

// Dial parses a redis:// URL, checks the server is reachable and returns a
// sink backed by the new client. The caller owns the returned client.
func Dial(ctx context.Context, url, stream string, maxLen int64) (*Sink, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, stream, maxLen), rdb, nil
}

// Handle appends env to the stream.
func (s *Sink) Handle(ctx context.Context, env bus.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"id":       env.ID,
			"source":   env.Source,
			"envelope": string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

var _ bus.Listener = (*Sink)(nil)
