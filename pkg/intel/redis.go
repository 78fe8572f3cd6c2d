package intel

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/TryMightyAI/mirage/pkg/extract"
)

// RedisAggregator stores the aggregated intelligence view in Redis sets,
// so multiple gateway nodes share one append-only view. Keys:
//
//	mirage:intel:<type>                global set per artifact type
//	mirage:intel:session:<id>:<type>   per-session set per artifact type
type RedisAggregator struct {
	client *redis.Client
}

// NewRedisAggregator connects to Redis and verifies the connection.
func NewRedisAggregator(ctx context.Context, addr string) (*RedisAggregator, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisAggregator{client: client}, nil
}

func globalKey(t extract.ArtifactType) string {
	return "mirage:intel:" + string(t)
}

func sessionKey(sessionID string, t extract.ArtifactType) string {
	return "mirage:intel:session:" + sessionID + ":" + string(t)
}

// Merge appends artifacts via SADD; set semantics give idempotent merges.
func (a *RedisAggregator) Merge(ctx context.Context, sessionID string, artifacts []extract.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}

	pipe := a.client.Pipeline()
	for _, art := range artifacts {
		pipe.SAdd(ctx, globalKey(art.Type), art.Value)
		pipe.SAdd(ctx, sessionKey(sessionID, art.Type), art.Value)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis merge: %w", err)
	}
	return nil
}

// SessionView returns the per-session aggregated view.
func (a *RedisAggregator) SessionView(ctx context.Context, sessionID string) (View, error) {
	view := make(View)
	for _, t := range extract.AllTypes {
		values, err := a.client.SMembers(ctx, sessionKey(sessionID, t)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis smembers: %w", err)
		}
		if len(values) > 0 {
			view[t] = values
		}
	}
	return view, nil
}

// GlobalView returns the cross-session aggregated view.
func (a *RedisAggregator) GlobalView(ctx context.Context) (View, error) {
	view := make(View)
	for _, t := range extract.AllTypes {
		values, err := a.client.SMembers(ctx, globalKey(t)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis smembers: %w", err)
		}
		if len(values) > 0 {
			view[t] = values
		}
	}
	return view, nil
}

// Close releases the Redis connection.
func (a *RedisAggregator) Close() error {
	return a.client.Close()
}

var _ Aggregator = (*RedisAggregator)(nil)
