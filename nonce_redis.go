package queueworker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisGate struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisGate returns a NonceGate backed by Redis. Admission uses SETNX,
// so concurrent workers sharing the same prefix also share the dedup
// window. On a Redis failure the gate admits the message: processing twice
// beats silently dropping.
func NewRedisGate(client redis.UniversalClient, prefix string, ttl time.Duration) NonceGate {
	if prefix == "" {
		prefix = "queueworker:nonce:"
	}
	if ttl <= 0 {
		ttl = defaultGateTTL
	}
	return &redisGate{client: client, prefix: prefix, ttl: ttl}
}

func (g *redisGate) Admit(id string) bool {
	ok, err := g.client.SetNX(context.Background(), g.prefix+id, []byte{stateInFlight}, g.ttl).Result()
	if err != nil {
		return true
	}
	return ok
}

func (g *redisGate) Complete(id string) {
	_ = g.client.Set(context.Background(), g.prefix+id, []byte{stateComplete}, g.ttl).Err()
}

func (g *redisGate) Failed(id string) {
	_ = g.client.Set(context.Background(), g.prefix+id, []byte{stateFailed}, g.ttl).Err()
}
