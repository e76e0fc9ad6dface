package jwks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// KeyStore shares fetched key set documents between resolvers, typically
// across many instances of the same function app.
type KeyStore interface {
	Get(ctx context.Context, jwksURL string) ([]byte, bool, error)
	Set(ctx context.Context, jwksURL string, doc []byte, ttl time.Duration) error
}

// RedisStore keeps key set documents in Redis under a TTL.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, jwksURL string) ([]byte, bool, error) {
	doc, err := s.rdb.Get(ctx, storeKey(jwksURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (s *RedisStore) Set(ctx context.Context, jwksURL string, doc []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, storeKey(jwksURL), doc, ttl).Err()
}

func storeKey(jwksURL string) string {
	sum := sha256.Sum256([]byte(jwksURL))
	return "fngate:jwks:" + hex.EncodeToString(sum[:])
}
