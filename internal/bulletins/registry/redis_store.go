package registry

import (
	"context"
	"fmt"

	"github.com/2beens/bulletinboard/internal/telemetry/tracing"

	"github.com/go-redis/redis/v8"
)

const DefaultRedisKey = "bulletins-registry"

var _ Store = (*RedisStore)(nil)

// RedisStore keeps the registry in one redis hash, page id -> url
type RedisStore struct {
	redisClient *redis.Client
	key         string
}

func NewRedisStore(redisClient *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		redisClient: redisClient,
		key:         key,
	}
}

func (s *RedisStore) Load(ctx context.Context) (_ Registry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "registry.redis.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	// missing key gives an empty map, not redis.Nil
	raw, err := s.redisClient.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}

	return fromRaw(raw, "redis:"+s.key), nil
}

// Save replaces the whole hash inside MULTI/EXEC
func (s *RedisStore) Save(ctx context.Context, reg Registry) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "registry.redis.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	// fixed field order keeps the command args deterministic
	var values []interface{}
	for _, page := range Pages {
		if url, ok := reg[page]; ok {
			values = append(values, string(page), url)
		}
	}

	_, err = s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save registry to %s: %w", s.key, err)
	}

	return nil
}
