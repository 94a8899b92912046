package infra

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

// consumeScript faz checagem + incremento numa só operação no Redis.
// Se o consumo passaria da capacidade, nada é gravado.
//
// KEYS[1] = bucket, ARGV = points, capacity, window(ms)
// retorno = {allowed(0|1), consumed, ttl(ms)}
var consumeScript = redis.NewScript(`
local points = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local consumed = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  ttl = window
end
if consumed + points > capacity then
  return {0, consumed, ttl}
end
consumed = redis.call('INCRBY', KEYS[1], points)
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
return {1, consumed, ttl}
`)

// RedisCounterStore é o CounterStore compartilhado entre réplicas do gateway.
// A atomicidade fica toda no Redis; não há cache local.
type RedisCounterStore struct {
	rdb    redis.UniversalClient
	window domain.Window
	prefix string
	scan   int64
}

type RedisCounterOption func(*RedisCounterStore)

func WithKeyPrefix(prefix string) RedisCounterOption {
	return func(s *RedisCounterStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithScanCount(n int64) RedisCounterOption {
	return func(s *RedisCounterStore) { s.scan = n }
}

func NewRedisCounterStore(rdb redis.UniversalClient, window domain.Window, opts ...RedisCounterOption) *RedisCounterStore {
	s := &RedisCounterStore{
		rdb:    rdb,
		window: window,
		prefix: "ratelimit:bucket",
		scan:   500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) bucketKey(key domain.Key) string {
	return s.prefix + ":" + sanitizeKey(string(key))
}

func (s *RedisCounterStore) Consume(ctx context.Context, key domain.Key, points int) (domain.Consumption, error) {
	if points < 1 {
		return domain.Consumption{}, errors.Errorf("invalid points %d", points)
	}

	res, err := consumeScript.Run(ctx, s.rdb,
		[]string{s.bucketKey(key)},
		points, s.window.Capacity, s.window.Duration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return domain.Consumption{}, errors.Wrapf(err, "redis consume %q", key)
	}
	if len(res) != 3 {
		return domain.Consumption{}, errors.Errorf("redis consume %q: unexpected reply %v", key, res)
	}

	consumed := int(res[1])
	cons := domain.Consumption{
		Consumed:  consumed,
		Remaining: max(s.window.Capacity-consumed, 0),
		ResetIn:   time.Duration(res[2]) * time.Millisecond,
	}
	if res[0] == 0 {
		return cons, domain.ErrOverLimit
	}
	return cons, nil
}

// Reset apaga todos os buckets com o prefixo do store.
func (s *RedisCounterStore) Reset(ctx context.Context) error {
	match := s.prefix + ":*"
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, s.scan).Result()
		if err != nil {
			return errors.Wrap(err, "redis scan")
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return errors.Wrap(err, "redis del")
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *RedisCounterStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisCounterStore) Disconnect() error {
	return s.rdb.Close()
}
