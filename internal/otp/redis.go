package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// ErrBackend wraps Redis failures.
var ErrBackend = errors.New("otp backend unavailable")

// verifyScript applies one attempt to the challenge hash at KEYS[1] in a
// single server-side step.
//
// ARGV: now (unix micros), submitted code, max attempts.
var verifyScript = redis.NewScript(`
local c = redis.call('HMGET', KEYS[1], 'code', 'expires_at', 'attempts')
if not c[1] then
	return 'not_found'
end
if tonumber(ARGV[1]) > tonumber(c[2]) then
	redis.call('DEL', KEYS[1])
	return 'expired'
end
local attempts = tonumber(c[3])
if attempts >= tonumber(ARGV[3]) then
	redis.call('DEL', KEYS[1])
	return 'too_many_attempts'
end
if c[1] ~= ARGV[2] then
	redis.call('HSET', KEYS[1], 'attempts', attempts + 1)
	return 'invalid'
end
redis.call('DEL', KEYS[1])
return 'ok'
`)

var verifyResults = map[string]error{
	"ok":                nil,
	"not_found":         ErrNotFound,
	"expired":           ErrExpired,
	"too_many_attempts": ErrTooManyAttempts,
	"invalid":           ErrInvalidCode,
}

// RedisStore shares challenges between API replicas. Each challenge is a hash
// holding code, expires_at and attempts; Verify runs as one Lua script so
// concurrent attempts from any replica are serialized by Redis.
type RedisStore struct {
	redis    redis.UniversalClient
	prefix   string
	clock    clockwork.Clock
	cfg      Config
	generate func() (string, error)
}

func NewRedisStore(client redis.UniversalClient, prefix string, clock clockwork.Clock, cfg Config) *RedisStore {
	if prefix == "" {
		prefix = "otp"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisStore{
		redis:    client,
		prefix:   prefix,
		clock:    clock,
		cfg:      cfg.withDefaults(),
		generate: GenerateCode,
	}
}

func (s *RedisStore) key(phone string) string {
	return s.prefix + ":" + phone
}

// keyTTL outlives the challenge so an expired code is still reported as
// expired rather than missing; Redis reclaims it afterwards.
func (s *RedisStore) keyTTL() time.Duration {
	return 2 * s.cfg.TTL
}

func (s *RedisStore) Request(ctx context.Context, phone string) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", err
	}
	key := s.key(phone)
	expiresAt := s.clock.Now().Add(s.cfg.TTL).UnixMicro()
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "code", code, "expires_at", expiresAt, "attempts", 0)
		pipe.Expire(ctx, key, s.keyTTL())
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return code, nil
}

func (s *RedisStore) Verify(ctx context.Context, phone, code string) error {
	now := strconv.FormatInt(s.clock.Now().UnixMicro(), 10)
	res, err := verifyScript.Run(ctx, s.redis, []string{s.key(phone)}, now, code, s.cfg.MaxAttempts).Text()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	verr, ok := verifyResults[res]
	if !ok {
		return fmt.Errorf("%w: unexpected verify result %q", ErrBackend, res)
	}
	return verr
}
