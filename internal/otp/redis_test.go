package otp

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreKeepsAttemptsAndTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStore(rdb, "", newClock(), Config{})
	s.generate = func() (string, error) { return "135790", nil }

	_, err := s.Request(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, 2*DefaultTTL, mr.TTL("otp:"+phone))

	require.ErrorIs(t, s.Verify(ctx, phone, "000000"), ErrInvalidCode)

	assert.Equal(t, "1", mr.HGet("otp:"+phone, "attempts"))
	assert.Equal(t, "135790", mr.HGet("otp:"+phone, "code"))
	assert.Equal(t, 2*DefaultTTL, mr.TTL("otp:"+phone))

	require.NoError(t, s.Verify(ctx, phone, "135790"))
	assert.False(t, mr.Exists("otp:"+phone))
}

func TestRedisStoreBackendFailure(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()

	s := NewRedisStore(rdb, "", newClock(), Config{})
	mr.Close()

	_, err := s.Request(ctx, phone)
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, s.Verify(ctx, phone, "123456"), ErrBackend)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, mr.Set("otp:"+phone, "not-a-hash"))
	s := NewRedisStore(rdb, "", newClock(), Config{})
	assert.ErrorIs(t, s.Verify(ctx, phone, "123456"), ErrBackend)
}

func TestRedisStoreRequestReplacesAttempts(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStore(rdb, "", newClock(), Config{})
	s.generate = func() (string, error) { return "246810", nil }

	_, err := s.Request(ctx, phone)
	require.NoError(t, err)
	for i := 0; i < DefaultMaxAttempts; i++ {
		require.ErrorIs(t, s.Verify(ctx, phone, "000000"), ErrInvalidCode)
	}

	_, err = s.Request(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, "0", mr.HGet("otp:"+phone, "attempts"))
	assert.NoError(t, s.Verify(ctx, phone, "246810"))
}
