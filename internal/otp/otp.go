// Package otp holds one-time-code challenges for phone sign-in.
//
// A challenge is keyed by normalized phone number. Issuing a new challenge
// replaces any previous one for the same phone. Verification runs as one
// atomic step per phone: expired or exhausted challenges are deleted when they
// are next addressed, a correct code deletes the challenge, and a wrong code
// consumes one attempt. The attempt counter is incremented before the code is
// compared, so the third submission is the last one that can succeed.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 3
	CodeLength         = 6
)

var (
	ErrNotFound        = errors.New("otp not found")
	ErrExpired         = errors.New("otp expired")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrInvalidCode     = errors.New("invalid otp")
)

// ChallengeStore is implemented by MemoryStore and RedisStore.
type ChallengeStore interface {
	// Request stores a fresh challenge for phone and returns its code.
	Request(ctx context.Context, phone string) (string, error)
	// Verify consumes one attempt against the challenge for phone.
	Verify(ctx context.Context, phone, code string) error
}

// Config tunes challenge lifetime and attempt bound.
type Config struct {
	TTL         time.Duration `env:"OTP_TTL" envDefault:"5m"`
	MaxAttempts int           `env:"OTP_MAX_ATTEMPTS" envDefault:"3"`
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Challenge is the stored state of one outstanding code.
type Challenge struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// attempt applies one verification to c at now. keep reports whether c must
// stay stored afterwards.
func (c *Challenge) attempt(now time.Time, code string, maxAttempts int) (keep bool, err error) {
	if now.After(c.ExpiresAt) {
		return false, ErrExpired
	}
	if c.Attempts >= maxAttempts {
		return false, ErrTooManyAttempts
	}
	c.Attempts++
	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) != 1 {
		return true, ErrInvalidCode
	}
	return false, nil
}

var codeSpace = big.NewInt(900000)

// GenerateCode returns a uniformly random code in 100000-999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
