package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// DefaultTTL is the lifetime of a session token. Tokens are not renewable.
const DefaultTTL = 7 * 24 * time.Hour

var (
	ErrAccountBanned    = errors.New("account banned")
	ErrMalformed        = errors.New("malformed token")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
)

// Config is the process-wide signing configuration.
type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Claims is the signed claim set carried by a session token.
type Claims struct {
	UID      string      `json:"uid"`
	Username string      `json:"username"`
	Role     entity.Role `json:"role"`
	Phone    string      `json:"phone,omitempty"`
	Email    string      `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issuer mints and validates HS256 session tokens. It never reads the user
// store, so claims reflect the account as it was at issuance.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clockwork.Clock
	parser *jwt.Parser
}

func NewIssuer(cfg Config, clock clockwork.Clock) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("session: signing secret is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(clock.Now),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &Issuer{
		secret: secret,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		clock:  clock,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Issue signs a claim set for u valid for the configured TTL.
func (s *Issuer) Issue(u *entity.User) (string, error) {
	if u.Banned {
		return "", ErrAccountBanned
	}
	now := s.clock.Now()
	claims := Claims{
		UID:      u.UID,
		Username: u.Username,
		Role:     u.Role,
		Phone:    u.PhoneValue(),
		Email:    u.EmailValue(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.UID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Validate verifies signature and expiry and returns the embedded claims.
func (s *Issuer) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
