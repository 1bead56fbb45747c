// Package config builds the process configuration once at startup from the
// environment and an optional .env file.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/otp"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	OTPBackendMemory = "memory"
	OTPBackendRedis  = "redis"

	minSecretBytes = 32
)

var ErrMissingSecret = errors.New("config: JWT_SECRET is required outside dev mode")

type HTTP struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8431"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Prefix   string `env:"REDIS_OTP_PREFIX" envDefault:"otp"`
}

type Admin struct {
	Username     string `env:"ADMIN_USERNAME"`
	Password     string `env:"ADMIN_PASSWORD"`
	SecondFactor string `env:"ADMIN_SECOND_FACTOR"`
}

// Enabled reports whether all seed fields are set.
func (a Admin) Enabled() bool {
	return a.Username != "" && a.Password != "" && a.SecondFactor != ""
}

type Auth struct {
	Secret     string        `env:"JWT_SECRET"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"locket-auth"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`
	Dev        bool          `env:"DEV_MODE"`
	OTP        otp.Config
	Admin      Admin
}

type Config struct {
	Store         string `env:"STORE" envDefault:"memory"`
	OTPBackend    string `env:"OTP_BACKEND" envDefault:"memory"`
	SnowflakeNode int64  `env:"SNOWFLAKE_NODE" envDefault:"1"`

	HTTP     HTTP
	Database database.Config
	Redis    Redis
	Auth     Auth
	Log      utilities.Config

	// GeneratedSecret is set when a dev-mode secret was generated.
	GeneratedSecret bool `env:"-"`
}

// SigningSecret returns a copy of the session signing key.
func (c Config) SigningSecret() []byte {
	return []byte(c.Auth.Secret)
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("config: unknown STORE %q", c.Store)
	}
	switch c.OTPBackend {
	case OTPBackendMemory, OTPBackendRedis:
	default:
		return fmt.Errorf("config: unknown OTP_BACKEND %q", c.OTPBackend)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive")
	}

	if c.Auth.Secret == "" {
		if !c.Auth.Dev {
			return ErrMissingSecret
		}
		b := make([]byte, minSecretBytes)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("config: generate secret: %w", err)
		}
		c.Auth.Secret = string(b)
		c.GeneratedSecret = true
	} else if len(c.Auth.Secret) < minSecretBytes && !c.Auth.Dev {
		return fmt.Errorf("config: JWT_SECRET must be at least %d bytes", minSecretBytes)
	}

	admin := c.Auth.Admin
	if (admin.Username != "" || admin.Password != "" || admin.SecondFactor != "") && !admin.Enabled() {
		return fmt.Errorf("config: ADMIN_USERNAME, ADMIN_PASSWORD and ADMIN_SECOND_FACTOR must be set together")
	}
	return nil
}
