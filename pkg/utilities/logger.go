package utilities

import (
	"fmt"
	"io"
	"os"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction. It is filled from the environment by
// the config package.
type Config struct {
	Level string `env:"LOG_LEVEL"`
	Dev   bool   `env:"LOG_DEV"`

	// File, when set, is a strftime pattern such as /var/log/auth/api.%Y%m%d.log.
	File   string        `env:"LOG_FILE"`
	MaxAge time.Duration `env:"LOG_FILE_MAX_AGE" envDefault:"168h"`
	Rotate time.Duration `env:"LOG_FILE_ROTATE" envDefault:"24h"`
}

func levelFromString(l string, dev bool) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "":
		if dev {
			return zapcore.DebugLevel
		}
		return zapcore.InfoLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes and returns a *zap.Logger
func Init(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level, cfg.Dev)
	if cfg.Dev && cfg.File == "" {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		rl, err := rotatelogs.New(cfg.File,
			rotatelogs.WithMaxAge(cfg.MaxAge),
			rotatelogs.WithRotationTime(cfg.Rotate),
		)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, rl)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(out), lvl)
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(core, opts...), nil
}
