package otp

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers a code to the phone out of band.
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log instead of sending an SMS. It is meant
// for development deployments without an SMS provider.
type LogSender struct {
	logger *zap.SugaredLogger
}

func NewLogSender(logger *zap.SugaredLogger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, phone, code string) error {
	s.logger.Infow("otp issued", "phone", phone, "code", code)
	return nil
}
