package alert

import (
	"context"

	"go.uber.org/zap"
)

// LoggingAlerter writes alerts to the service log at error level. Always
// available, used as the fallback channel.
type LoggingAlerter struct {
	log *zap.Logger
}

func NewLoggingAlerter(logger *zap.Logger) *LoggingAlerter {
	return &LoggingAlerter{log: logger}
}

func (a *LoggingAlerter) Name() string { return "logging" }

func (a *LoggingAlerter) SendAlert(_ context.Context, subject, message string, details map[string]any) error {
	a.log.Error("ALERT: "+subject,
		zap.String("message", message),
		zap.Any("details", details),
	)
	return nil
}
