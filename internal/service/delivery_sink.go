package service

import (
	"context"

	"go.uber.org/zap"
)

// DeliverySink performs the per-recipient send. Production deployments would
// back this with a messaging gateway; the bundled implementation logs the
// send, which makes redelivery after a crash harmless.
type DeliverySink interface {
	Deliver(ctx context.Context, announcementID int64, recipient int64, content string) error
}

// LogSink is the stand-in gateway: every delivery is a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a logging delivery sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Deliver logs the send and reports success.
func (s *LogSink) Deliver(ctx context.Context, announcementID int64, recipient int64, content string) error {
	s.logger.Info("delivering announcement",
		zap.Int64("announcement_id", announcementID),
		zap.Int64("recipient", recipient),
		zap.String("content", content),
	)
	return nil
}
