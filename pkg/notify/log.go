package notify

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-fallwatch/internal/log"
)

// Log writes alerts to the structured log. It is the notifier used when
// alerts are only shown on the web stream.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log notifier. A nil logger uses the global one.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = log.With("component", "notify")
	}
	return &Log{logger: logger}
}

// SendAlert implements Notifier.
func (l *Log) SendAlert(_ context.Context, a Alert) error {
	l.logger.Warn("FALL DETECTED",
		"time", a.Time.Format("2006-01-02 15:04:05"),
		"aspect_ratio", a.AspectRatio,
		"consecutive_frames", a.ConsecutiveFrames,
		"episode", a.Episode,
	)
	return nil
}

// SendMessage implements Notifier.
func (l *Log) SendMessage(_ context.Context, text string) error {
	l.logger.Info("notification", "text", text)
	return nil
}
