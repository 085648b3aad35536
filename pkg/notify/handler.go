package notify

import (
	"context"

	"github.com/teslashibe/go-fallwatch/pkg/monitor"
)

// Handler adapts a Notifier to the monitor dispatcher.
type Handler struct {
	name     string
	notifier Notifier
}

// NewHandler wraps n under the given handler name.
func NewHandler(name string, n Notifier) *Handler {
	return &Handler{name: name, notifier: n}
}

// Name implements monitor.Handler.
func (h *Handler) Name() string { return h.name }

// Handle implements monitor.Handler.
func (h *Handler) Handle(ctx context.Context, ev monitor.Event) error {
	switch ev.Kind {
	case monitor.KindFallAlert:
		return h.notifier.SendAlert(ctx, Alert{
			Frame:             ev.Frame,
			AspectRatio:       ev.AspectRatio,
			Time:              ev.Time,
			Episode:           ev.Episode,
			ConsecutiveFrames: ev.ConsecutiveFrames,
		})
	case monitor.KindRecovered:
		return h.notifier.SendMessage(ctx, RecoveredText)
	case monitor.KindStarted:
		return h.notifier.SendMessage(ctx, StartedText)
	case monitor.KindStopped:
		return h.notifier.SendMessage(ctx, StoppedText)
	case monitor.KindFailed:
		return h.notifier.SendMessage(ctx, StoppedText+"\nError: "+ev.Err)
	}
	return nil
}
