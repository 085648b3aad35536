// Package notify delivers fall alerts and lifecycle messages to people and
// downstream systems.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-fallwatch/pkg/video"
)

// ErrNotification marks a failed delivery.
var ErrNotification = errors.New("notification failed")

// Lifecycle message texts.
const (
	StartedText   = "🟢 Fall detection system STARTED\nMonitoring for falls..."
	StoppedText   = "🔴 Fall detection system STOPPED"
	RecoveredText = "✅ Person is safe again. Fall alert reset."
)

// Alert describes one confirmed fall.
type Alert struct {
	Frame             *video.Frame
	AspectRatio       float64
	Time              time.Time
	Episode           uuid.UUID
	ConsecutiveFrames int
}

// Notifier sends alerts and plain messages.
type Notifier interface {
	SendAlert(ctx context.Context, a Alert) error
	SendMessage(ctx context.Context, text string) error
}

// payload is the JSON body published by the machine-facing sinks.
type payload struct {
	Kind              string    `json:"kind"`
	Time              time.Time `json:"time"`
	Episode           string    `json:"episode,omitempty"`
	AspectRatio       float64   `json:"aspect_ratio,omitempty"`
	ConsecutiveFrames int       `json:"consecutive_frames,omitempty"`
	Text              string    `json:"text,omitempty"`
}

func alertPayload(a Alert) ([]byte, error) {
	p := payload{
		Kind:              "fall_alert",
		Time:              a.Time.UTC(),
		AspectRatio:       a.AspectRatio,
		ConsecutiveFrames: a.ConsecutiveFrames,
	}
	if a.Episode != uuid.Nil {
		p.Episode = a.Episode.String()
	}
	return json.Marshal(p)
}

func messagePayload(text string, at time.Time) ([]byte, error) {
	return json.Marshal(payload{Kind: "message", Time: at.UTC(), Text: text})
}
