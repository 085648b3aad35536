package monitor

import (
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-fallwatch/pkg/video"
)

// Kind names a monitor event.
type Kind string

// Event kinds.
const (
	KindStarted   Kind = "started"
	KindStopped   Kind = "stopped"
	KindFallAlert Kind = "fall_alert"
	KindRecovered Kind = "recovered"
	KindFailed    Kind = "failed"
)

// Event is something handlers may want to hear about. Fall alerts carry a
// private clone of the annotated frame; other kinds have no frame.
type Event struct {
	ID                uuid.UUID    `json:"id"`
	Episode           uuid.UUID    `json:"episode"`
	Kind              Kind         `json:"kind"`
	Time              time.Time    `json:"time"`
	AspectRatio       float64      `json:"aspect_ratio,omitempty"`
	ConsecutiveFrames int          `json:"consecutive_frames,omitempty"`
	Frame             *video.Frame `json:"-"`
	Message           string       `json:"message,omitempty"`
	Err               string       `json:"error,omitempty"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(kind Kind, at time.Time) Event {
	return Event{ID: uuid.New(), Kind: kind, Time: at}
}

// Sink receives events. Implementations must not block the caller.
type Sink interface {
	Dispatch(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Dispatch implements Sink.
func (f SinkFunc) Dispatch(ev Event) { f(ev) }
