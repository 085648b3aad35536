package monitor

import (
	"image"
	"sync"
	"time"

	"github.com/teslashibe/go-fallwatch/pkg/fall"
	"github.com/teslashibe/go-fallwatch/pkg/video"
)

var (
	lyingBox    = fall.Box{X1: 20, Y1: 100, X2: 220, Y2: 160, Confidence: 0.9}
	standingBox = fall.Box{X1: 100, Y1: 20, X2: 160, Y2: 220, Confidence: 0.9}
)

func blankFrame() *video.Frame {
	return &video.Frame{Image: image.NewRGBA(image.Rect(0, 0, 320, 240))}
}

func frames(n int) []*video.Frame {
	out := make([]*video.Frame, n)
	for i := range out {
		out[i] = blankFrame()
	}
	return out
}

// recorder is a synchronous Sink.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Dispatch(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) kinds() []Kind {
	var out []Kind
	for _, ev := range r.all() {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) count(k Kind) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// endless produces blank frames until closed.
type endless struct {
	mu     sync.Mutex
	seq    uint64
	closed bool
}

func (e *endless) Read() (*video.Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, video.ErrSourceExhausted
	}
	e.seq++
	f := blankFrame()
	f.Seq = e.seq
	return f, nil
}

func (e *endless) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *endless) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
