package video

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSourceExhausted is returned once a source cannot produce more frames,
// either because it could not be opened, it ended, or a read failed.
var ErrSourceExhausted = errors.New("video source exhausted")

// Source produces frames for the monitor loop.
type Source interface {
	// Read returns the next frame. Errors wrap ErrSourceExhausted.
	Read() (*Frame, error)

	// Close releases the source. It is safe to call more than once.
	Close() error
}

// SliceSource replays a fixed list of frames, then reports exhaustion.
// Each Read hands out a clone so the caller may draw on it.
type SliceSource struct {
	mu     sync.Mutex
	frames []*Frame
	next   int
	closed bool
	closes int
}

// NewSliceSource creates a source over frames.
func NewSliceSource(frames ...*Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

// Read implements Source.
func (s *SliceSource) Read() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: source closed", ErrSourceExhausted)
	}
	if s.next >= len(s.frames) {
		return nil, fmt.Errorf("%w: end of %d frames", ErrSourceExhausted, len(s.frames))
	}

	f := s.frames[s.next].Clone()
	s.next++
	if f.Seq == 0 {
		f.Seq = uint64(s.next)
	}
	if f.Captured.IsZero() {
		f.Captured = time.Now()
	}
	return f, nil
}

// Close implements Source.
func (s *SliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closes++
	return nil
}

// Closed reports whether Close has been called.
func (s *SliceSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Served returns how many frames have been read.
func (s *SliceSource) Served() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
