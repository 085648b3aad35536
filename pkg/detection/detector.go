// Package detection provides person detectors for the fall monitor.
package detection

import (
	"context"
	"sync"

	"github.com/teslashibe/go-fallwatch/pkg/fall"
	"github.com/teslashibe/go-fallwatch/pkg/video"
)

// Detector finds people in a frame. An empty result is not an error.
type Detector interface {
	Detect(ctx context.Context, frame *video.Frame) ([]fall.Box, error)
}

// Func adapts an ordinary function to Detector.
type Func func(ctx context.Context, frame *video.Frame) ([]fall.Box, error)

// Detect implements Detector.
func (f Func) Detect(ctx context.Context, frame *video.Frame) ([]fall.Box, error) {
	return f(ctx, frame)
}

// Step is one scripted detector response.
type Step struct {
	Boxes []fall.Box
	Err   error
}

// Script replays canned responses, one per Detect call. Once the steps run
// out it returns no boxes.
type Script struct {
	mu    sync.Mutex
	steps []Step
	calls int
}

// NewScript creates a scripted detector.
func NewScript(steps ...Step) *Script {
	return &Script{steps: steps}
}

// Repeat returns n copies of step.
func Repeat(step Step, n int) []Step {
	out := make([]Step, n)
	for i := range out {
		out[i] = step
	}
	return out
}

// Detect implements Detector.
func (s *Script) Detect(ctx context.Context, _ *video.Frame) ([]fall.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++
	if i >= len(s.steps) {
		return nil, nil
	}
	st := s.steps[i]
	return append([]fall.Box(nil), st.Boxes...), st.Err
}

// Calls returns how many times Detect has run.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
