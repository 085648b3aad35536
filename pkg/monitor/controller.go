package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-fallwatch/internal/log"
	"github.com/teslashibe/go-fallwatch/pkg/video"
)

// Opener opens the video source for one run.
type Opener func() (video.Source, error)

// Status is the externally visible monitor state.
type Status struct {
	Running               bool       `json:"running"`
	Frames                uint64     `json:"frames"`
	ConsecutiveFallFrames int        `json:"consecutive_fall_frames"`
	FallConfirmed         bool       `json:"fall_confirmed"`
	AlertActive           bool       `json:"alert_active"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	LastAlert             *time.Time `json:"last_alert,omitempty"`
	LastError             string     `json:"last_error,omitempty"`
}

// Controller owns the run flag and at most one worker goroutine.
type Controller struct {
	loop   Loop
	open   Opener
	stats  *Stats
	logger *slog.Logger

	running atomic.Bool
	startMu sync.Mutex

	mu        sync.Mutex
	done      chan struct{}
	cancel    context.CancelFunc
	startedAt time.Time
	lastErr   error
}

// NewController creates a controller. Each Start runs a copy of loop
// against a source freshly obtained from open.
func NewController(loop Loop, open Opener) *Controller {
	c := &Controller{
		loop:   loop,
		open:   open,
		stats:  &Stats{},
		logger: loop.Logger,
	}
	if c.logger == nil {
		c.logger = log.With("component", "controller")
	}
	c.loop.Stats = c.stats
	return c
}

// Start spawns a worker unless one is running. It returns false when the
// monitor was already running.
func (c *Controller) Start() bool {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.running.Load() {
		return false
	}

	// The previous worker has cleared the flag but may still be closing
	// its source.
	c.mu.Lock()
	prev := c.done
	c.mu.Unlock()
	if prev != nil {
		<-prev
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.done = done
	c.cancel = cancel
	c.startedAt = c.loop.now()
	c.lastErr = nil
	c.mu.Unlock()

	c.running.Store(true)
	c.loop.Metrics.SetRunning(true)

	go c.work(ctx, cancel, done)
	return true
}

// Stop clears the run flag. The worker exits at the top of its next
// iteration. It returns false when the monitor was not running.
func (c *Controller) Stop() bool {
	return c.running.CompareAndSwap(true, false)
}

// Running reports the run flag.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// Err returns the error that ended the last run, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Status returns a snapshot of the monitor state.
func (c *Controller) Status() Status {
	snap := c.stats.Snapshot()
	st := Status{
		Running:               c.running.Load(),
		Frames:                snap.Frames,
		ConsecutiveFallFrames: snap.ConsecutiveFallFrames,
		FallConfirmed:         snap.FallConfirmed,
		AlertActive:           snap.AlertActive,
	}
	if !snap.LastAlert.IsZero() {
		t := snap.LastAlert
		st.LastAlert = &t
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.startedAt.IsZero() {
		t := c.startedAt
		st.StartedAt = &t
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Wait blocks until the current worker, if any, has exited.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the worker, interrupts any in-progress wait and waits for
// it to exit.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.Stop()
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	return c.Wait(ctx)
}

func (c *Controller) work(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	err := c.run(ctx)

	c.running.Store(false)
	c.loop.Metrics.SetRunning(false)

	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	now := c.loop.now()
	if err != nil {
		reason := failureReason(err)
		c.logger.Error("monitor stopped with error", "reason", reason, "error", err)
		c.loop.Metrics.LoopFailure(reason)
		ev := NewEvent(KindFailed, now)
		ev.Err = err.Error()
		c.loop.emit(ev)
		return
	}
	c.logger.Info("monitor stopped", "frames", c.stats.Snapshot().Frames)
	c.loop.emit(NewEvent(KindStopped, now))
}

func (c *Controller) run(ctx context.Context) error {
	if c.open == nil {
		return fmt.Errorf("%w: no source configured", video.ErrSourceExhausted)
	}
	src, err := c.open()
	if err != nil {
		if !errors.Is(err, video.ErrSourceExhausted) {
			err = fmt.Errorf("%w: %v", video.ErrSourceExhausted, err)
		}
		return err
	}

	c.logger.Info("monitor started")
	c.loop.emit(NewEvent(KindStarted, c.loop.now()))

	loop := c.loop
	return loop.Run(ctx, src, &c.running)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrDetectionFailure):
		return "detection"
	case errors.Is(err, video.ErrSourceExhausted):
		return "source"
	default:
		return "other"
	}
}
