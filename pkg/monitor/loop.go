// Package monitor runs the fall-event state machine over a video source.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-fallwatch/internal/log"
	"github.com/teslashibe/go-fallwatch/pkg/detection"
	"github.com/teslashibe/go-fallwatch/pkg/fall"
	"github.com/teslashibe/go-fallwatch/pkg/framebuf"
	"github.com/teslashibe/go-fallwatch/pkg/metrics"
	"github.com/teslashibe/go-fallwatch/pkg/overlay"
	"github.com/teslashibe/go-fallwatch/pkg/video"
)

// DefaultPacing is the pause between iterations.
const DefaultPacing = 30 * time.Millisecond

// Config holds the tunable loop parameters.
type Config struct {
	Thresholds      fall.Thresholds
	ThresholdFrames int
	Cooldown        time.Duration
	Pacing          time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds:      fall.DefaultThresholds(),
		ThresholdFrames: fall.DefaultThresholdFrames,
		Cooldown:        fall.DefaultCooldown,
		Pacing:          DefaultPacing,
	}
}

// Loop processes frames: detect, classify, debounce, gate, annotate, publish.
//
// Debounce and gate state live for one Run; every Run starts from zero,
// except that the cooldown resumes from the last alert recorded in Stats.
// Only Detector and Buffer are required.
type Loop struct {
	Config   Config
	Detector detection.Detector
	Buffer   *framebuf.Buffer
	Events   Sink
	Metrics  *metrics.Metrics
	Stats    *Stats
	Logger   *slog.Logger
	Clock    func() time.Time
}

type runState struct {
	debouncer     *fall.Debouncer
	gate          *fall.Gate
	episode       uuid.UUID
	lastFallRatio float64
	suppressed    bool
}

// Run executes until running is cleared, ctx is done, the source fails, or
// the detector fails. The source is always closed on return. A stop via the
// flag or ctx returns nil. src must not be nil.
func (l *Loop) Run(ctx context.Context, src video.Source, running *atomic.Bool) error {
	if src == nil {
		return fmt.Errorf("%w: no source", video.ErrSourceExhausted)
	}
	defer src.Close()

	if l.Detector == nil || l.Buffer == nil {
		return errors.New("monitor: loop needs a detector and a buffer")
	}

	logger := l.Logger
	if logger == nil {
		logger = log.With("component", "monitor")
	}

	st := &runState{
		debouncer: fall.NewDebouncer(l.Config.ThresholdFrames),
		gate:      fall.NewGate(l.Config.Cooldown),
	}
	st.gate.Resume(l.Stats.Snapshot().LastAlert)
	l.Stats.reset()

	pacing := l.Config.Pacing
	if pacing < 0 {
		pacing = 0
	}
	timer := time.NewTimer(0)
	<-timer.C
	defer timer.Stop()

	for running.Load() {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := src.Read()
		if err != nil {
			if !errors.Is(err, video.ErrSourceExhausted) {
				err = fmt.Errorf("%w: %v", video.ErrSourceExhausted, err)
			}
			return err
		}

		if err := l.step(ctx, st, frame, logger); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		l.Buffer.Publish(frame)

		timer.Reset(pacing)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
	return nil
}

func (l *Loop) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}

func (l *Loop) emit(ev Event) {
	if l.Events != nil {
		l.Events.Dispatch(ev)
	}
}

func (l *Loop) step(ctx context.Context, st *runState, frame *video.Frame, logger *slog.Logger) error {
	began := time.Now()
	boxes, err := l.Detector.Detect(ctx, frame)
	l.Metrics.ObserveDetect(time.Since(began))
	if err != nil {
		return &DetectionError{Seq: frame.Seq, Err: err}
	}

	fallPositive := false
	for _, b := range boxes {
		sig := fall.Classify(b, l.Config.Thresholds)
		r := image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
		if sig.IsFall {
			fallPositive = true
			st.lastFallRatio = sig.AspectRatio
			overlay.DrawBox(frame.Image, r, overlay.Red, overlay.FallThickness)
			overlay.LabelAbove(frame.Image, r, "FALL DETECTED!", overlay.Red)
		} else {
			overlay.DrawBox(frame.Image, r, overlay.Green, overlay.PersonThickness)
			overlay.LabelAbove(frame.Image, r, fmt.Sprintf("Person: %.2f", b.Confidence), overlay.Green)
		}
		overlay.LabelBelow(frame.Image, r, fmt.Sprintf("Ratio: %.2f", sig.AspectRatio), overlay.White)
	}

	count := st.debouncer.Update(fallPositive)
	confirmed := st.debouncer.Confirmed()
	now := l.now()

	switch st.gate.Evaluate(confirmed, now) {
	case fall.Fire:
		st.episode = uuid.New()
		ev := NewEvent(KindFallAlert, now)
		ev.Episode = st.episode
		ev.AspectRatio = st.lastFallRatio
		ev.ConsecutiveFrames = count
		ev.Frame = frame.Clone()
		ev.Message = "fall confirmed"
		logger.Warn("fall confirmed",
			"frame", frame.Seq, "aspect_ratio", st.lastFallRatio, "consecutive", count)
		l.Metrics.AlertFired()
		l.Stats.alertFired(now)
		l.emit(ev)
	case fall.Reset:
		ev := NewEvent(KindRecovered, now)
		ev.Episode = st.episode
		ev.ConsecutiveFrames = count
		ev.Message = "person is safe again"
		logger.Info("fall alert reset", "frame", frame.Seq, "consecutive", count)
		st.episode = uuid.Nil
		l.Metrics.AlertReset()
		l.emit(ev)
	default:
		if s := st.gate.Suppressed(); s && !st.suppressed {
			logger.Debug("confirmed fall within cooldown", "frame", frame.Seq)
			l.Metrics.AlertSuppressed()
		}
	}
	st.suppressed = st.gate.Suppressed()

	overlay.Banner(frame.Image, confirmed, count)

	l.Metrics.ObserveFrame(len(boxes), fallPositive, count)
	l.Stats.observe(count, confirmed, st.gate.Active())
	return nil
}
