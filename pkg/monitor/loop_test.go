package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-fallwatch/pkg/detection"
	"github.com/teslashibe/go-fallwatch/pkg/fall"
	"github.com/teslashibe/go-fallwatch/pkg/framebuf"
	"github.com/teslashibe/go-fallwatch/pkg/metrics"
	"github.com/teslashibe/go-fallwatch/pkg/video"
)

func newTestLoop(det detection.Detector, rec *recorder) *Loop {
	cfg := DefaultConfig()
	cfg.Pacing = 0
	return &Loop{
		Config:   cfg,
		Detector: det,
		Buffer:   framebuf.New(),
		Events:   rec,
		Metrics:  metrics.New(),
		Stats:    &Stats{},
		Clock:    newStepClock(33 * time.Millisecond).Now,
	}
}

func runFlag() *atomic.Bool {
	var b atomic.Bool
	b.Store(true)
	return &b
}

func TestLoop_FiresOnFifthFallFrame(t *testing.T) {
	rec := &recorder{}
	det := detection.NewScript(detection.Repeat(detection.Step{Boxes: []fall.Box{lyingBox}}, 8)...)
	l := newTestLoop(det, rec)
	src := video.NewSliceSource(frames(8)...)

	err := l.Run(context.Background(), src, runFlag())
	if !errors.Is(err, video.ErrSourceExhausted) {
		t.Fatalf("Run: got %v, want ErrSourceExhausted", err)
	}

	evs := rec.all()
	if len(evs) != 1 || evs[0].Kind != KindFallAlert {
		t.Fatalf("events: got %v, want one fall_alert", rec.kinds())
	}
	ev := evs[0]
	if ev.ConsecutiveFrames != 5 {
		t.Errorf("ConsecutiveFrames: got %d, want 5", ev.ConsecutiveFrames)
	}
	if ev.AspectRatio != 0.3 {
		t.Errorf("AspectRatio: got %v, want 0.3", ev.AspectRatio)
	}
	if ev.Frame == nil || ev.Frame.Seq != 5 {
		t.Fatalf("alert frame: got %+v, want seq 5", ev.Frame)
	}
	latest, version := l.Buffer.Latest()
	if version != 8 {
		t.Errorf("buffer version: got %d, want 8", version)
	}
	if latest == ev.Frame {
		t.Error("alert frame must be a clone, not the published frame")
	}
	if !src.Closed() {
		t.Error("source not closed")
	}

	snap := l.Stats.Snapshot()
	if snap.Frames != 8 || snap.ConsecutiveFallFrames != 8 || !snap.FallConfirmed || !snap.AlertActive {
		t.Errorf("stats: got %+v", snap)
	}
}

func TestLoop_RecoveryEmitsResetWithSameEpisode(t *testing.T) {
	rec := &recorder{}
	steps := detection.Repeat(detection.Step{Boxes: []fall.Box{lyingBox}}, 5)
	steps = append(steps, detection.Step{Boxes: []fall.Box{standingBox}})
	l := newTestLoop(detection.NewScript(steps...), rec)

	l.Run(context.Background(), video.NewSliceSource(frames(6)...), runFlag())

	evs := rec.all()
	if len(evs) != 2 || evs[0].Kind != KindFallAlert || evs[1].Kind != KindRecovered {
		t.Fatalf("events: got %v", rec.kinds())
	}
	if evs[0].Episode != evs[1].Episode {
		t.Error("recovered event should share the alert's episode")
	}
	if evs[1].ConsecutiveFrames != 4 {
		t.Errorf("ConsecutiveFrames on reset: got %d, want 4", evs[1].ConsecutiveFrames)
	}
	if evs[1].Frame != nil {
		t.Error("recovered event should not carry a frame")
	}
}

func TestLoop_FourFallFramesThenStandingNeverFires(t *testing.T) {
	rec := &recorder{}
	steps := detection.Repeat(detection.Step{Boxes: []fall.Box{lyingBox}}, 4)
	steps = append(steps, detection.Step{Boxes: []fall.Box{standingBox}}, detection.Step{})
	l := newTestLoop(detection.NewScript(steps...), rec)

	l.Run(context.Background(), video.NewSliceSource(frames(6)...), runFlag())

	if got := rec.count(KindFallAlert); got != 0 {
		t.Errorf("alerts: got %d, want 0", got)
	}
	if got := l.Stats.Snapshot().ConsecutiveFallFrames; got != 2 {
		t.Errorf("consecutive: got %d, want 2", got)
	}
}

func TestLoop_DetectionFailureEndsRun(t *testing.T) {
	boom := errors.New("inference crashed")
	det := detection.NewScript(detection.Step{}, detection.Step{}, detection.Step{Err: boom})
	l := newTestLoop(det, &recorder{})
	src := video.NewSliceSource(frames(5)...)

	err := l.Run(context.Background(), src, runFlag())
	if !errors.Is(err, ErrDetectionFailure) {
		t.Fatalf("got %v, want ErrDetectionFailure", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error should wrap the detector error: %v", err)
	}
	var de *DetectionError
	if !errors.As(err, &de) || de.Seq != 3 {
		t.Errorf("DetectionError: got %+v", de)
	}
	if !src.Closed() {
		t.Error("source not closed after detection failure")
	}
	if _, v := l.Buffer.Latest(); v != 2 {
		t.Errorf("failed frame must not be published: version %d", v)
	}
}

// Scenario E: clearing the flag mid-run stops within one iteration.
func TestLoop_StopsWithinOneIteration(t *testing.T) {
	running := runFlag()
	calls := 0
	det := detection.Func(func(ctx context.Context, f *video.Frame) ([]fall.Box, error) {
		calls++
		if calls == 3 {
			running.Store(false)
		}
		return nil, nil
	})
	l := newTestLoop(det, &recorder{})
	src := video.NewSliceSource(frames(10)...)

	if err := l.Run(context.Background(), src, running); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.Served() != 3 {
		t.Errorf("frames read: got %d, want 3", src.Served())
	}
	if _, v := l.Buffer.Latest(); v != 3 {
		t.Errorf("published frames: got %d, want 3", v)
	}
	if !src.Closed() {
		t.Error("source not closed after stop")
	}
}

func TestLoop_ContextCancelIsCleanStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	det := detection.Func(func(ctx context.Context, f *video.Frame) ([]fall.Box, error) {
		cancel()
		return nil, ctx.Err()
	})
	l := newTestLoop(det, &recorder{})
	src := &endless{}

	if err := l.Run(ctx, src, runFlag()); err != nil {
		t.Errorf("Run: got %v, want nil", err)
	}
	if !src.isClosed() {
		t.Error("source not closed")
	}
}

func TestLoop_NotRunningReadsNothing(t *testing.T) {
	var running atomic.Bool
	l := newTestLoop(detection.NewScript(), &recorder{})
	src := video.NewSliceSource(frames(2)...)

	if err := l.Run(context.Background(), src, &running); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.Served() != 0 || !src.Closed() {
		t.Errorf("served=%d closed=%v", src.Served(), src.Closed())
	}
}

func TestLoop_EmptyDetectionsDecay(t *testing.T) {
	steps := detection.Repeat(detection.Step{Boxes: []fall.Box{lyingBox}}, 3)
	steps = append(steps, detection.Step{}, detection.Step{Boxes: []fall.Box{}})
	l := newTestLoop(detection.NewScript(steps...), &recorder{})

	l.Run(context.Background(), video.NewSliceSource(frames(5)...), runFlag())

	if got := l.Stats.Snapshot().ConsecutiveFallFrames; got != 1 {
		t.Errorf("consecutive: got %d, want 1", got)
	}
}

func TestLoop_CooldownSuppressesSecondEpisode(t *testing.T) {
	rec := &recorder{}
	var steps []detection.Step
	steps = append(steps, detection.Repeat(detection.Step{Boxes: []fall.Box{lyingBox}}, 5)...)
	steps = append(steps, detection.Repeat(detection.Step{}, 5)...)
	steps = append(steps, detection.Repeat(detection.Step{Boxes: []fall.Box{lyingBox}}, 10)...)
	l := newTestLoop(detection.NewScript(steps...), rec)

	l.Run(context.Background(), video.NewSliceSource(frames(len(steps))...), runFlag())

	if got := rec.count(KindFallAlert); got != 1 {
		t.Errorf("alerts: got %d, want 1 (second within cooldown)", got)
	}
	if got := rec.count(KindRecovered); got != 1 {
		t.Errorf("resets: got %d, want 1", got)
	}
}

func TestLoop_AnnotatesBoxes(t *testing.T) {
	l := newTestLoop(detection.NewScript(detection.Step{Boxes: []fall.Box{lyingBox, standingBox}}), &recorder{})

	l.Run(context.Background(), video.NewSliceSource(frames(1)...), runFlag())

	f, _ := l.Buffer.Latest()
	if got := f.Image.RGBAAt(120, 159); got.R != 255 || got.G != 0 {
		t.Errorf("fall box edge: got %v, want red", got)
	}
	if got := f.Image.RGBAAt(100, 120); got.G != 255 || got.R != 0 {
		t.Errorf("person box edge: got %v, want green", got)
	}
}

func TestLoop_RequiresDetectorAndBuffer(t *testing.T) {
	src := video.NewSliceSource()
	err := (&Loop{}).Run(context.Background(), src, runFlag())
	if err == nil {
		t.Error("Expected error for an unconfigured loop")
	}
	if !src.Closed() {
		t.Error("source not closed")
	}
}

func TestLoop_CooldownCarriesAcrossRuns(t *testing.T) {
	rec := &recorder{}
	det := detection.Func(func(context.Context, *video.Frame) ([]fall.Box, error) {
		return []fall.Box{lyingBox}, nil
	})
	l := newTestLoop(det, rec)
	clock := newStepClock(time.Second)
	l.Clock = clock.Now

	// Fire at t=5s.
	l.Run(context.Background(), video.NewSliceSource(frames(6)...), runFlag())
	// Confirmed again at t=11s, inside the 30s cooldown.
	l.Run(context.Background(), video.NewSliceSource(frames(6)...), runFlag())
	if got := rec.count(KindFallAlert); got != 1 {
		t.Fatalf("alerts after restart within cooldown: got %d, want 1", got)
	}
	// Suppressed until t=35s, then fires once.
	l.Run(context.Background(), video.NewSliceSource(frames(30)...), runFlag())

	var alerts []Event
	for _, ev := range rec.all() {
		if ev.Kind == KindFallAlert {
			alerts = append(alerts, ev)
		}
	}
	if len(alerts) != 2 {
		t.Fatalf("alerts: got %d, want 2", len(alerts))
	}
	if gap := alerts[1].Time.Sub(alerts[0].Time); gap < l.Config.Cooldown {
		t.Errorf("alerts %v apart, cooldown %v", gap, l.Config.Cooldown)
	}
}

func TestLoop_NilSource(t *testing.T) {
	l := newTestLoop(detection.NewScript(), &recorder{})
	if err := l.Run(context.Background(), nil, runFlag()); !errors.Is(err, video.ErrSourceExhausted) {
		t.Errorf("Run(nil): got %v, want ErrSourceExhausted", err)
	}
}
