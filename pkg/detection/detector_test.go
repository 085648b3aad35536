package detection

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-fallwatch/pkg/fall"
	"github.com/teslashibe/go-fallwatch/pkg/video"
)

func TestScript_ReplaysSteps(t *testing.T) {
	boom := errors.New("boom")
	lying := fall.Box{X2: 200, Y2: 60, Confidence: 0.9}
	s := NewScript(
		Step{Boxes: []fall.Box{lying}},
		Step{},
		Step{Err: boom},
	)
	ctx := context.Background()

	boxes, err := s.Detect(ctx, nil)
	if err != nil || len(boxes) != 1 || boxes[0] != lying {
		t.Fatalf("step 1: got %v, %v", boxes, err)
	}

	if boxes, err := s.Detect(ctx, nil); err != nil || len(boxes) != 0 {
		t.Fatalf("step 2: got %v, %v", boxes, err)
	}
	if _, err := s.Detect(ctx, nil); !errors.Is(err, boom) {
		t.Fatalf("step 3: got %v, want boom", err)
	}
	if boxes, err := s.Detect(ctx, nil); err != nil || boxes != nil {
		t.Fatalf("past end: got %v, %v", boxes, err)
	}
	if s.Calls() != 4 {
		t.Errorf("Calls: got %d, want 4", s.Calls())
	}

	again := NewScript(Step{Boxes: []fall.Box{lying}})
	first, _ := again.Detect(ctx, nil)
	first[0].X1 = 99
	if again.steps[0].Boxes[0].X1 != 0 {
		t.Error("Script leaked its step slice")
	}
}

func TestScript_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScript(Step{})
	if _, err := s.Detect(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestRepeat(t *testing.T) {
	steps := Repeat(Step{Boxes: []fall.Box{{Confidence: 1}}}, 5)
	if len(steps) != 5 {
		t.Fatalf("len: got %d, want 5", len(steps))
	}
}

func TestFunc(t *testing.T) {
	var d Detector = Func(func(ctx context.Context, f *video.Frame) ([]fall.Box, error) {
		return []fall.Box{{Confidence: 0.5}}, nil
	})
	boxes, err := d.Detect(context.Background(), nil)
	if err != nil || len(boxes) != 1 {
		t.Errorf("got %v, %v", boxes, err)
	}
}

func TestNewYOLO_MissingModel(t *testing.T) {
	cfg := DefaultYOLOConfig()
	cfg.ModelPath = "does/not/exist.onnx"
	if _, err := NewYOLO(cfg); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("got %v, want ErrModelNotFound", err)
	}
}

func TestYOLO_Decode(t *testing.T) {
	d := &YOLO{config: DefaultYOLOConfig()}

	// 2 classes (person, bicycle), 3 anchors, channel-major.
	const channels, anchors = 6, 3
	data := make([]float32, channels*anchors)
	set := func(a int, cx, cy, w, h, person, bike float32) {
		vals := []float32{cx, cy, w, h, person, bike}
		for c, v := range vals {
			data[c*anchors+a] = v
		}
	}
	set(0, 320, 320, 200, 100, 0.9, 0.1) // person
	set(1, 100, 100, 50, 50, 0.1, 0.95)  // bicycle
	set(2, 500, 500, 40, 40, 0.1, 0.0)   // person below threshold

	boxes := d.decode(data, channels, anchors, 1280, 640)
	if len(boxes) != 1 {
		t.Fatalf("boxes: got %d, want 1", len(boxes))
	}
	b := boxes[0]
	if b.X1 != 440 || b.X2 != 840 || b.Y1 != 270 || b.Y2 != 370 {
		t.Errorf("box: got %+v", b)
	}
	if b.ClassID != fall.PersonClassID {
		t.Errorf("ClassID: got %d", b.ClassID)
	}
}
