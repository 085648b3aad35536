package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-fallwatch/pkg/fall"
	"github.com/teslashibe/go-fallwatch/pkg/video"
)

// YOLOConfig holds YOLOv8 detector configuration.
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultYOLOConfig returns defaults for a YOLOv8n COCO export.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.25,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// ErrModelNotFound is returned when the ONNX file does not exist.
var ErrModelNotFound = errors.New("model file not found")

// YOLO detects people with a YOLOv8 ONNX model through OpenCV's DNN module.
// It reports only COCO class 0 (person) in frame pixel coordinates.
type YOLO struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
}

// NewYOLO loads the model.
func NewYOLO(cfg YOLOConfig) (*YOLO, error) {
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", cfg.InputWidth, cfg.InputHeight)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLO{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect implements Detector.
func (d *YOLO) Detect(ctx context.Context, frame *video.Frame) ([]fall.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil || frame.Image == nil {
		return nil, errors.New("empty frame")
	}

	img, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer img.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	sizes := output.Size()
	if len(sizes) != 3 || sizes[1] < 5 {
		return nil, fmt.Errorf("unexpected output shape %v", sizes)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	return d.decode(data, sizes[1], sizes[2], float32(img.Cols()), float32(img.Rows())), nil
}

// decode parses a YOLOv8 [1, 4+classes, anchors] tensor laid out channel-major.
func (d *YOLO) decode(data []float32, channels, anchors int, imgW, imgH float32) []fall.Box {
	var (
		rects  []image.Rectangle
		scores []float32
	)

	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)

	for i := 0; i < anchors; i++ {
		bestScore := float32(0)
		bestClass := -1
		for c := 4; c < channels; c++ {
			if s := data[c*anchors+i]; s > bestScore {
				bestScore = s
				bestClass = c - 4
			}
		}
		if bestClass != fall.PersonClassID || bestScore < d.config.ConfidenceThresh {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		rects = append(rects, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		scores = append(scores, bestScore)
	}

	if len(rects) == 0 {
		return nil
	}

	keep := gocv.NMSBoxes(rects, scores, d.config.ConfidenceThresh, d.config.NMSThresh)
	boxes := make([]fall.Box, 0, len(keep))
	for _, idx := range keep {
		r := rects[idx]
		boxes = append(boxes, fall.Box{
			X1:         float64(r.Min.X),
			Y1:         float64(r.Min.Y),
			X2:         float64(r.Max.X),
			Y2:         float64(r.Max.Y),
			Confidence: float64(scores[idx]),
			ClassID:    fall.PersonClassID,
		})
	}
	return boxes
}

// Close releases the network.
func (d *YOLO) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
