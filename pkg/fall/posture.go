// Package fall turns per-frame person detections into a debounced,
// cooldown-gated fall alert signal.
package fall

// PersonClassID is the COCO class index for "person".
const PersonClassID = 0

// Box is one detected person in pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float64
	Confidence     float64 // Detector confidence (0-1)
	ClassID        int
}

// Width returns X2 - X1.
func (b Box) Width() float64 {
	return b.X2 - b.X1
}

// Height returns Y2 - Y1.
func (b Box) Height() float64 {
	return b.Y2 - b.Y1
}

// Signal is the posture reading derived from a single box.
type Signal struct {
	IsFall      bool
	AspectRatio float64 // height / width, 0 for degenerate boxes
}

// Thresholds gate the posture heuristic.
type Thresholds struct {
	MinConfidence float64 // Box confidence must be strictly above this
	FallRatio     float64 // Aspect ratio must be strictly below this
}

// DefaultThresholds returns the production gates (0.5 / 0.5).
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConfidence: 0.5,
		FallRatio:     0.5,
	}
}

// AspectRatio returns height/width, or 0 when the box has no width.
func AspectRatio(b Box) float64 {
	w := b.Width()
	if w <= 0 {
		return 0
	}
	return b.Height() / w
}

// Classify reports whether a box looks like a person lying down.
// A lying person produces a wide, short box; a standing one is tall and
// narrow (ratio > 1).
func Classify(b Box, th Thresholds) Signal {
	ratio := AspectRatio(b)
	return Signal{
		// A zero-width box has ratio 0 but is never a fall.
		IsFall:      b.Width() > 0 && ratio < th.FallRatio && b.Confidence > th.MinConfidence,
		AspectRatio: ratio,
	}
}
