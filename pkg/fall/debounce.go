package fall

// DefaultThresholdFrames is how many net fall-positive frames confirm a fall.
const DefaultThresholdFrames = 5

// Debouncer is an up/down counter over frame-level fall readings.
// It rises by one on every fall-positive frame and decays by one
// (floored at zero) on every other frame, so single-frame misdetections
// and short occlusions do not confirm or clear a fall.
//
// Debouncer is not safe for concurrent use; the monitor loop owns it.
type Debouncer struct {
	threshold int
	count     int
}

// NewDebouncer creates a debouncer confirming at threshold frames.
// Thresholds below 1 are treated as 1.
func NewDebouncer(threshold int) *Debouncer {
	if threshold < 1 {
		threshold = 1
	}
	return &Debouncer{threshold: threshold}
}

// Update feeds one frame and returns the new count.
// A frame with no detections at all is a negative frame.
func (d *Debouncer) Update(fallPositive bool) int {
	if fallPositive {
		d.count++
	} else if d.count > 0 {
		d.count--
	}
	return d.count
}

// Count returns the current consecutive fall frame count.
func (d *Debouncer) Count() int {
	return d.count
}

// Threshold returns the confirmation threshold.
func (d *Debouncer) Threshold() int {
	return d.threshold
}

// Confirmed reports whether the count has reached the threshold.
func (d *Debouncer) Confirmed() bool {
	return d.count >= d.threshold
}
