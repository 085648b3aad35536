package video

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Capture reads frames from a camera device or a video file/URL via OpenCV.
type Capture struct {
	source string

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	seq    uint64
	closed bool
}

// OpenCapture opens source, which is either a device index such as "0" or a
// file path / stream URL.
func OpenCapture(source string) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrSourceExhausted, source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: open %q: not opened", ErrSourceExhausted, source)
	}

	return &Capture{
		source: source,
		vc:     vc,
		mat:    gocv.NewMat(),
	}, nil
}

// Read implements Source.
func (c *Capture) Read() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("%w: %s closed", ErrSourceExhausted, c.source)
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, fmt.Errorf("%w: read %s", ErrSourceExhausted, c.source)
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: convert frame: %v", ErrSourceExhausted, err)
	}

	c.seq++
	return NewFrame(img, c.seq, time.Now()), nil
}

// Close implements Source.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	return c.vc.Close()
}

// String returns the capture source string.
func (c *Capture) String() string {
	return c.source
}
