// Package video provides the frames and frame sources the monitor consumes.
package video

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"sync"
	"time"
)

// DefaultJPEGQuality is used when JPEG is called with a quality outside 1-100.
const DefaultJPEGQuality = 80

// Frame is one decoded image from a Source.
//
// The loop owns a frame until it publishes it; after that the frame must be
// treated as immutable, which is what makes the JPEG memo safe.
type Frame struct {
	Image    *image.RGBA
	Seq      uint64
	Captured time.Time

	mu       sync.Mutex
	jpegQ    int
	jpegData []byte
}

// NewFrame wraps img, converting it to RGBA when needed.
func NewFrame(img image.Image, seq uint64, captured time.Time) *Frame {
	return &Frame{Image: ToRGBA(img), Seq: seq, Captured: captured}
}

// ToRGBA returns img as *image.RGBA, copying only when it is another type.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// Bounds returns the image bounds, or the empty rectangle for a nil image.
func (f *Frame) Bounds() image.Rectangle {
	if f == nil || f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// Clone returns a deep copy of the frame without the encoded memo.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := &Frame{Seq: f.Seq, Captured: f.Captured}
	if f.Image != nil {
		c.Image = &image.RGBA{
			Pix:    append([]uint8(nil), f.Image.Pix...),
			Stride: f.Image.Stride,
			Rect:   f.Image.Rect,
		}
	}
	return c
}

// JPEG encodes the frame. The result is memoised per quality, so many
// stream readers polling the same published frame encode it once.
func (f *Frame) JPEG(quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.jpegData != nil && f.jpegQ == quality {
		return f.jpegData, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	f.jpegQ = quality
	f.jpegData = buf.Bytes()
	return f.jpegData, nil
}
