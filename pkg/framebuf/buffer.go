// Package framebuf holds the most recent annotated frame for stream readers.
package framebuf

import (
	"sync/atomic"

	"github.com/teslashibe/go-fallwatch/pkg/video"
)

type entry struct {
	frame   *video.Frame
	version uint64
}

// Buffer is a single-slot, latest-wins frame holder.
//
// One writer publishes; any number of readers call Latest concurrently.
// Readers always see a complete frame and its matching version.
type Buffer struct {
	cur     atomic.Pointer[entry]
	version atomic.Uint64
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Publish replaces the held frame. The frame must not be modified afterwards.
func (b *Buffer) Publish(f *video.Frame) {
	v := b.version.Add(1)
	b.cur.Store(&entry{frame: f, version: v})
}

// Latest returns the newest frame and its version, or (nil, 0) before the
// first Publish. Versions increase by one per Publish.
func (b *Buffer) Latest() (*video.Frame, uint64) {
	e := b.cur.Load()
	if e == nil {
		return nil, 0
	}
	return e.frame, e.version
}

// Version returns the version of the newest frame.
func (b *Buffer) Version() uint64 {
	e := b.cur.Load()
	if e == nil {
		return 0
	}
	return e.version
}
