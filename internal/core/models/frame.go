package models

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"
)

// ErrFrameReleased wird zurückgegeben, wenn ein Frame ein zweites Mal freigegeben wird
var ErrFrameReleased = errors.New("frame already released")

// Plane is one planar sample buffer of a YUV frame.
type Plane struct {
	Data        []byte
	RowStride   int // bytes between the start of two rows
	PixelStride int // bytes between two horizontally adjacent samples
}

// RawFrame is one camera sample. The pipeline owns it for the duration of a
// single analysis cycle and must Close it exactly once.
type RawFrame struct {
	Seq        uint64
	Width      int
	Height     int
	Rotation   int     // Grad: 0, 90, 180 oder 270
	Planes     []Plane // Y, U, V
	CapturedAt time.Time

	release func()
	closed  atomic.Bool
}

// NewRawFrame builds a frame over the given planes. release is invoked once
// when the frame is closed and may be nil.
func NewRawFrame(seq uint64, width, height, rotation int, planes []Plane, release func()) (*RawFrame, error) {
	switch rotation {
	case 0, 90, 180, 270:
	default:
		return nil, fmt.Errorf("unsupported rotation %d", rotation)
	}
	return &RawFrame{
		Seq:        seq,
		Width:      width,
		Height:     height,
		Rotation:   rotation,
		Planes:     planes,
		CapturedAt: time.Now(),
		release:    release,
	}, nil
}

// Available reports whether the underlying sensor buffer is still held.
func (f *RawFrame) Available() bool {
	return f != nil && !f.closed.Load()
}

// Close releases the sensor buffer. Only the first call reaches the release
// callback; later calls return ErrFrameReleased.
func (f *RawFrame) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return ErrFrameReleased
	}
	if f.release != nil {
		f.release()
	}
	return nil
}

// VisualBuffer is an interleaved RGBA image materialised from a RawFrame.
type VisualBuffer struct {
	*image.RGBA
	Seq        uint64
	CapturedAt time.Time
}

// Width of the buffer in pixels.
func (b *VisualBuffer) Width() int { return b.Rect.Dx() }

// Height of the buffer in pixels.
func (b *VisualBuffer) Height() int { return b.Rect.Dy() }
