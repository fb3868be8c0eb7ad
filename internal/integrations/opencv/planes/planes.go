// Package planes copies YUV 4:2:0 plane data between camera buffers and the
// tightly packed layouts OpenCV expects.
package planes

import (
	"fmt"

	"presence-gate/internal/core/models"
)

// Luma returns the Y plane of frame as a packed width*height buffer,
// honouring row and pixel stride.
func Luma(frame *models.RawFrame) ([]byte, error) {
	if frame == nil || len(frame.Planes) == 0 {
		return nil, fmt.Errorf("frame has no luma plane")
	}
	w, h := frame.Width, frame.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", w, h)
	}
	y := frame.Planes[0]
	ps := y.PixelStride
	if ps <= 0 {
		ps = 1
	}
	rs := y.RowStride
	if rs <= 0 {
		rs = w * ps
	}
	if need := (h-1)*rs + (w-1)*ps + 1; len(y.Data) < need {
		return nil, fmt.Errorf("luma plane too short: %d < %d", len(y.Data), need)
	}

	out := make([]byte, w*h)
	if ps == 1 {
		for row := 0; row < h; row++ {
			copy(out[row*w:(row+1)*w], y.Data[row*rs:row*rs+w])
		}
		return out, nil
	}
	for row := 0; row < h; row++ {
		base := row * rs
		for col := 0; col < w; col++ {
			out[row*w+col] = y.Data[base+col*ps]
		}
	}
	return out, nil
}

// SplitI420 wraps a packed I420 buffer (Y, then U, then V) as three planes.
// The planes alias data.
func SplitI420(data []byte, width, height int) ([]models.Plane, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("I420 needs even positive dimensions, got %dx%d", width, height)
	}
	ySize := width * height
	cSize := ySize / 4
	if len(data) < ySize+2*cSize {
		return nil, fmt.Errorf("I420 buffer too short: %d < %d", len(data), ySize+2*cSize)
	}
	cw := width / 2
	return []models.Plane{
		{Data: data[:ySize], RowStride: width, PixelStride: 1},
		{Data: data[ySize : ySize+cSize], RowStride: cw, PixelStride: 1},
		{Data: data[ySize+cSize : ySize+2*cSize], RowStride: cw, PixelStride: 1},
	}, nil
}
