// Package convert turns planar YUV 4:2:0 camera frames into RGBA buffers.
package convert

import (
	"fmt"
	"image"
	"math"

	"presence-gate/internal/core/models"
)

// BT.601-Koeffizienten (Full Range)
const (
	coeffRV = 1.370705
	coeffGU = 0.337633
	coeffGV = 0.698001
	coeffBU = 1.732446
)

// FormatError is returned when a frame does not have the expected three-plane
// 4:2:0 layout.
type FormatError struct {
	Plane  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Plane == "" {
		return fmt.Sprintf("unsupported pixel layout: %s", e.Reason)
	}
	return fmt.Sprintf("unsupported pixel layout: plane %s: %s", e.Plane, e.Reason)
}

var planeNames = [3]string{"Y", "U", "V"}

// YUV420ToRGBA converts frame into an interleaved RGBA buffer of the same
// dimensions. Every plane may carry its own row and pixel stride.
func YUV420ToRGBA(frame *models.RawFrame) (*models.VisualBuffer, error) {
	if err := Validate(frame); err != nil {
		return nil, err
	}

	w, h := frame.Width, frame.Height
	yp, up, vp := frame.Planes[0], frame.Planes[1], frame.Planes[2]

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		yRow := y * yp.RowStride
		uRow := (y / 2) * up.RowStride
		vRow := (y / 2) * vp.RowStride
		out := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			cx := x / 2
			lum := float64(yp.Data[yRow+x*yp.PixelStride])
			u := float64(up.Data[uRow+cx*up.PixelStride]) - 128
			v := float64(vp.Data[vRow+cx*vp.PixelStride]) - 128

			o := x * 4
			out[o] = clamp(lum + coeffRV*v)
			out[o+1] = clamp(lum - coeffGU*u - coeffGV*v)
			out[o+2] = clamp(lum + coeffBU*u)
			out[o+3] = 0xff
		}
	}

	return &models.VisualBuffer{RGBA: img, Seq: frame.Seq, CapturedAt: frame.CapturedAt}, nil
}

// Validate checks the plane geometry of frame without converting it.
func Validate(frame *models.RawFrame) error {
	if frame == nil {
		return &FormatError{Reason: "nil frame"}
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return &FormatError{Reason: fmt.Sprintf("invalid dimensions %dx%d", frame.Width, frame.Height)}
	}
	if len(frame.Planes) != 3 {
		return &FormatError{Reason: fmt.Sprintf("expected 3 planes, got %d", len(frame.Planes))}
	}

	chromaW := (frame.Width + 1) / 2
	chromaH := (frame.Height + 1) / 2
	for i, p := range frame.Planes {
		pw, ph := frame.Width, frame.Height
		if i > 0 {
			pw, ph = chromaW, chromaH
		}
		if err := checkPlane(planeNames[i], p, pw, ph); err != nil {
			return err
		}
	}
	return nil
}

func checkPlane(name string, p models.Plane, width, height int) error {
	if p.PixelStride < 1 {
		return &FormatError{Plane: name, Reason: fmt.Sprintf("pixel stride %d < 1", p.PixelStride)}
	}
	// Schrittweiten gegen len(Data) begrenzen, bevor multipliziert wird
	if width > 1 && p.PixelStride > len(p.Data)/(width-1) {
		return &FormatError{Plane: name, Reason: fmt.Sprintf("pixel stride %d exceeds buffer of %d bytes", p.PixelStride, len(p.Data))}
	}
	rowBytes := (width-1)*p.PixelStride + 1
	if height > 1 && p.RowStride > len(p.Data)/(height-1) {
		return &FormatError{Plane: name, Reason: fmt.Sprintf("row stride %d exceeds buffer of %d bytes", p.RowStride, len(p.Data))}
	}
	if p.RowStride < rowBytes {
		return &FormatError{Plane: name, Reason: fmt.Sprintf("row stride %d too small for %d samples", p.RowStride, width)}
	}
	// Die letzte Zeile darf kürzer als RowStride sein (Sensorpuffer ohne Padding am Ende)
	need := (height-1)*p.RowStride + rowBytes
	if len(p.Data) < need {
		return &FormatError{Plane: name, Reason: fmt.Sprintf("buffer holds %d bytes, need %d", len(p.Data), need)}
	}
	return nil
}

func clamp(v float64) uint8 {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}
