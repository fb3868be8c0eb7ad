package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"presence-gate/config"
	"presence-gate/internal/core/models"
	"presence-gate/internal/integrations/opencv/planes"

	gocv "gocv.io/x/gocv"
	log "github.com/sirupsen/logrus"
)

// FaceDetector zählt Gesichter mit einer Haar-Kaskade auf der Luma-Ebene
type FaceDetector struct {
	cascade      gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point

	mu sync.Mutex // CascadeClassifier ist nicht threadsicher
}

// NewFaceDetector lädt die Kaskade aus cfg.FaceCascade
func NewFaceDetector(cfg config.OpenCVConfig) (*FaceDetector, error) {
	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cfg.FaceCascade) {
		cascade.Close()
		return nil, fmt.Errorf("konnte Haar-Kaskade nicht laden: %s", cfg.FaceCascade)
	}

	fd := &FaceDetector{
		cascade:      cascade,
		scaleFactor:  cfg.ScaleFactor,
		minNeighbors: cfg.MinNeighbors,
		minSize:      image.Pt(cfg.MinSizeWidth, cfg.MinSizeHeight),
	}
	if fd.scaleFactor <= 1 {
		fd.scaleFactor = 1.1
	}
	if fd.minNeighbors <= 0 {
		fd.minNeighbors = 3
	}
	log.WithFields(logFields).Infof("Gesichtserkennung initialisiert (%s)", cfg.FaceCascade)
	return fd, nil
}

// DetectFaces liefert die Anzahl der Gesichter im Frame
func (fd *FaceDetector) DetectFaces(ctx context.Context, frame *models.RawFrame) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	gray, err := lumaMat(frame)
	if err != nil {
		return 0, err
	}
	defer gray.Close()

	// Kontrast angleichen, Kaskaden reagieren stark auf Belichtung
	eq := gocv.NewMat()
	defer eq.Close()
	gocv.EqualizeHist(gray, &eq)

	fd.mu.Lock()
	rects := fd.cascade.DetectMultiScaleWithParams(eq, fd.scaleFactor, fd.minNeighbors, 0, fd.minSize, image.Point{})
	fd.mu.Unlock()

	log.WithFields(logFields).Tracef("Frame %d: %d Gesichter", frame.Seq, len(rects))
	return len(rects), nil
}

// Close gibt die Kaskade frei
func (fd *FaceDetector) Close() error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.cascade.Close()
}

// lumaMat baut eine Graustufen-Mat aus der Y-Ebene
func lumaMat(frame *models.RawFrame) (gocv.Mat, error) {
	data, err := planes.Luma(frame)
	if err != nil {
		return gocv.Mat{}, err
	}
	return gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8U, data)
}
