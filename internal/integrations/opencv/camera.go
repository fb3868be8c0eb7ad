package opencv

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"time"

	"presence-gate/config"
	"presence-gate/internal/core/models"
	"presence-gate/internal/integrations/opencv/planes"

	gocv "gocv.io/x/gocv"
	log "github.com/sirupsen/logrus"
)

const maxReadFailures = 50

// FrameSink nimmt Kameraframes entgegen
type FrameSink interface {
	OnFrame(frame *models.RawFrame)
}

// CameraSource liest Frames von einer Kamera oder Datei und liefert sie
// als YUV-I420-Frames an eine FrameSink
type CameraSource struct {
	cfg     config.CameraConfig
	capture *gocv.VideoCapture
	seq     uint64
}

// OpenCamera öffnet das konfigurierte Gerät
func OpenCamera(cfg config.CameraConfig) (*CameraSource, error) {
	var device interface{} = cfg.Device
	if idx, err := strconv.Atoi(cfg.Device); err == nil {
		device = idx
	}
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("konnte Kamera %q nicht öffnen: %w", cfg.Device, err)
	}
	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	}
	log.WithFields(logFields).Infof("Kamera %s geöffnet", cfg.Device)
	return &CameraSource{cfg: cfg, capture: capture}, nil
}

// Run liest Frames, bis ctx endet oder die Quelle versiegt
func (c *CameraSource) Run(ctx context.Context, sink FrameSink) error {
	bgr := gocv.NewMat()
	defer bgr.Close()
	yuv := gocv.NewMat()
	defer yuv.Close()

	var pace <-chan time.Time
	if c.cfg.FPS > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(c.cfg.FPS))
		defer ticker.Stop()
		pace = ticker.C
	}

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !c.capture.Read(&bgr) || bgr.Empty() {
			failures++
			if failures >= maxReadFailures {
				return fmt.Errorf("kamera %s liefert keine Frames mehr", c.cfg.Device)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		failures = 0

		frame, err := c.toFrame(bgr, &yuv)
		if err != nil {
			log.WithFields(logFields).WithError(err).Warn("Frame verworfen")
			continue
		}
		sink.OnFrame(frame)

		if pace != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-pace:
			}
		}
	}
}

func (c *CameraSource) toFrame(bgr gocv.Mat, yuv *gocv.Mat) (*models.RawFrame, error) {
	w, h := bgr.Cols()&^1, bgr.Rows()&^1
	if w != bgr.Cols() || h != bgr.Rows() {
		// I420 braucht gerade Abmessungen
		cropped := bgr.Region(image.Rect(0, 0, w, h))
		defer cropped.Close()
		gocv.CvtColor(cropped, yuv, gocv.ColorBGRToYUVI420)
	} else {
		gocv.CvtColor(bgr, yuv, gocv.ColorBGRToYUVI420)
	}

	planeSet, err := planes.SplitI420(yuv.ToBytes(), w, h)
	if err != nil {
		return nil, err
	}
	c.seq++
	return models.NewRawFrame(c.seq, w, h, 0, planeSet, nil)
}

// Close schließt die Kamera
func (c *CameraSource) Close() error {
	return c.capture.Close()
}
