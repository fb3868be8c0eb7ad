package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"presence-gate/config"
	"presence-gate/internal/core/convert"
	"presence-gate/internal/core/models"

	gocv "gocv.io/x/gocv"
	log "github.com/sirupsen/logrus"
)

// Detektionstypen für die Posenerkennung
const (
	HOGDetector = "hog" // Personen-Rechtecke, Ecken als Landmarken (CPU)
	DNNDetector = "dnn" // OpenPose-Heatmaps
)

const (
	defaultPoseInput = 368
	hogConfidence    = 0.8 // HOG liefert keine Konfidenz
	hogMaxDimension  = 800
)

// PoseDetector liefert Körper-Landmarken per DNN oder, ohne Modell, per HOG
type PoseDetector struct {
	method    string
	net       gocv.Net
	hog       gocv.HOGDescriptor
	threshold float64
	inputSize image.Point

	mu sync.Mutex
}

// NewPoseDetector initialisiert den konfigurierten Detektor. Fehlen die
// Modelldateien, wird auf HOG zurückgefallen.
func NewPoseDetector(cfg config.OpenCVConfig) (*PoseDetector, error) {
	pd := &PoseDetector{
		method:    cfg.Pose.Method,
		threshold: cfg.Pose.ConfidenceThreshold,
		inputSize: image.Pt(cfg.Pose.InputWidth, cfg.Pose.InputHeight),
	}
	if pd.method == "" {
		pd.method = HOGDetector
	}
	if pd.threshold <= 0 {
		pd.threshold = 0.1
	}
	if pd.inputSize.X <= 0 || pd.inputSize.Y <= 0 {
		pd.inputSize = image.Pt(defaultPoseInput, defaultPoseInput)
	}

	if cfg.UseGPU && pd.method == HOGDetector {
		log.WithFields(logFields).Warn("GPU-Beschleunigung ist konfiguriert, aber HOG gewählt. Für GPU wird DNN empfohlen.")
	}

	switch pd.method {
	case DNNDetector:
		if !fileExists(cfg.Pose.ModelPath) || !fileExists(cfg.Pose.ConfigPath) {
			log.WithFields(logFields).Warnf("DNN-Modelldateien nicht gefunden: %s oder %s, falle zurück auf HOG",
				cfg.Pose.ModelPath, cfg.Pose.ConfigPath)
			pd.initHOG()
			break
		}
		backend, target := selectBackend(cfg)
		net, ok := loadNet(cfg.Pose.ModelPath, cfg.Pose.ConfigPath, backend, target)
		if !ok {
			return nil, fmt.Errorf("konnte DNN-Modell nicht laden: %s", cfg.Pose.ModelPath)
		}
		pd.net = net
	case HOGDetector:
		pd.initHOG()
	default:
		return nil, fmt.Errorf("unbekannte Posen-Methode %q", pd.method)
	}

	log.WithFields(logFields).Infof("Posenerkennung initialisiert (Methode: %s)", pd.method)
	return pd, nil
}

func (pd *PoseDetector) initHOG() {
	pd.method = HOGDetector
	pd.hog = gocv.NewHOGDescriptor()
	pd.hog.SetSVMDetector(gocv.HOGDefaultPeopleDetector())
}

// Method liefert den tatsächlich verwendeten Detektor
func (pd *PoseDetector) Method() string { return pd.method }

// DetectPose liefert die Landmarken über dem Konfidenz-Schwellenwert
func (pd *PoseDetector) DetectPose(ctx context.Context, frame *models.RawFrame) ([]models.Landmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pd.method == DNNDetector {
		return pd.detectDNN(frame)
	}
	return pd.detectHOG(frame)
}

func (pd *PoseDetector) detectDNN(frame *models.RawFrame) ([]models.Landmark, error) {
	rgba, err := convert.YUV420ToRGBA(frame)
	if err != nil {
		return nil, err
	}
	img, err := gocv.ImageToMatRGB(rgba)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0/255.0, pd.inputSize, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	pd.mu.Lock()
	pd.net.SetInput(blob, "")
	prob := pd.net.Forward("")
	pd.mu.Unlock()
	defer prob.Close()

	dims := prob.Size()
	if len(dims) != 4 {
		return nil, fmt.Errorf("unerwartete Netzausgabe mit %d Dimensionen", len(dims))
	}
	parts := keypointCount(dims[1])
	scaleX := float64(frame.Width) / float64(dims[3])
	scaleY := float64(frame.Height) / float64(dims[2])

	var landmarks []models.Landmark
	for i := 0; i < parts; i++ {
		heatmap := gocv.GetBlobChannel(prob, 0, i)
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(heatmap)
		heatmap.Close()
		if float64(maxVal) < pd.threshold {
			continue
		}
		landmarks = append(landmarks, models.Landmark{
			X:          float64(maxLoc.X) * scaleX,
			Y:          float64(maxLoc.Y) * scaleY,
			Confidence: float64(maxVal),
		})
	}
	return landmarks, nil
}

// keypointCount leitet aus der Kanalzahl das Modell ab
func keypointCount(channels int) int {
	switch channels {
	case 57, 19: // COCO
		return 18
	case 44, 16: // MPI
		return 15
	case 78, 26: // BODY_25
		return 25
	default:
		return channels
	}
}

func (pd *PoseDetector) detectHOG(frame *models.RawFrame) ([]models.Landmark, error) {
	gray, err := lumaMat(frame)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	work := gray
	scale := 1.0
	if longest := max(frame.Width, frame.Height); longest > hogMaxDimension {
		scale = float64(hogMaxDimension) / float64(longest)
		work = gocv.NewMat()
		defer work.Close()
		gocv.Resize(gray, &work, image.Pt(int(float64(frame.Width)*scale), int(float64(frame.Height)*scale)), 0, 0, gocv.InterpolationLinear)
	}

	pd.mu.Lock()
	rects := pd.hog.DetectMultiScale(work)
	pd.mu.Unlock()

	if hogConfidence < pd.threshold {
		return nil, nil
	}
	var landmarks []models.Landmark
	for _, r := range rects {
		for _, p := range []image.Point{r.Min, {X: r.Max.X, Y: r.Min.Y}, {X: r.Min.X, Y: r.Max.Y}, r.Max} {
			landmarks = append(landmarks, models.Landmark{
				X:          float64(p.X) / scale,
				Y:          float64(p.Y) / scale,
				Confidence: hogConfidence,
			})
		}
	}
	return landmarks, nil
}

// Close gibt Netz und HOG-Deskriptor frei
func (pd *PoseDetector) Close() error {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	if pd.method == DNNDetector {
		return pd.net.Close()
	}
	return pd.hog.Close()
}
