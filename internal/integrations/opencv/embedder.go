package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"presence-gate/config"
	"presence-gate/internal/core/gate"
	"presence-gate/internal/core/models"

	gocv "gocv.io/x/gocv"
	log "github.com/sirupsen/logrus"
)

// Embedder berechnet Bildeinbettungen mit einem DNN-Netz
type Embedder struct {
	net       gocv.Net
	loaded    bool
	inputSize image.Point
	scale     float64

	mu sync.Mutex
}

// NewEmbedder lädt das Netz. Fehlt das Modell, bleibt der Embedder
// unverfügbar und das Gate lässt jeden Frame durch.
func NewEmbedder(cfg config.OpenCVConfig) *Embedder {
	e := &Embedder{
		inputSize: image.Pt(cfg.Embedding.InputWidth, cfg.Embedding.InputHeight),
		scale:     cfg.Embedding.Scale,
	}
	if e.inputSize.X <= 0 || e.inputSize.Y <= 0 {
		e.inputSize = image.Pt(224, 224)
	}
	if e.scale <= 0 {
		e.scale = 1.0 / 255.0
	}

	if !fileExists(cfg.Embedding.ModelPath) {
		log.WithFields(logFields).Warnf("Embedding-Modell nicht gefunden: %s, Ähnlichkeitsprüfung deaktiviert", cfg.Embedding.ModelPath)
		return e
	}
	backend, target := selectBackend(cfg)
	net, ok := loadNet(cfg.Embedding.ModelPath, cfg.Embedding.ConfigPath, backend, target)
	if !ok {
		log.WithFields(logFields).Errorf("Konnte Embedding-Modell nicht laden: %s", cfg.Embedding.ModelPath)
		return e
	}
	e.net = net
	e.loaded = true
	log.WithFields(logFields).Infof("Embedding-Modell geladen: %s", cfg.Embedding.ModelPath)
	return e
}

// Available meldet, ob ein Modell geladen ist
func (e *Embedder) Available() bool { return e.loaded }

// Embed liefert die L2-normalisierte Einbettung von img
func (e *Embedder) Embed(ctx context.Context, img image.Image) (models.Embedding, error) {
	if !e.loaded {
		return nil, gate.ErrEmbedderUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, e.scale, e.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.mu.Lock()
	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	e.mu.Unlock()
	defer out.Close()

	flat := out.Reshape(1, 1)
	defer flat.Close()
	data, err := flat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read embedding: %w", err)
	}
	// Daten gehören der Mat, also kopieren
	vec := make(models.Embedding, len(data))
	copy(vec, data)
	return gate.Normalize(vec), nil
}

// Close gibt das Netz frei
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil
	}
	e.loaded = false
	return e.net.Close()
}
