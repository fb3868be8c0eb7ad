// Package gate decides whether an image is perceptually new compared to the
// last accepted one.
package gate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"presence-gate/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// DefaultThreshold: ab dieser Ähnlichkeit gilt ein Bild als dieselbe Szene
const DefaultThreshold = 0.919

const epsilon = 1e-9

// ErrEmbedderUnavailable is returned by embedders whose model is not loaded.
var ErrEmbedderUnavailable = errors.New("embedder unavailable")

var logFields = log.Fields{
	"component": "similarity_gate",
}

// Embedder produces an L2-normalised embedding for an image.
type Embedder interface {
	Embed(ctx context.Context, img image.Image) (models.Embedding, error)
}

// Gate holds at most one embedding: the one of the last accepted image.
// Every accepted image replaces it; rejected images leave it untouched.
type Gate struct {
	embedder  Embedder
	threshold float64

	mu   sync.Mutex
	prev models.Embedding
}

// New creates a Gate. A nil embedder makes the gate accept everything.
// A threshold <= 0 selects DefaultThreshold.
func New(embedder Embedder, threshold float64) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gate{embedder: embedder, threshold: threshold}
}

// Threshold returns the configured similarity threshold.
func (g *Gate) Threshold() float64 { return g.threshold }

// ShouldAccept embeds img and compares it with the stored embedding. Any
// failure to embed results in acceptance without touching the stored state.
func (g *Gate) ShouldAccept(ctx context.Context, img image.Image) models.GateDecision {
	if g.embedder == nil {
		log.WithFields(logFields).Debug("No embedder configured, accepting frame")
		return models.GateDecision{Accepted: true}
	}

	vec, err := g.embedder.Embed(ctx, img)
	if err == nil {
		err = checkEmbedding(vec)
	}
	if err != nil {
		log.WithFields(logFields).WithError(err).Warn("Embedding failed, gate fails open")
		return models.GateDecision{Accepted: true}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.prev == nil {
		g.prev = vec
		return models.GateDecision{Accepted: true}
	}
	if len(g.prev) != len(vec) {
		// Modellwechsel: Vektoren nicht vergleichbar, als neue Szene behandeln
		log.WithFields(logFields).Warnf("Embedding length changed from %d to %d, treating as new scene", len(g.prev), len(vec))
		g.prev = vec
		return models.GateDecision{Accepted: true}
	}

	sim := CosineSimilarity(g.prev, vec)
	accepted := sim < g.threshold
	if accepted {
		g.prev = vec
	}
	log.WithFields(logFields).Debugf("Similarity %.4f (threshold %.3f), accepted=%t", sim, g.threshold, accepted)
	return models.GateDecision{Accepted: accepted, Similarity: sim, Compared: true}
}

// checkEmbedding rejects vectors that would poison the stored state
func checkEmbedding(v models.Embedding) error {
	if len(v) == 0 {
		return errors.New("empty embedding")
	}
	var sum float64
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite embedding value at index %d", i)
		}
		sum += f * f
	}
	if sum == 0 || math.IsInf(sum, 0) {
		return errors.New("embedding has no usable norm")
	}
	return nil
}

// Reset forgets the stored embedding.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.prev = nil
	g.mu.Unlock()
}

// HasPrevious reports whether an embedding is stored.
func (g *Gate) HasPrevious() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prev != nil
}

// CosineSimilarity returns dot(a,b) / (|a|*|b| + 1e-9). Vectors of different
// length yield 0.
func CosineSimilarity(a, b models.Embedding) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + epsilon)
}

// Normalize scales v to unit length in place and returns it. Zero vectors are
// returned unchanged.
func Normalize(v models.Embedding) models.Embedding {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
