package gate

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"presence-gate/internal/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedEmbedder returns the queued vectors in order.
type scriptedEmbedder struct {
	results []models.Embedding
	errs    []error
	calls   int
}

func (s *scriptedEmbedder) Embed(_ context.Context, _ image.Image) (models.Embedding, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return nil, err
	}
	return s.results[i], nil
}

var img = image.NewRGBA(image.Rect(0, 0, 2, 2))

func TestCosineSimilarity(t *testing.T) {
	a := models.Embedding{0.3, -1.2, 4, 0.5}
	b := models.Embedding{1, 2, -0.5, 3}

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-6)
	assert.InDelta(t, CosineSimilarity(a, b), CosineSimilarity(b, a), 1e-12)
	assert.InDelta(t, -1.0, CosineSimilarity(a, models.Embedding{-0.3, 1.2, -4, -0.5}), 1e-6)
	assert.Equal(t, 0.0, CosineSimilarity(a, b[:2]))
	assert.False(t, math.IsNaN(CosineSimilarity(models.Embedding{0, 0}, models.Embedding{0, 0})))
}

func TestNormalize(t *testing.T) {
	v := Normalize(models.Embedding{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.Equal(t, models.Embedding{0, 0}, Normalize(models.Embedding{0, 0}))

	nan := float32(math.NaN())
	v = Normalize(models.Embedding{nan, 1})
	assert.True(t, math.IsNaN(float64(v[0])))
	assert.Equal(t, float32(1), v[1])
}

func TestGate_FirstObservationAlwaysAccepted(t *testing.T) {
	g := New(&scriptedEmbedder{results: []models.Embedding{{1, 0}, {1, 0}}}, 0)

	d := g.ShouldAccept(context.Background(), img)
	assert.True(t, d.Accepted)
	assert.False(t, d.Compared)
	assert.True(t, g.HasPrevious())
	assert.Equal(t, DefaultThreshold, g.Threshold())
}

func TestGate_RejectsSimilarKeepsStored(t *testing.T) {
	similar := Normalize(models.Embedding{1, 0.1})   // cos ~0.995 to {1,0}
	different := Normalize(models.Embedding{1, 0.5}) // cos ~0.894 to {1,0}, ~0.93 to similar
	emb := &scriptedEmbedder{results: []models.Embedding{{1, 0}, similar, different}}
	g := New(emb, DefaultThreshold)

	require.True(t, g.ShouldAccept(context.Background(), img).Accepted)

	d := g.ShouldAccept(context.Background(), img)
	assert.False(t, d.Accepted)
	assert.True(t, d.Compared)
	assert.GreaterOrEqual(t, d.Similarity, DefaultThreshold)

	// Compared against {1,0}, not against the rejected vector
	d = g.ShouldAccept(context.Background(), img)
	assert.True(t, d.Accepted)
	assert.Less(t, d.Similarity, DefaultThreshold)
	assert.InDelta(t, 0.894, d.Similarity, 1e-3)
}

func TestGate_AcceptReplacesStored(t *testing.T) {
	a := models.Embedding{1, 0}
	b := models.Embedding{0, 1}
	g := New(&scriptedEmbedder{results: []models.Embedding{a, b, b}}, DefaultThreshold)

	g.ShouldAccept(context.Background(), img)
	assert.True(t, g.ShouldAccept(context.Background(), img).Accepted)
	// b is now stored, so b again is a repeat
	assert.False(t, g.ShouldAccept(context.Background(), img).Accepted)
}

func TestGate_FailsOpen(t *testing.T) {
	nilGate := New(nil, 0)
	assert.True(t, nilGate.ShouldAccept(context.Background(), img).Accepted)
	assert.False(t, nilGate.HasPrevious())

	emb := &scriptedEmbedder{
		results: []models.Embedding{{1, 0}, nil, nil, {1, 0}},
		errs:    []error{nil, ErrEmbedderUnavailable, errors.New("inference crashed")},
	}
	g := New(emb, DefaultThreshold)
	g.ShouldAccept(context.Background(), img)

	for i := 0; i < 2; i++ {
		d := g.ShouldAccept(context.Background(), img)
		assert.True(t, d.Accepted)
		assert.False(t, d.Compared)
	}
	// stored embedding untouched by failures: identical vector is rejected
	assert.False(t, g.ShouldAccept(context.Background(), img).Accepted)
}

func TestGate_EmptyEmbeddingFailsOpen(t *testing.T) {
	g := New(&scriptedEmbedder{results: []models.Embedding{{}}}, 0)
	assert.True(t, g.ShouldAccept(context.Background(), img).Accepted)
	assert.False(t, g.HasPrevious())
}

func TestGate_NonFiniteEmbeddingFailsOpen(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	g := New(&scriptedEmbedder{results: []models.Embedding{
		{nan, 0}, {inf, 1}, {0, 0}, {1, 0}, {nan, 1}, {0, 1}, {-1, 0},
	}}, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := g.ShouldAccept(ctx, img)
		assert.True(t, d.Accepted, "call %d", i)
		assert.False(t, d.Compared, "call %d", i)
		assert.False(t, g.HasPrevious(), "call %d", i)
	}

	// erste gültige Einbettung wird gespeichert
	assert.True(t, g.ShouldAccept(ctx, img).Accepted)
	require.True(t, g.HasPrevious())

	// NaN lässt den gespeicherten Vektor unverändert
	d := g.ShouldAccept(ctx, img)
	assert.True(t, d.Accepted)
	assert.False(t, d.Compared)

	d = g.ShouldAccept(ctx, img)
	assert.True(t, d.Accepted)
	assert.True(t, d.Compared)
	assert.InDelta(t, 0.0, d.Similarity, 1e-6)

	d = g.ShouldAccept(ctx, img)
	assert.True(t, d.Accepted)
	assert.InDelta(t, 0.0, d.Similarity, 1e-6)
}

func TestGate_LengthChangeTreatedAsNewScene(t *testing.T) {
	g := New(&scriptedEmbedder{results: []models.Embedding{{1, 0}, {1, 0, 0}, {1, 0, 0}}}, 0)
	g.ShouldAccept(context.Background(), img)

	d := g.ShouldAccept(context.Background(), img)
	assert.True(t, d.Accepted)
	assert.False(t, d.Compared)
	assert.False(t, g.ShouldAccept(context.Background(), img).Accepted)
}

func TestGate_Reset(t *testing.T) {
	g := New(&scriptedEmbedder{results: []models.Embedding{{1, 0}, {1, 0}}}, 0)
	g.ShouldAccept(context.Background(), img)
	g.Reset()
	assert.False(t, g.HasPrevious())

	d := g.ShouldAccept(context.Background(), img)
	assert.True(t, d.Accepted)
	assert.False(t, d.Compared)
}
