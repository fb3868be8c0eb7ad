package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"presence-gate/internal/core/models"
	"presence-gate/internal/core/processor"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTranslator(t *testing.T) *Translator {
	t.Helper()
	tr, err := NewTranslator(I18nConfig{DefaultLanguage: "en"})
	require.NoError(t, err)
	return tr
}

func TestTranslator_LoadsEmbeddedLocales(t *testing.T) {
	tr := newTranslator(t)
	assert.ElementsMatch(t, []string{"en", "de", "ja"}, tr.Languages())

	_, err := NewTranslator(I18nConfig{DefaultLanguage: "not a tag!"})
	assert.Error(t, err)
}

func TestTranslator_LanguageSelection(t *testing.T) {
	tr := newTranslator(t)

	_, lang := tr.Localizer("", "de-DE,de;q=0.9,en;q=0.5")
	assert.Equal(t, "de", lang)

	_, lang = tr.Localizer("ja", "de-DE")
	assert.Equal(t, "ja", lang)

	_, lang = tr.Localizer("", "fr-FR")
	assert.Equal(t, "en", lang)
}

func TestBuildLabels(t *testing.T) {
	tr := newTranslator(t)
	en, _ := tr.Localizer("en", "")

	l := BuildLabels(en, processor.Status{FaceStable: true, FacesCount: 2})
	assert.Equal(t, "Face ✓ (2)", l.Face)
	assert.Equal(t, "Pose – none", l.Pose)
	assert.Equal(t, "Gate: –", l.Gate)

	l = BuildLabels(en, processor.Status{
		PoseStable:        true,
		PoseLandmarkCount: 33,
		LastCommit:        &processor.CommitResult{Decision: models.GateDecision{Accepted: false, Compared: true, Similarity: 0.95}},
	})
	assert.Equal(t, "No face", l.Face)
	assert.Equal(t, "Pose ✓ (33)", l.Pose)
	assert.Equal(t, "Gate: Skip (sim=0.950)", l.Gate)

	l = BuildLabels(en, processor.Status{Paused: true, LastCommit: &processor.CommitResult{Decision: models.GateDecision{Accepted: true}}})
	assert.Equal(t, "Paused", l.Face)
	assert.Equal(t, "Gate: Accept (sim=-)", l.Gate)

	de, _ := tr.Localizer("de", "")
	assert.Equal(t, "Kein Gesicht", BuildLabels(de, processor.Status{}).Face)
}

func TestI18nMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(I18n(newTranslator(t)))
	r.GET("/label", func(c *gin.Context) {
		c.String(http.StatusOK, Translate(c, "status_face_none", nil)+"|"+Translate(c, "unknown_id", nil))
	})

	req := httptest.NewRequest(http.MethodGet, "/label", nil)
	req.Header.Set("Accept-Language", "ja-JP")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ja", w.Header().Get("Content-Language"))
	assert.Equal(t, "顔なし|unknown_id", w.Body.String())
}
