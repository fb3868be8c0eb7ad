package debug

import (
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"presence-gate/internal/core/models"
	"presence-gate/internal/core/processor"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugService_RingKeepsNewest(t *testing.T) {
	s := NewDebugService(3, nil)
	for i := 0; i < 5; i++ {
		s.AddDebugImage(&DebugImage{ID: fmt.Sprintf("c%d", i)})
	}

	latest := s.GetLatestImages(0)
	require.Len(t, latest, 3)
	assert.Equal(t, "c4", latest[0].ID)
	assert.Equal(t, "c2", latest[2].ID)
	assert.Nil(t, s.GetImage("c0"))

	s.AddDebugImage(&DebugImage{ID: "c3", Accepted: true})
	assert.True(t, s.GetImage("c3").Accepted)
	assert.Len(t, s.GetLatestImages(10), 3)
}

func TestDebugService_CapturesCommittedFrames(t *testing.T) {
	s := NewDebugService(5, nil)
	frame := &models.VisualBuffer{RGBA: image.NewRGBA(image.Rect(0, 0, 8, 8)), Seq: 9}

	s.OnCommit(processor.CommitResult{ID: "no-frame", NoFrame: true})
	s.OnCommit(processor.CommitResult{ID: "abc", Frame: frame, FrameSeq: 9, Decision: models.GateDecision{Accepted: true}})
	s.Wait()

	assert.Nil(t, s.GetImage("no-frame"))
	img := s.GetImage("abc")
	require.NotNil(t, img)
	assert.Equal(t, uint64(9), img.FrameSeq)
	// JPEG SOI marker
	assert.Equal(t, []byte{0xff, 0xd8}, img.ImageData[:2])
}

func TestDebugService_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewDebugService(5, nil)
	s.AddDebugImage(&DebugImage{ID: "abc", ImageData: []byte{0xff, 0xd8, 0xff}})

	r := gin.New()
	s.RegisterRoutes(r.Group("/api"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/debug/admitted", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count  int `json:"count"`
		Images []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"images"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "/api/debug/admitted/abc", body.Images[0].URL)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/debug/admitted/abc", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/debug/admitted/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
