package debug

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
	"strconv"
	"sync"
	"time"

	"presence-gate/internal/core/processor"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Encoder wandelt ein Bild in JPEG-Bytes um
type Encoder func(img image.Image) ([]byte, error)

// JPEGEncoder ist der Standard-Encoder ohne OpenCV
func JPEGEncoder(quality int) Encoder {
	return func(img image.Image) ([]byte, error) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// DebugImage ist ein zugelassener Frame samt Gate-Urteil
type DebugImage struct {
	ID         string    // Commit-ID
	Timestamp  time.Time // Zeitpunkt des Commits
	FrameSeq   uint64
	Accepted   bool
	Similarity float64
	Compared   bool
	ImageData  []byte
}

// DebugService speichert die Frames der letzten Commits im Speicher
type DebugService struct {
	images     map[string]*DebugImage // indiziert nach ID
	imagesList []*DebugImage          // zeitlich sortiert
	maxImages  int
	encode     Encoder
	mutex      sync.RWMutex
	wg         sync.WaitGroup
}

// NewDebugService erstellt einen neuen Debug-Service
func NewDebugService(maxImages int, encode Encoder) *DebugService {
	if maxImages <= 0 {
		maxImages = 20
	}
	if encode == nil {
		encode = JPEGEncoder(85)
	}
	return &DebugService{
		images:     make(map[string]*DebugImage),
		imagesList: make([]*DebugImage, 0, maxImages),
		maxImages:  maxImages,
		encode:     encode,
	}
}

// AddDebugImage fügt ein Bild hinzu und verdrängt bei Bedarf das älteste
func (s *DebugService) AddDebugImage(img *DebugImage) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.images[img.ID]; exists {
		s.images[img.ID] = img
		for i, old := range s.imagesList {
			if old.ID == img.ID {
				s.imagesList[i] = img
				break
			}
		}
		return
	}

	s.images[img.ID] = img
	s.imagesList = append(s.imagesList, img)
	if len(s.imagesList) > s.maxImages {
		oldest := s.imagesList[0]
		delete(s.images, oldest.ID)
		s.imagesList = s.imagesList[1:]
	}
	log.Debugf("Debug image stored for commit %s", img.ID)
}

// GetLatestImages gibt die neuesten count Bilder zurück, neuestes zuerst
func (s *DebugService) GetLatestImages(count int) []*DebugImage {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if count <= 0 || count > len(s.imagesList) {
		count = len(s.imagesList)
	}
	result := make([]*DebugImage, 0, count)
	for i := len(s.imagesList) - 1; i >= len(s.imagesList)-count; i-- {
		result = append(result, s.imagesList[i])
	}
	return result
}

// GetImage gibt ein bestimmtes Bild anhand seiner ID zurück
func (s *DebugService) GetImage(id string) *DebugImage {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.images[id]
}

// OnPresenceChanged wird ignoriert
func (s *DebugService) OnPresenceChanged(processor.Status) {}

// OnCommit kodiert den bewerteten Frame im Hintergrund
func (s *DebugService) OnCommit(res processor.CommitResult) {
	if res.Frame == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		data, err := s.encode(res.Frame)
		if err != nil {
			log.Warnf("Failed to encode debug image for commit %s: %v", res.ID, err)
			return
		}
		s.AddDebugImage(&DebugImage{
			ID:         res.ID,
			Timestamp:  res.At,
			FrameSeq:   res.FrameSeq,
			Accepted:   res.Decision.Accepted,
			Similarity: res.Decision.Similarity,
			Compared:   res.Decision.Compared,
			ImageData:  data,
		})
	}()
}

// Wait blockiert, bis alle laufenden Kodierungen fertig sind
func (s *DebugService) Wait() { s.wg.Wait() }

// RegisterRoutes registriert die API-Routen für den Debug-Service
func (s *DebugService) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/debug/admitted", s.handleGetLatestImages)
	router.GET("/debug/admitted/:id", s.handleGetImage)
	log.Info("Debug routes registered: /debug/admitted, /debug/admitted/:id")
}

func (s *DebugService) handleGetLatestImages(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "10"))
	if err != nil {
		count = 10
	}

	type imageMetadata struct {
		ID         string    `json:"id"`
		Timestamp  time.Time `json:"timestamp"`
		FrameSeq   uint64    `json:"frame_seq"`
		Accepted   bool      `json:"accepted"`
		Compared   bool      `json:"compared"`
		Similarity float64   `json:"similarity"`
		URL        string    `json:"url"`
	}

	images := s.GetLatestImages(count)
	metadata := make([]imageMetadata, len(images))
	for i, img := range images {
		metadata[i] = imageMetadata{
			ID:         img.ID,
			Timestamp:  img.Timestamp,
			FrameSeq:   img.FrameSeq,
			Accepted:   img.Accepted,
			Compared:   img.Compared,
			Similarity: img.Similarity,
			URL:        c.Request.URL.Path + "/" + img.ID,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(metadata),
		"images": metadata,
	})
}

func (s *DebugService) handleGetImage(c *gin.Context) {
	img := s.GetImage(c.Param("id"))
	if img == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found", "requested_id": c.Param("id")})
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(http.StatusOK, "image/jpeg", img.ImageData)
}
