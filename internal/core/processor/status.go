package processor

import (
	"sync/atomic"
	"time"

	"presence-gate/internal/core/models"
)

// Indicator ist die Ampelfarbe der Statusanzeige
type Indicator string

const (
	IndicatorGreen Indicator = "green"
	IndicatorRed   Indicator = "red"
	IndicatorAmber Indicator = "amber"
)

// Status is a read-only snapshot of the pipeline counters.
type Status struct {
	FacesCount        int           `json:"faces_count"`
	PoseLandmarkCount int           `json:"pose_landmark_count"`
	FaceDetected      bool          `json:"face_detected"` // Rohsignal des letzten Frames
	PoseDetected      bool          `json:"pose_detected"`
	FaceStable        bool          `json:"face_stable"`
	PoseStable        bool          `json:"pose_stable"`
	Present           bool          `json:"present"`
	FPS               float64       `json:"fps"`
	LastLatencyMs     int64         `json:"last_latency_ms"`
	Cycles            uint64        `json:"cycles"`
	Admitted          uint64        `json:"admitted"`
	DetectorFailures  uint64        `json:"detector_failures"`
	ConvertFailures   uint64        `json:"convert_failures"`
	Arrivals          uint64        `json:"arrivals"`
	Dropped           uint64        `json:"dropped"`
	Paused            bool          `json:"paused"`
	Indicator         Indicator     `json:"indicator"`
	LastCommit        *CommitResult `json:"last_commit,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// indicator maps the debounced face state to the status light.
func (s Status) indicator() Indicator {
	switch {
	case s.Paused:
		return IndicatorGreen
	case s.FaceStable && s.FacesCount > 0:
		return IndicatorGreen
	case !s.FaceStable && s.FacesCount == 0:
		return IndicatorRed
	default:
		return IndicatorAmber
	}
}

// stats holds the counters of the worker goroutine. work is only touched by
// the worker; readers get the last published copy.
type stats struct {
	clock func() time.Time
	work  Status
	snap  atomic.Pointer[Status]
}

func newStats(clock func() time.Time) *stats {
	s := &stats{clock: clock}
	s.restart()
	return s
}

// restart sets the FPS reference point to now and clears all counters.
func (s *stats) restart() {
	now := s.clock()
	s.work = Status{StartedAt: now, UpdatedAt: now}
	s.publish()
}

func (s *stats) applyOutcome(o models.DetectionOutcome, stable bool) {
	if o.Failed() {
		s.work.DetectorFailures++
	}
	switch o.Kind {
	case models.KindFace:
		s.work.FacesCount = o.FaceCount
		s.work.FaceDetected = o.Presence()
		s.work.FaceStable = stable
	case models.KindPose:
		s.work.PoseLandmarkCount = o.LandmarkCount
		s.work.PoseDetected = o.Presence()
		s.work.PoseStable = stable
	}
	s.work.Present = s.work.FaceStable || s.work.PoseStable
	s.publish()
}

func (s *stats) setStable(face, pose bool) {
	s.work.FaceStable = face
	s.work.PoseStable = pose
	s.work.Present = face || pose
	s.publish()
}

func (s *stats) finishCycle(res *CycleResult, began time.Time) {
	now := s.clock()
	s.work.Cycles++
	if res.Materialized {
		s.work.Admitted++
	}
	if res.ConvertErr != nil {
		s.work.ConvertFailures++
	}
	s.work.LastLatencyMs = now.Sub(began).Milliseconds()
	if elapsed := now.Sub(s.work.StartedAt).Seconds(); elapsed > 0 {
		s.work.FPS = float64(s.work.Cycles) / elapsed
	}
	s.publish()
}

func (s *stats) publish() {
	cp := s.work
	cp.UpdatedAt = s.clock()
	s.snap.Store(&cp)
}

func (s *stats) snapshot() Status {
	return *s.snap.Load()
}
