package models

import (
	"errors"
	"fmt"
)

// ErrDetectorFailure markiert einen fehlgeschlagenen Detektoraufruf
var ErrDetectorFailure = errors.New("detector failure")

// DetectionKind identifies which detector produced an outcome.
type DetectionKind int

const (
	KindFace DetectionKind = iota
	KindPose
)

func (k DetectionKind) String() string {
	switch k {
	case KindFace:
		return "face"
	case KindPose:
		return "pose"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Landmark is a single pose keypoint in frame coordinates.
type Landmark struct {
	X, Y       float64
	Confidence float64
}

// DetectionOutcome is the result of one detector for one frame. It is never
// modified after construction.
type DetectionOutcome struct {
	Kind          DetectionKind
	FaceCount     int  // nur für KindFace
	LandmarkCount int  // nur für KindPose
	Valid         bool // Pose: Landmark-Menge nicht leer
	Err           error
}

// FaceOutcome builds a successful face detection outcome.
func FaceOutcome(count int) DetectionOutcome {
	if count < 0 {
		count = 0
	}
	return DetectionOutcome{Kind: KindFace, FaceCount: count}
}

// PoseOutcome builds a successful pose detection outcome.
func PoseOutcome(landmarks []Landmark) DetectionOutcome {
	return DetectionOutcome{Kind: KindPose, LandmarkCount: len(landmarks), Valid: len(landmarks) > 0}
}

// FailedOutcome wraps a detector error into an outcome of the given kind.
func FailedOutcome(kind DetectionKind, err error) DetectionOutcome {
	return DetectionOutcome{Kind: kind, Err: fmt.Errorf("%w: %s: %v", ErrDetectorFailure, kind, err)}
}

// Failed reports whether the detector call failed.
func (o DetectionOutcome) Failed() bool { return o.Err != nil }

// Presence is the raw per-frame presence signal. Failures count as absence.
func (o DetectionOutcome) Presence() bool {
	if o.Err != nil {
		return false
	}
	if o.Kind == KindFace {
		return o.FaceCount > 0
	}
	return o.Valid
}

// Embedding is an L2-normalised feature vector.
type Embedding []float32

// GateDecision is the verdict of the similarity gate. Compared is false when
// no similarity was computed (first observation or fail-open).
type GateDecision struct {
	Accepted   bool    `json:"accepted"`
	Similarity float64 `json:"similarity"`
	Compared   bool    `json:"compared"`
}
