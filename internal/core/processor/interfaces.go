package processor

import (
	"context"

	"presence-gate/internal/core/models"
)

// FaceDetector zählt Gesichter in einem Rohframe
type FaceDetector interface {
	DetectFaces(ctx context.Context, frame *models.RawFrame) (int, error)
}

// PoseDetector liefert die Landmarks einer Pose (leer, wenn keine Person sichtbar ist)
type PoseDetector interface {
	DetectPose(ctx context.Context, frame *models.RawFrame) ([]models.Landmark, error)
}

// Observer receives pipeline events. Presence changes are delivered from the
// worker goroutine and commits from the committing goroutine, so
// implementations must be safe for concurrent use and must not block.
type Observer interface {
	OnPresenceChanged(status Status)
	OnCommit(result CommitResult)
}
