package models

import (
	"time"

	"gorm.io/datatypes"
)

// CommitEvent ist ein Eintrag im Commit-Journal. Es werden nur Entscheidungen
// gespeichert, niemals Embeddings oder Bilddaten.
type CommitEvent struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
	Accepted   bool           `gorm:"index" json:"accepted"`
	Compared   bool           `json:"compared"`
	Similarity float64        `json:"similarity"`
	NoFrame    bool           `json:"no_frame"`
	FrameSeq   uint64         `json:"frame_seq"`                  // 0 wenn kein Frame im Slot war
	FrameAge   int64          `json:"frame_age_ms"`               // Alter des Frames zum Commit-Zeitpunkt
	Status     datatypes.JSON `gorm:"type:json" json:"status"` // Status-Snapshot der Pipeline
}

// CommitStatistics fasst das Journal zusammen
type CommitStatistics struct {
	Total    int64     `json:"total"`
	Accepted int64     `json:"accepted"`
	Rejected int64     `json:"rejected"`
	LatestAt time.Time `json:"latest_at"`
}
