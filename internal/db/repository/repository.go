package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"presence-gate/internal/core/models"
	"presence-gate/internal/core/processor"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository definiert die Schnittstelle für das Commit-Journal
type Repository interface {
	SaveCommit(ctx context.Context, event *models.CommitEvent) error
	GetCommitByID(ctx context.Context, id string) (*models.CommitEvent, error)
	GetCommits(ctx context.Context, limit, offset int) ([]models.CommitEvent, int64, error)
	DeleteCommitsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GetStatistics(ctx context.Context) (models.CommitStatistics, error)
}

// SQLiteRepository implementiert die Repository-Schnittstelle für SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository erstellt eine neue SQLite-Repository-Instanz
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// NewCommitEvent builds the journal row for a commit verdict.
func NewCommitEvent(res processor.CommitResult) (*models.CommitEvent, error) {
	status, err := json.Marshal(res.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status snapshot: %w", err)
	}
	return &models.CommitEvent{
		ID:         res.ID,
		CreatedAt:  res.At,
		Accepted:   res.Decision.Accepted,
		Compared:   res.Decision.Compared,
		Similarity: res.Decision.Similarity,
		NoFrame:    res.NoFrame,
		FrameSeq:   res.FrameSeq,
		FrameAge:   res.FrameAge.Milliseconds(),
		Status:     datatypes.JSON(status),
	}, nil
}

// SaveCommit speichert einen Journal-Eintrag
func (r *SQLiteRepository) SaveCommit(ctx context.Context, event *models.CommitEvent) error {
	if event.ID == "" {
		return errors.New("commit event without id")
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// GetCommitByID holt einen Eintrag; nil, wenn er nicht existiert
func (r *SQLiteRepository) GetCommitByID(ctx context.Context, id string) (*models.CommitEvent, error) {
	var event models.CommitEvent
	result := r.db.WithContext(ctx).First(&event, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &event, nil
}

// GetCommits holt Einträge mit Pagination, neueste zuerst
func (r *SQLiteRepository) GetCommits(ctx context.Context, limit, offset int) ([]models.CommitEvent, int64, error) {
	var events []models.CommitEvent
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.CommitEvent{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	result := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&events)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return events, total, nil
}

// DeleteCommitsBefore löscht alle Einträge älter als cutoff
func (r *SQLiteRepository) DeleteCommitsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.CommitEvent{})
	return result.RowsAffected, result.Error
}

// GetStatistics fasst das Journal zusammen
func (r *SQLiteRepository) GetStatistics(ctx context.Context) (models.CommitStatistics, error) {
	var stats models.CommitStatistics
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.CommitEvent{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.CommitEvent{}).Where("accepted = ?", true).Count(&stats.Accepted).Error; err != nil {
		return stats, err
	}
	stats.Rejected = stats.Total - stats.Accepted

	var latest models.CommitEvent
	if err := db.Order("created_at DESC").First(&latest).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, err
		}
	} else {
		stats.LatestAt = latest.CreatedAt
	}
	return stats, nil
}
