package services

import (
	"context"
	"testing"
	"time"

	"presence-gate/config"
	"presence-gate/internal/core/models"
	"presence-gate/internal/core/processor"
	"presence-gate/internal/db"
	"presence-gate/internal/db/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalService_RecordsCommits(t *testing.T) {
	gdb, err := db.Initialize(config.DBConfig{File: ":memory:"})
	require.NoError(t, err)
	defer db.Close(gdb)
	repo := repository.NewSQLiteRepository(gdb)

	s := NewJournalService(repo)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	s.OnPresenceChanged(processor.Status{Present: true})
	s.OnCommit(processor.CommitResult{ID: "a", At: time.Now(), Decision: models.GateDecision{Accepted: true}})
	s.OnCommit(processor.CommitResult{ID: "b", At: time.Now(), Decision: models.GateDecision{Accepted: false, Compared: true, Similarity: 0.99}})

	cancel()
	s.Wait()

	stats, err := repo.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Accepted)

	b, err := repo.GetCommitByID(context.Background(), "b")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.InDelta(t, 0.99, b.Similarity, 1e-9)
}
