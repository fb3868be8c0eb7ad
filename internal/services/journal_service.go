package services

import (
	"context"
	"sync"
	"time"

	"presence-gate/internal/core/models"
	"presence-gate/internal/core/processor"
	"presence-gate/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "journal",
}

// JournalService schreibt jedes Commit-Urteil in das Journal. Das Schreiben
// läuft in einer eigenen Goroutine, damit Commits nicht auf SQLite warten.
type JournalService struct {
	repo  repository.Repository
	queue chan *models.CommitEvent
	wg    sync.WaitGroup
}

// NewJournalService creates a new JournalService.
func NewJournalService(repo repository.Repository) *JournalService {
	log.WithFields(logFields).Info("Initializing commit journal")
	return &JournalService{
		repo:  repo,
		queue: make(chan *models.CommitEvent, 128),
	}
}

// Start startet den Schreib-Worker. Nach Ende von ctx werden noch
// ausstehende Einträge geschrieben.
func (s *JournalService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case ev := <-s.queue:
				s.write(ev)
			case <-ctx.Done():
				s.drain()
				return
			}
		}
	}()
}

// Wait blockiert, bis der Worker beendet ist
func (s *JournalService) Wait() {
	s.wg.Wait()
}

func (s *JournalService) drain() {
	for {
		select {
		case ev := <-s.queue:
			s.write(ev)
		default:
			return
		}
	}
}

func (s *JournalService) write(ev *models.CommitEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.SaveCommit(ctx, ev); err != nil {
		log.WithFields(logFields).Errorf("Failed to journal commit %s: %v", ev.ID, err)
	}
}

// OnPresenceChanged wird nicht protokolliert
func (s *JournalService) OnPresenceChanged(processor.Status) {}

// OnCommit stellt das Urteil zum Schreiben in die Queue
func (s *JournalService) OnCommit(res processor.CommitResult) {
	ev, err := repository.NewCommitEvent(res)
	if err != nil {
		log.WithFields(logFields).Error(err)
		return
	}
	select {
	case s.queue <- ev:
	default:
		log.WithFields(logFields).Warnf("Journal queue full, commit %s not recorded", res.ID)
	}
}
