package processor

import (
	"sync"
	"sync/atomic"

	"presence-gate/internal/core/models"
)

// AdmittedSlot holds the most recent buffer produced while presence was true.
// Stored buffers are never modified afterwards, so a reader sees either the
// previous or the latest buffer, never a partial one.
type AdmittedSlot struct {
	buf    atomic.Pointer[models.VisualBuffer]
	writes atomic.Uint64

	// mu orders Clear against StoreIf; Load stays lock-free
	mu  sync.Mutex
	gen uint64
}

// Store overwrites the slot.
func (s *AdmittedSlot) Store(buf *models.VisualBuffer) {
	s.mu.Lock()
	s.buf.Store(buf)
	s.mu.Unlock()
	s.writes.Add(1)
}

// Generation returns the current clear generation.
func (s *AdmittedSlot) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// StoreIf overwrites the slot only if it has not been cleared since gen was
// read. It reports whether buf was stored.
func (s *AdmittedSlot) StoreIf(gen uint64, buf *models.VisualBuffer) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.buf.Store(buf)
	s.mu.Unlock()
	s.writes.Add(1)
	return true
}

// Load returns the current buffer or nil.
func (s *AdmittedSlot) Load() *models.VisualBuffer {
	return s.buf.Load()
}

// Clear empties the slot and starts a new generation.
func (s *AdmittedSlot) Clear() {
	s.mu.Lock()
	s.gen++
	s.buf.Store(nil)
	s.mu.Unlock()
}

// Writes returns how often the slot has been written.
func (s *AdmittedSlot) Writes() uint64 {
	return s.writes.Load()
}
