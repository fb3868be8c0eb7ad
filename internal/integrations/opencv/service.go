package opencv

import (
	"errors"
	"fmt"
	"sync"

	"presence-gate/config"
	"presence-gate/internal/core/gate"
	"presence-gate/internal/core/processor"

	log "github.com/sirupsen/logrus"
)

// Service bündelt die OpenCV-Modelle der Pipeline
type Service struct {
	cfg      config.OpenCVConfig
	face     *FaceDetector
	pose     *PoseDetector
	embedder *Embedder

	mutex  sync.Mutex
	closed bool
}

// NewService lädt alle Modelle. Ein fehlender Detektor wird protokolliert;
// fehlen beide, schlägt die Initialisierung fehl.
func NewService(cfg config.OpenCVConfig) (*Service, error) {
	s := &Service{cfg: cfg}
	if !cfg.Enabled {
		log.WithFields(logFields).Info("OpenCV-Service ist deaktiviert in der Konfiguration")
		return s, nil
	}

	face, faceErr := NewFaceDetector(cfg)
	if faceErr != nil {
		log.WithFields(logFields).WithError(faceErr).Warn("Gesichtserkennung nicht verfügbar")
	}
	pose, poseErr := NewPoseDetector(cfg)
	if poseErr != nil {
		log.WithFields(logFields).WithError(poseErr).Warn("Posenerkennung nicht verfügbar")
	}
	if faceErr != nil && poseErr != nil {
		return nil, fmt.Errorf("fehler beim Initialisieren des OpenCV-Service: %w", errors.Join(faceErr, poseErr))
	}

	s.face = face
	s.pose = pose
	s.embedder = NewEmbedder(cfg)
	return s, nil
}

// FaceDetector liefert den Gesichtsdetektor oder nil
func (s *Service) FaceDetector() processor.FaceDetector {
	if s.face == nil {
		return nil
	}
	return s.face
}

// PoseDetector liefert den Posendetektor oder nil
func (s *Service) PoseDetector() processor.PoseDetector {
	if s.pose == nil {
		return nil
	}
	return s.pose
}

// Embedder liefert den Embedder für das Gate oder nil
func (s *Service) Embedder() gate.Embedder {
	if s.embedder == nil || !s.embedder.Available() {
		return nil
	}
	return s.embedder
}

// Close gibt die Ressourcen des OpenCV-Service frei
func (s *Service) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.face != nil {
		errs = append(errs, s.face.Close())
	}
	if s.pose != nil {
		errs = append(errs, s.pose.Close())
	}
	if s.embedder != nil {
		errs = append(errs, s.embedder.Close())
	}
	return errors.Join(errs...)
}
