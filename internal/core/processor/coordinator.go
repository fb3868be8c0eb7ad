package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"presence-gate/internal/core/convert"
	"presence-gate/internal/core/debounce"
	"presence-gate/internal/core/models"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "frame_processor",
}

var errNoDetector = errors.New("no detector configured")

// CyclePhase ist ein Schritt im Lebenszyklus eines Frames
type CyclePhase int

const (
	PhaseDispatched CyclePhase = iota
	PhaseAwaitingBoth
	PhaseMerged
	PhaseMaterializing
	PhaseClosed
)

func (p CyclePhase) String() string {
	switch p {
	case PhaseDispatched:
		return "dispatched"
	case PhaseAwaitingBoth:
		return "awaiting_both"
	case PhaseMerged:
		return "merged"
	case PhaseMaterializing:
		return "materializing"
	case PhaseClosed:
		return "closed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// CycleResult describes one finished frame cycle.
type CycleResult struct {
	Seq          uint64
	Face         models.DetectionOutcome
	Pose         models.DetectionOutcome
	FaceStable   bool
	PoseStable   bool
	Present      bool
	Materialized bool
	ConvertErr   error
	Panic        any
	Trace        []CyclePhase
	Latency      time.Duration
}

func (r *CycleResult) enter(p CyclePhase) {
	r.Trace = append(r.Trace, p)
}

// Reached reports whether the cycle passed through phase p.
func (r CycleResult) Reached(p CyclePhase) bool {
	for _, t := range r.Trace {
		if t == p {
			return true
		}
	}
	return false
}

// CoordinatorOptions konfiguriert die Entprellung
type CoordinatorOptions struct {
	FaceValidThreshold   int
	FaceInvalidThreshold int
	PoseValidThreshold   int
	PoseInvalidThreshold int
	// Clock defaults to time.Now
	Clock func() time.Time
}

// Coordinator runs the face and pose detectors concurrently on one frame,
// debounces both signals and materializes the frame into the admitted slot
// while presence holds. RunCycle must only be called from one goroutine.
type Coordinator struct {
	face FaceDetector
	pose PoseDetector

	faceDebounce *debounce.Machine
	poseDebounce *debounce.Machine

	slot    *AdmittedSlot
	convert func(*models.RawFrame) (*models.VisualBuffer, error)
	stats   *stats
	clock   func() time.Time
}

// NewCoordinator erstellt einen neuen Coordinator
func NewCoordinator(face FaceDetector, pose PoseDetector, slot *AdmittedSlot, opts CoordinatorOptions) *Coordinator {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	if slot == nil {
		slot = &AdmittedSlot{}
	}
	return &Coordinator{
		face:         face,
		pose:         pose,
		faceDebounce: debounce.New(opts.FaceValidThreshold, opts.FaceInvalidThreshold),
		poseDebounce: debounce.New(opts.PoseValidThreshold, opts.PoseInvalidThreshold),
		slot:         slot,
		convert:      convert.YUV420ToRGBA,
		stats:        newStats(clock),
		clock:        clock,
	}
}

// Slot returns the admitted slot written by this coordinator.
func (c *Coordinator) Slot() *AdmittedSlot { return c.slot }

// Status returns the latest published counters.
func (c *Coordinator) Status() Status { return c.stats.snapshot() }

// RunCycle processes one frame. The frame is closed exactly once before
// RunCycle returns, whatever the detectors or the conversion do.
func (c *Coordinator) RunCycle(ctx context.Context, frame *models.RawFrame) (res CycleResult) {
	began := c.clock()
	gen := c.slot.Generation()
	res.Seq = frame.Seq
	res.enter(PhaseDispatched)

	defer func() {
		if r := recover(); r != nil {
			res.Panic = r
			log.WithFields(logFields).Errorf("Recovered from panic in frame cycle %d: %v", frame.Seq, r)
		}
		if err := frame.Close(); err != nil {
			log.WithFields(logFields).WithError(err).Warnf("Frame %d already released", frame.Seq)
		}
		res.enter(PhaseClosed)
		res.Latency = c.clock().Sub(began)
		c.stats.finishCycle(&res, began)
	}()

	outcomes := make(chan models.DetectionOutcome, 2)
	go func() { outcomes <- c.detectFace(ctx, frame) }()
	go func() { outcomes <- c.detectPose(ctx, frame) }()
	res.enter(PhaseAwaitingBoth)

	// Beide Ergebnisse abwarten; der Frame darf erst danach freigegeben werden
	for i := 0; i < 2; i++ {
		c.apply(<-outcomes, &res)
	}

	res.FaceStable = c.faceDebounce.Stable()
	res.PoseStable = c.poseDebounce.Stable()
	res.Present = res.FaceStable || res.PoseStable
	res.enter(PhaseMerged)

	if res.Present && frame.Available() {
		res.enter(PhaseMaterializing)
		buf, err := c.materialize(frame)
		if err != nil {
			res.ConvertErr = err
			log.WithFields(logFields).WithError(err).Warnf("Conversion of frame %d failed, keeping previous admitted frame", frame.Seq)
			return res
		}
		if !c.slot.StoreIf(gen, buf) {
			log.WithFields(logFields).Debugf("Slot reset during cycle %d, discarding frame", frame.Seq)
			return res
		}
		res.Materialized = true
	}
	return res
}

// apply feeds one outcome into its debounce machine as soon as it arrives.
func (c *Coordinator) apply(o models.DetectionOutcome, res *CycleResult) {
	var stable bool
	switch o.Kind {
	case models.KindFace:
		res.Face = o
		stable = c.faceDebounce.Update(o.Presence())
	case models.KindPose:
		res.Pose = o
		stable = c.poseDebounce.Update(o.Presence())
	}
	if o.Failed() {
		log.WithFields(logFields).WithError(o.Err).Debug("Detector failed, counting as absent")
	}
	c.stats.applyOutcome(o, stable)
}

func (c *Coordinator) detectFace(ctx context.Context, frame *models.RawFrame) (out models.DetectionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = models.FailedOutcome(models.KindFace, fmt.Errorf("panic: %v", r))
		}
	}()
	if c.face == nil {
		return models.FailedOutcome(models.KindFace, errNoDetector)
	}
	n, err := c.face.DetectFaces(ctx, frame)
	if err != nil {
		return models.FailedOutcome(models.KindFace, err)
	}
	return models.FaceOutcome(n)
}

func (c *Coordinator) detectPose(ctx context.Context, frame *models.RawFrame) (out models.DetectionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = models.FailedOutcome(models.KindPose, fmt.Errorf("panic: %v", r))
		}
	}()
	if c.pose == nil {
		return models.FailedOutcome(models.KindPose, errNoDetector)
	}
	landmarks, err := c.pose.DetectPose(ctx, frame)
	if err != nil {
		return models.FailedOutcome(models.KindPose, err)
	}
	return models.PoseOutcome(landmarks)
}

func (c *Coordinator) materialize(frame *models.RawFrame) (buf *models.VisualBuffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("conversion panic: %v", r)
		}
	}()
	return c.convert(frame)
}

// resetSignals clears both debounce machines. Worker goroutine only.
func (c *Coordinator) resetSignals() {
	c.faceDebounce.Reset()
	c.poseDebounce.Reset()
	c.stats.setStable(false, false)
}
