package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"presence-gate/internal/core/gate"
	"presence-gate/internal/core/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CommitResult ist das Ergebnis einer Commit-Anfrage
type CommitResult struct {
	ID       string              `json:"id"`
	At       time.Time           `json:"at"`
	Decision models.GateDecision `json:"decision"`
	// NoFrame is set when nothing (or nothing fresh enough) was admitted.
	NoFrame  bool          `json:"no_frame"`
	Stale    bool          `json:"stale"`
	FrameSeq uint64        `json:"frame_seq"`
	FrameAge time.Duration `json:"frame_age_ns"`
	// Frame is the buffer the gate evaluated, nil when NoFrame is set.
	Frame  *models.VisualBuffer `json:"-"`
	Status Status               `json:"-"`
}

// Accepted is a shortcut for Decision.Accepted.
func (r CommitResult) Accepted() bool { return r.Decision.Accepted }

// DispatcherOptions konfiguriert den Dispatcher
type DispatcherOptions struct {
	// MaxAdmittedAge bounds how old the admitted frame may be at commit time.
	// Zero means unlimited.
	MaxAdmittedAge time.Duration
	Clock          func() time.Time
}

// Dispatcher accepts frames from the camera callback and hands them to a
// single worker goroutine. The inbox keeps only the latest frame: a frame
// that is replaced before the worker picks it up is released at once.
type Dispatcher struct {
	coord  *Coordinator
	gate   *gate.Gate
	maxAge time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	cond    *sync.Cond
	pending *models.RawFrame
	closed  bool
	running bool

	commitMu sync.Mutex

	paused       atomic.Bool
	resetPending atomic.Bool
	arrivals     atomic.Uint64
	dropped      atomic.Uint64
	lastCommit   atomic.Pointer[CommitResult]

	observersMu sync.RWMutex
	observers   []Observer

	// nur vom Worker benutzt
	lastFace, lastPose bool

	cancel   context.CancelFunc // guarded by mu
	done     chan struct{}
	stopOnce sync.Once
}

// NewDispatcher erstellt einen neuen Dispatcher
func NewDispatcher(coord *Coordinator, g *gate.Gate, opts DispatcherOptions) *Dispatcher {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	if g == nil {
		g = gate.New(nil, 0)
	}
	d := &Dispatcher{
		coord:  coord,
		gate:   g,
		maxAge: opts.MaxAdmittedAge,
		clock:  clock,
		done:   make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// AddObserver registers o for presence and commit events.
func (d *Dispatcher) AddObserver(o Observer) {
	d.observersMu.Lock()
	d.observers = append(d.observers, o)
	d.observersMu.Unlock()
}

// Start launches the worker goroutine. It returns immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running || d.closed {
		d.mu.Unlock()
		return
	}
	d.running = true
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	log.WithFields(logFields).Info("Starting frame dispatcher")
	go d.run(ctx)
}

// Stop shuts the worker down and releases a frame still waiting in the inbox.
// A cycle already running is allowed to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		pending := d.pending
		d.pending = nil
		running := d.running
		cancel := d.cancel
		d.cond.Broadcast()
		d.mu.Unlock()

		if pending != nil {
			_ = pending.Close()
		}
		if cancel != nil {
			cancel()
		}
		if running {
			<-d.done
		}
		log.WithFields(logFields).Info("Frame dispatcher stopped")
	})
}

// OnFrame is called by the camera for every sample. It never blocks on
// analysis work.
func (d *Dispatcher) OnFrame(frame *models.RawFrame) {
	if frame == nil {
		return
	}
	d.arrivals.Add(1)

	if d.paused.Load() {
		_ = frame.Close()
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = frame.Close()
		return
	}
	replaced := d.pending
	d.pending = frame
	d.cond.Signal()
	d.mu.Unlock()

	if replaced != nil {
		d.dropped.Add(1)
		_ = replaced.Close()
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		d.mu.Lock()
		for d.pending == nil && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		frame := d.pending
		d.pending = nil
		d.mu.Unlock()

		if d.resetPending.Swap(false) {
			d.coord.resetSignals()
		}

		res := d.coord.RunCycle(ctx, frame)
		d.afterCycle(res)
	}
}

func (d *Dispatcher) afterCycle(res CycleResult) {
	if res.FaceStable == d.lastFace && res.PoseStable == d.lastPose {
		return
	}
	d.lastFace, d.lastPose = res.FaceStable, res.PoseStable
	status := d.Status()
	log.WithFields(logFields).Infof("Presence changed: face=%t pose=%t", res.FaceStable, res.PoseStable)
	for _, o := range d.snapshotObservers() {
		o.OnPresenceChanged(status)
	}
}

func (d *Dispatcher) snapshotObservers() []Observer {
	d.observersMu.RLock()
	defer d.observersMu.RUnlock()
	return append([]Observer(nil), d.observers...)
}

// OnCommitRequested asks the gate whether the currently admitted frame is new
// enough to be stored. Without an admitted frame the answer is true.
func (d *Dispatcher) OnCommitRequested(ctx context.Context) bool {
	return d.Commit(ctx).Accepted()
}

// Commit is OnCommitRequested with the full verdict. Commits are serialised.
func (d *Dispatcher) Commit(ctx context.Context) CommitResult {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	now := d.clock()
	res := CommitResult{ID: uuid.NewString(), At: now}

	buf := d.coord.Slot().Load()
	if buf != nil {
		res.FrameSeq = buf.Seq
		res.FrameAge = now.Sub(buf.CapturedAt)
		if d.maxAge > 0 && res.FrameAge > d.maxAge {
			log.WithFields(logFields).Debugf("Admitted frame %d is %v old, treating as absent", buf.Seq, res.FrameAge)
			res.Stale = true
			buf = nil
		}
	}

	if buf == nil {
		res.NoFrame = true
		res.Decision = models.GateDecision{Accepted: true}
	} else {
		res.Frame = buf
		res.Decision = d.gate.ShouldAccept(ctx, buf)
	}

	stored := res
	stored.Frame = nil
	d.lastCommit.Store(&stored)
	res.Status = d.Status()
	log.WithFields(logFields).Infof("Commit %s: accepted=%t similarity=%.4f no_frame=%t", res.ID, res.Decision.Accepted, res.Decision.Similarity, res.NoFrame)

	for _, o := range d.snapshotObservers() {
		o.OnCommit(res)
	}
	return res
}

// Pause stops analysis: incoming frames are released without processing.
func (d *Dispatcher) Pause() {
	if !d.paused.Swap(true) {
		log.WithFields(logFields).Info("Analysis paused")
	}
}

// Resume re-enables analysis.
func (d *Dispatcher) Resume() {
	if d.paused.Swap(false) {
		log.WithFields(logFields).Info("Analysis resumed")
	}
}

// Paused reports whether analysis is paused.
func (d *Dispatcher) Paused() bool { return d.paused.Load() }

// Reset forgets the stored embedding, the admitted frame and the debounce
// state. The debounce machines are cleared by the worker before its next cycle.
func (d *Dispatcher) Reset() {
	d.gate.Reset()
	d.coord.Slot().Clear()
	d.resetPending.Store(true)
	d.lastCommit.Store(nil)
	log.WithFields(logFields).Info("Pipeline state reset")
}

// Admitted returns the current admitted frame or nil.
func (d *Dispatcher) Admitted() *models.VisualBuffer {
	return d.coord.Slot().Load()
}

// Status merges the worker counters with the dispatcher state.
func (d *Dispatcher) Status() Status {
	s := d.coord.Status()
	s.Arrivals = d.arrivals.Load()
	s.Dropped = d.dropped.Load()
	s.Paused = d.paused.Load()
	if lc := d.lastCommit.Load(); lc != nil {
		cp := *lc
		s.LastCommit = &cp
	}
	s.Indicator = s.indicator()
	return s
}
