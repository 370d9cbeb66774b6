// Package scheduler feeds image frames to a detector on a dedicated goroutine,
// always processing the newest frame and dropping the ones it could not get to.
//
// Producers call Submit at whatever rate they like; Submit never blocks on
// detection. The pending slot holds at most one frame, so a frame submitted
// while another is waiting replaces it. The worker goroutine takes the pending
// frame, runs the detector outside the lock, then immediately loops for the
// next one. When detection is slower than the producer, intermediate frames are
// dropped: freshness wins over completeness and there is no throttling signal
// back to the producer beyond Stats.Dropped.
//
// Lifecycle:
//
//	s := scheduler.New(det)
//	_ = s.Start(ctx) // exactly one worker
//	s.Submit(img, "camera")
//	s.Stop()         // joins the worker
//	_ = s.Release()  // releases det; only valid after Stop
//
// A stopped scheduler cannot be restarted; create a new one.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Precondition violations. These indicate caller bugs and are never retried.
var (
	ErrAlreadyStarted = errors.New("scheduler: already started")
	ErrInactive       = errors.New("scheduler: inactive, create a new scheduler to resume")
	ErrWorkerRunning  = errors.New("scheduler: worker has not terminated")
)

// Detector consumes frames on the worker goroutine. ReceiveFrame is called
// synchronously and never concurrently with itself; results are delivered by
// the detector to its own sink. Release is called at most once, after the
// worker has exited.
type Detector interface {
	ReceiveFrame(ctx context.Context, f Frame) error
	Release() error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for worker diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithClock overrides the time source used to stamp frames.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler is a single-slot, always-latest frame scheduler.
type Scheduler struct {
	det   Detector
	log   *slog.Logger
	now   func() time.Time
	epoch time.Time

	// mu guards the active flag and the pending slot together.
	mu       sync.Mutex
	cond     *sync.Cond
	active   bool
	started  bool
	released bool
	pending  *Frame
	nextID   uint64

	done chan struct{} // closed when the worker has exited (or Stop ran before Start)

	submitted atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	lastID    atomic.Uint64
}

// New creates an Active scheduler that will feed det once started.
func New(det Detector, opts ...Option) *Scheduler {
	s := &Scheduler{
		det:    det,
		log:    slog.Default(),
		now:    time.Now,
		active: true,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cond = sync.NewCond(&s.mu)
	s.epoch = s.now()
	return s
}

// Start launches the worker goroutine. Cancelling ctx while the worker waits
// for a frame ends the worker without processing the pending frame; ctx is
// also passed to the detector.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return ErrInactive
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	// Wake the worker on cancellation. Taking mu orders the broadcast after
	// the worker has either re-checked ctx or parked in Wait.
	stopWake := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})

	go s.run(ctx, stopWake)
	s.log.Debug("frame scheduler started")
	return nil
}

// Submit stores img as the pending frame, replacing any frame the worker has
// not taken yet, and wakes the worker. It never blocks on detection. It
// returns the assigned frame ID, or 0 if the scheduler is inactive.
func (s *Scheduler) Submit(img image.Image, source string) uint64 {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return 0
	}

	s.nextID++
	f := &Frame{
		ID:         s.nextID,
		Timestamp:  now.Sub(s.epoch),
		CapturedAt: now,
		Image:      img,
		Source:     source,
	}
	if s.pending != nil {
		s.dropped.Add(1)
	}
	s.pending = f
	s.submitted.Add(1)
	s.cond.Signal()
	return f.ID
}

// Stop marks the scheduler Inactive, wakes the worker and waits for it to exit.
// Safe to call more than once and before Start. Must not be called from the
// detector itself, since the worker cannot join itself.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.active = false
	if !s.started {
		s.started = true
		s.discardLocked()
		close(s.done)
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done
}

// Release releases the detector. The worker must have terminated.
func (s *Scheduler) Release() error {
	s.mu.Lock()
	if s.active || !s.terminated() {
		s.mu.Unlock()
		return ErrWorkerRunning
	}
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	if err := s.det.Release(); err != nil {
		return fmt.Errorf("release detector: %w", err)
	}
	return nil
}

// State reports whether the scheduler still accepts frames.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return Active
	}
	return Inactive
}

// Done is closed once the worker has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted:   s.submitted.Load(),
		Processed:   s.processed.Load(),
		Failed:      s.failed.Load(),
		Dropped:     s.dropped.Load(),
		LastFrameID: s.lastID.Load(),
		State:       s.State(),
	}
}

func (s *Scheduler) terminated() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Scheduler) run(ctx context.Context, stopWake func() bool) {
	defer close(s.done)
	defer stopWake()

	for {
		f, ok := s.next(ctx)
		if !ok {
			return
		}
		s.process(ctx, f)
	}
}

// next blocks until a frame is pending, the scheduler is stopped, or ctx is done.
func (s *Scheduler) next(ctx context.Context) (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.active && s.pending == nil && ctx.Err() == nil {
		s.cond.Wait()
	}

	if !s.active {
		s.discardLocked()
		s.log.Debug("frame scheduler stopped", "processed", s.processed.Load(), "dropped", s.dropped.Load())
		return Frame{}, false
	}
	if err := ctx.Err(); err != nil {
		s.active = false
		s.discardLocked()
		s.log.Debug("frame scheduler cancelled", "reason", err)
		return Frame{}, false
	}

	f := *s.pending
	s.pending = nil
	return f, true
}

// process runs the detector outside the lock so producers can keep submitting.
// A failing or panicking detector costs one frame, never the loop.
func (s *Scheduler) process(ctx context.Context, f Frame) {
	s.lastID.Store(f.ID)

	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			s.log.Error("detector panicked", "frame_id", f.ID, "source", f.Source, "panic", r)
		}
	}()

	if err := s.det.ReceiveFrame(ctx, f); err != nil {
		s.failed.Add(1)
		s.log.Warn("detector failed", "frame_id", f.ID, "source", f.Source, "error", err)
		return
	}
	s.processed.Add(1)
}

// discardLocked drops the pending frame, if any. Caller holds mu.
func (s *Scheduler) discardLocked() {
	if s.pending != nil {
		s.pending = nil
		s.dropped.Add(1)
	}
}
