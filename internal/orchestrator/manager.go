package orchestrator

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/scanline/internal/config"
	"github.com/GriffinCanCode/scanline/internal/detect"
	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
	"github.com/GriffinCanCode/scanline/internal/orchestrator/debounce"
	"github.com/GriffinCanCode/scanline/internal/orchestrator/feed"
	"github.com/GriffinCanCode/scanline/internal/orchestrator/history"
	"github.com/GriffinCanCode/scanline/internal/overlay"
	"github.com/GriffinCanCode/scanline/internal/scheduler"
	"github.com/GriffinCanCode/scanline/internal/trace"
	"github.com/google/uuid"
)

var (
	// ErrRunning is returned by Start while a session is active.
	ErrRunning = errors.New("orchestrator: already running")
	// ErrNotRunning is returned when frames are submitted with no active session.
	ErrNotRunning = apperrors.New(apperrors.CodeSchedulerStopped, "scanning is not running")
)

// DetectorFactory builds a fresh detector for each session. The session's
// scheduler releases it on Stop.
type DetectorFactory func() (detect.Detector, error)

// Stats summarizes the manager state.
type Stats struct {
	Running bool
	Session string
	Runs    int
	Frames  scheduler.Stats // current session, or the last one
	Feeders []feed.Stats
}

// Manager owns one scanning session at a time. A stopped scheduler cannot be
// restarted, so every Start builds a new scheduler and detector.
type Manager struct {
	cfg     *config.Config
	factory DetectorFactory
	feeders []*feed.Feeder

	overlay *overlay.Overlay
	history *history.MemoryStore
	gate    *debounce.Gate

	// lifecycle serializes Start and Stop; never taken by the worker.
	lifecycle sync.Mutex

	mu       sync.RWMutex
	sched    *scheduler.Scheduler
	stopCh   chan struct{}
	cancel   context.CancelFunc
	session  string
	log      *slog.Logger // carries the trace of the Start that opened the session
	runs     int
	lastRun  scheduler.Stats
	stopping atomic.Bool

	feedWG sync.WaitGroup
}

// New creates a manager. Feeders run only while a session is active.
func New(cfg *config.Config, factory DetectorFactory, feeders ...*feed.Feeder) *Manager {
	return &Manager{
		cfg:     cfg,
		factory: factory,
		feeders: feeders,
		overlay: overlay.New(),
		history: history.NewStore(cfg.HistorySize, HistoryEventBuffer),
		gate:    debounce.NewGate(cfg.AnnounceCooldown, true),
	}
}

// Overlay returns the overlay fed by every session.
func (m *Manager) Overlay() *overlay.Overlay { return m.overlay }

// History returns the recognition history.
func (m *Manager) History() *history.MemoryStore { return m.history }

// Feeders returns the configured capture feeders.
func (m *Manager) Feeders() []*feed.Feeder { return m.feeders }

// Start begins a session. ctx bounds the session's lifetime.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	ctx, span := trace.StartSpan(ctx, "scan_start")
	defer span.End()
	log := trace.Logger(ctx)

	if m.Running() {
		return ErrRunning
	}

	det, err := m.factory()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDetectorUnavailable, "build detector")
	}

	sched := scheduler.New(detect.NewProcessor(det, detect.Fanout(m.overlay, detect.SinkFunc(m.record))))
	runCtx, cancel := context.WithCancel(ctx)
	if err := sched.Start(runCtx); err != nil {
		cancel()
		return err
	}

	stopCh := make(chan struct{})
	session := uuid.NewString()

	m.overlay.Clear()
	m.gate.Reset()
	m.stopping.Store(false)

	m.mu.Lock()
	m.sched = sched
	m.stopCh = stopCh
	m.cancel = cancel
	m.session = session
	m.log = log
	m.runs++
	m.mu.Unlock()

	for _, f := range m.feeders {
		m.feedWG.Add(1)
		go func(f *feed.Feeder) {
			defer m.feedWG.Done()
			f.Run(runCtx, sched, stopCh)
		}(f)
	}

	span.SetAttr("session", session)
	log.Info("scanning started", "session", session, "detector", det.Name(), "feeders", len(m.feeders))
	return nil
}

// Stop ends the current session: feeders first, then the scheduler, then the
// detector. Safe to call when idle.
func (m *Manager) Stop() {
	m.stopSession(nil)
}

// stopSession stops the current session, or only the given one when want is set.
func (m *Manager) stopSession(want *scheduler.Scheduler) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	sched, stopCh, cancel, session, log := m.sched, m.stopCh, m.cancel, m.session, m.log
	if sched == nil || (want != nil && sched != want) {
		m.mu.Unlock()
		return
	}
	m.sched = nil
	m.mu.Unlock()

	close(stopCh)
	m.feedWG.Wait()

	sched.Stop()
	cancel()

	if err := sched.Release(); err != nil {
		log.Warn("detector release failed", "session", session, "error", err)
	}

	st := sched.Stats()
	m.mu.Lock()
	m.lastRun = st
	m.mu.Unlock()

	log.Info("scanning stopped", "session", session, "submitted", st.Submitted, "processed", st.Processed, "dropped", st.Dropped, "failed", st.Failed)
}

// Running reports whether a session is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sched != nil
}

// SubmitImage schedules an uploaded image. It returns ErrNotRunning when idle.
func (m *Manager) SubmitImage(img image.Image, source string) (uint64, error) {
	m.mu.RLock()
	sched := m.sched
	m.mu.RUnlock()

	if sched == nil {
		return 0, ErrNotRunning
	}
	id := sched.Submit(img, source)
	if id == 0 {
		return 0, ErrNotRunning
	}
	return id, nil
}

// Stats returns a snapshot of the manager and its current session.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	st := Stats{
		Running: m.sched != nil,
		Session: m.session,
		Runs:    m.runs,
		Frames:  m.lastRun,
	}
	sched := m.sched
	m.mu.RUnlock()

	if sched != nil {
		st.Frames = sched.Stats()
	}
	for _, f := range m.feeders {
		st.Feeders = append(st.Feeders, f.Stats())
	}
	return st
}

// Close stops scanning and ends overlay subscriptions.
func (m *Manager) Close() {
	m.Stop()
	m.overlay.Close()
}

// record runs on the scheduler worker. It must never block on the lifecycle lock.
func (m *Manager) record(d detect.Detection) {
	foundCode := false
	for _, it := range d.Items {
		text := strings.TrimSpace(it.Text)
		if len(text) < MinTextLengthForHistory && it.Kind != detect.KindBarcode {
			continue
		}
		if it.Kind == detect.KindBarcode {
			foundCode = true
		}
		if !m.gate.Allow(string(it.Kind) + ":" + text) {
			continue
		}
		ev := history.Event{Text: text, Kind: string(it.Kind), Source: d.Source, FrameID: d.FrameID}
		m.history.Add(ev)
		m.history.Emit(ev)
	}

	if foundCode && m.cfg.StopOnDetect && m.stopping.CompareAndSwap(false, true) {
		m.mu.RLock()
		sched := m.sched
		m.mu.RUnlock()
		if sched != nil {
			// Stopping joins this worker, so it has to happen elsewhere.
			go m.stopSession(sched)
		}
	}
}
