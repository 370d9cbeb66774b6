// Package feed pulls frames from a capture source at a fixed rate and submits
// the ones that changed to the frame scheduler.
package feed

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/dustin/go-humanize"
)

// Source produces frames. changed is false when the source knows the frame
// matches the previous one.
type Source interface {
	Grab() (img image.Image, changed bool, err error)
}

// Submitter accepts frames. *scheduler.Scheduler satisfies it.
type Submitter interface {
	Submit(img image.Image, source string) uint64
}

// Stats counts feeder activity across runs.
type Stats struct {
	Name      string
	Grabbed   uint64
	Unchanged uint64 // reported unchanged by the source
	Similar   uint64 // skipped by perceptual hash
	Submitted uint64
	Errors    uint64
}

// Feeder drives one Source.
type Feeder struct {
	name      string
	src       Source
	rate      float64
	threshold int // max pHash distance treated as the same frame; <0 disables

	mu       sync.RWMutex
	latest   image.Image
	lastHash *goimagehash.ImageHash

	grabbed, unchanged, similar, submitted, errors atomic.Uint64
}

// New creates a feeder grabbing from src rate times per second.
func New(name string, src Source, rate float64, threshold int) *Feeder {
	return &Feeder{name: name, src: src, rate: rate, threshold: threshold}
}

// Name returns the source name stamped on submitted frames.
func (f *Feeder) Name() string { return f.name }

// Run grabs frames until ctx is done or stopCh is closed.
func (f *Feeder) Run(ctx context.Context, sub Submitter, stopCh <-chan struct{}) {
	interval := time.Duration(float64(time.Second) / f.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.mu.Lock()
	f.lastHash = nil
	f.mu.Unlock()

	log := slog.With("source", f.name)
	log.Debug("feeder started", "interval", interval)
	defer func() {
		log.Debug("feeder stopped", "grabbed", humanize.Comma(int64(f.grabbed.Load())), "submitted", humanize.Comma(int64(f.submitted.Load())))
	}()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			img, changed, err := f.src.Grab()
			if err != nil {
				f.errors.Add(1)
				// Log the first error of a streak, not every tick.
				if !failing {
					log.Warn("frame grab failed", "error", err)
					failing = true
				}
				continue
			}
			if failing {
				log.Info("frame grab recovered")
				failing = false
			}
			f.grabbed.Add(1)
			if !changed || img == nil {
				f.unchanged.Add(1)
				continue
			}

			f.mu.Lock()
			f.latest = img
			f.mu.Unlock()

			if f.shouldSkip(img) {
				f.similar.Add(1)
				continue
			}
			if sub.Submit(img, f.name) != 0 {
				f.submitted.Add(1)
			}
		}
	}
}

// shouldSkip computes the pHash and reports whether img is within the
// threshold distance of the last submitted frame.
func (f *Feeder) shouldSkip(img image.Image) bool {
	if f.threshold < 0 {
		return false
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lastHash == nil {
		f.lastHash = hash
		return false
	}

	dist, err := f.lastHash.Distance(hash)
	if err != nil {
		f.lastHash = hash
		return false
	}

	if dist <= f.threshold {
		slog.Debug("skipping similar frame", "source", f.name, "distance", dist)
		return true
	}

	f.lastHash = hash
	return false
}

// Latest returns the most recent changed frame, or nil.
func (f *Feeder) Latest() image.Image {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest
}

// Stats returns the feeder counters.
func (f *Feeder) Stats() Stats {
	return Stats{
		Name:      f.name,
		Grabbed:   f.grabbed.Load(),
		Unchanged: f.unchanged.Load(),
		Similar:   f.similar.Load(),
		Submitted: f.submitted.Load(),
		Errors:    f.errors.Load(),
	}
}
