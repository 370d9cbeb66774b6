package scheduler

import (
	"image"
	"time"
)

// Frame is one image handed to the detector. It is immutable once submitted:
// producers must not touch Image after Submit.
type Frame struct {
	// ID increases by one per Submit on a scheduler; gaps seen downstream are drops.
	ID uint64
	// Timestamp is the submission time relative to scheduler construction.
	Timestamp time.Duration
	// CapturedAt is the wall-clock submission time.
	CapturedAt time.Time
	Image      image.Image
	// Source names the producer ("screen", "camera", "upload").
	Source string
}

// State is the scheduler lifecycle state.
type State uint32

const (
	Active State = iota
	Inactive
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// Stats is a snapshot of scheduler counters.
//
// Once the worker has exited, Submitted == Processed + Failed + Dropped.
type Stats struct {
	Submitted   uint64
	Processed   uint64
	Failed      uint64
	Dropped     uint64 // overwritten in the slot, or pending at shutdown
	LastFrameID uint64 // last frame handed to the detector
	State       State
}
