package detect

import (
	"context"
	"image"
)

// Detector is a detection engine. Implementations need not be goroutine-safe:
// the scheduler calls Detect from a single worker.
type Detector interface {
	Name() string
	Detect(ctx context.Context, img image.Image) ([]Item, error)
	Close() error
}

// Sink receives detections. Deliver runs on the scheduler worker and must not block.
type Sink interface {
	Deliver(Detection)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Detection)

// Deliver calls f(d).
func (f SinkFunc) Deliver(d Detection) { f(d) }

type fanout []Sink

// Fanout delivers each detection to every sink in order. Nil sinks are skipped.
func Fanout(sinks ...Sink) Sink {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanout) Deliver(d Detection) {
	for _, s := range f {
		s.Deliver(d)
	}
}
