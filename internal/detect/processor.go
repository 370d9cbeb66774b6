package detect

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
	"github.com/GriffinCanCode/scanline/internal/scheduler"
	"github.com/GriffinCanCode/scanline/internal/trace"
)

// Processor runs a Detector for each scheduled frame and hands the result to a Sink.
// It implements scheduler.Detector.
type Processor struct {
	det  Detector
	sink Sink
	log  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ scheduler.Detector = (*Processor)(nil)

// NewProcessor creates a processor delivering det's results to sink.
func NewProcessor(det Detector, sink Sink) *Processor {
	if sink == nil {
		sink = Fanout()
	}
	return &Processor{det: det, sink: sink, log: slog.Default()}
}

// ReceiveFrame detects items in f and delivers them, even when none were found
// so that consumers can clear stale results.
func (p *Processor) ReceiveFrame(ctx context.Context, f scheduler.Frame) error {
	ctx, span := trace.StartSpan(ctx, "detect")
	span.SetAttr("frame_id", f.ID)
	span.SetAttr("detector", p.det.Name())

	if f.Image == nil {
		span.End()
		return apperrors.Newf(apperrors.CodeInvalidImage, "frame %d has no image", f.ID)
	}

	start := time.Now()
	items, err := p.det.Detect(ctx, f.Image)
	elapsed := time.Since(start)
	span.End()
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperrors.Wrapf(err, apperrors.CodeDetectFailed, "detect frame %d", f.ID)
	}

	span.SetAttr("items", len(items))
	p.sink.Deliver(Detection{
		FrameID:   f.ID,
		Timestamp: f.Timestamp,
		Source:    f.Source,
		Detector:  p.det.Name(),
		Items:     items,
		Elapsed:   elapsed,
	})
	trace.LoggerFrom(ctx, p.log).Debug("frame processed", "span", span)
	return nil
}

// Release closes the detector. Later calls return the first result.
func (p *Processor) Release() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.det.Close()
	})
	return p.closeErr
}
