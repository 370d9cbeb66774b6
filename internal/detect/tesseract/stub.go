//go:build !tesseract

package tesseract

import (
	"context"
	"image"

	"github.com/GriffinCanCode/scanline/internal/detect"
)

// Detector is unavailable in builds without the tesseract tag.
type Detector struct{}

// New always fails with ErrUnavailable.
func New(...string) (*Detector, error) { return nil, ErrUnavailable }

func (*Detector) Name() string { return Name }

func (*Detector) Detect(context.Context, image.Image) ([]detect.Item, error) {
	return nil, ErrUnavailable
}

func (*Detector) Close() error { return nil }
