package orchestrator

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/scanline/internal/config"
	"github.com/GriffinCanCode/scanline/internal/detect"
	"github.com/GriffinCanCode/scanline/internal/detect/barcode"
	"github.com/GriffinCanCode/scanline/internal/detect/remote"
	"github.com/GriffinCanCode/scanline/internal/detect/tesseract"
)

// NewDetectorFactory builds detectors from cfg: the enabled engines in order,
// then preprocessing, then the result cache.
func NewDetectorFactory(cfg *config.Config) DetectorFactory {
	return func() (detect.Detector, error) {
		var engines []detect.Detector
		closeAll := func() {
			for _, d := range engines {
				_ = d.Close()
			}
		}

		for _, name := range cfg.Detectors {
			d, err := newEngine(cfg, name)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("detector %s: %w", name, err)
			}
			engines = append(engines, d)
		}
		if len(engines) == 0 {
			return nil, errors.New("no detectors configured")
		}

		pre := detect.Preprocess{
			Rotate:    normalizeRotation(cfg.FrameRotate),
			MaxWidth:  cfg.FrameMaxWidth,
			Grayscale: cfg.FrameGrayscale,
		}
		if err := pre.Validate(); err != nil {
			closeAll()
			return nil, err
		}
		det := detect.Preprocessed(detect.Multi(engines...), pre)

		if cfg.DetectionCacheSize > 0 {
			cached, err := detect.Cached(det, cfg.DetectionCacheSize)
			if err != nil {
				closeAll()
				return nil, err
			}
			return cached, nil
		}
		return det, nil
	}
}

func newEngine(cfg *config.Config, name string) (detect.Detector, error) {
	switch name {
	case config.DetectorBarcode:
		return barcode.New(), nil
	case config.DetectorTesseract:
		return tesseract.New(cfg.OCRLanguages...)
	case config.DetectorRemote:
		return remote.New(cfg.RecognizerAddr)
	default:
		return nil, fmt.Errorf("unknown detector %q", name)
	}
}

func normalizeRotation(deg int) int {
	return ((deg % 360) + 360) % 360
}
