//go:build gocv

package camera

import (
	"fmt"
	"image"
	"sync"

	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
	"gocv.io/x/gocv"
)

// Camera is an open capture device. Every grab is reported as changed;
// the feeder's perceptual hash drops near-duplicates.
type Camera struct {
	device int

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	frame  gocv.Mat
	closed bool
}

// Open opens device and requests a width x height stream. Zero keeps the
// driver default.
func Open(device, width, height int) (*Camera, error) {
	vc, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeUnavailable, "open camera %d", device)
	}
	if width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	return &Camera{device: device, vc: vc, frame: gocv.NewMat()}, nil
}

// Grab reads the next frame from the device.
func (c *Camera) Grab() (image.Image, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, ErrClosed
	}
	if !c.vc.Read(&c.frame) || c.frame.Empty() {
		return nil, false, fmt.Errorf("camera %d: no frame", c.device)
	}
	img, err := c.frame.ToImage()
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.CodeInvalidImage, "convert camera frame")
	}
	return img, true, nil
}

// Close releases the device. Safe to call more than once.
func (c *Camera) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.vc.Close()
	c.frame.Close()
}
