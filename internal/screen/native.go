package screen

import (
	"image"

	"github.com/vova616/screenshot"
)

// nativeBackend reads the framebuffer directly.
type nativeBackend struct{ region image.Rectangle }

func (n *nativeBackend) captureRaw() (image.Image, error) {
	if n.region.Empty() {
		img, err := screenshot.CaptureScreen()
		if err != nil {
			return nil, err
		}
		return img, nil
	}
	img, err := screenshot.CaptureRect(n.region)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (n *nativeBackend) cleanup() {}

// NewNative creates a capturer for region of the screen, or the whole screen
// when region is empty.
func NewNative(region image.Rectangle) Capturer {
	return newBase(&nativeBackend{region: region}, "")
}

// Bounds returns the size of the primary screen.
func Bounds() (image.Rectangle, error) {
	return screenshot.ScreenRect()
}
