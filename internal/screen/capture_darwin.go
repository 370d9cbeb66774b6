//go:build darwin

package screen

import (
	"image"
	"path/filepath"
)

type darwinBackend struct{ file string }

func newCommandBackend(tempDir string) (backend, error) {
	return &darwinBackend{file: filepath.Join(tempDir, "screenshot.png")}, nil
}

// -x: no sound, -m: main display only
func (d *darwinBackend) captureRaw() (image.Image, error) {
	return runCapture(d.file, "screencapture", "-x", "-t", "png", "-m", d.file)
}

func (d *darwinBackend) cleanup() {}
