//go:build linux

package screen

import (
	"image"
	"os/exec"
	"path/filepath"

	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
)

type linuxBackend struct {
	file string
	tool string
}

// newCommandBackend prefers gnome-screenshot and falls back to scrot.
func newCommandBackend(tempDir string) (backend, error) {
	for _, tool := range []string{"gnome-screenshot", "scrot"} {
		if _, err := exec.LookPath(tool); err == nil {
			return &linuxBackend{file: filepath.Join(tempDir, "screenshot.png"), tool: tool}, nil
		}
	}
	return nil, apperrors.Wrap(ErrUnsupported, apperrors.CodeUnavailable, "no screenshot tool found (install gnome-screenshot or scrot)")
}

func (l *linuxBackend) captureRaw() (image.Image, error) {
	if l.tool == "scrot" {
		return runCapture(l.file, "scrot", "-o", l.file)
	}
	return runCapture(l.file, "gnome-screenshot", "-f", l.file)
}

func (l *linuxBackend) cleanup() {}
