package screen

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"os/exec"

	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
)

// ErrUnsupported is returned when no capture command exists for this platform.
var ErrUnsupported = apperrors.New(apperrors.CodeUnavailable, "screen capture command not supported on this platform")

// NewCommand creates a capturer that shells out to the platform screenshot tool.
func NewCommand() (Capturer, error) {
	tmpDir, err := os.MkdirTemp("", "scanline-screen-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	b, err := newCommandBackend(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}
	return newBase(b, tmpDir), nil
}

// runCapture runs name with args, then decodes and removes file.
func runCapture(file, name string, args ...string) (image.Image, error) {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Debug("screenshot command failed", "cmd", name, "stderr", stderr.String())
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer os.Remove(file)
	return decodeFile(file)
}

func decodeFile(file string) (image.Image, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidImage, "decode screenshot")
	}
	return img, nil
}
