// Package camera reads frames from a video capture device.
package camera

import (
	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
)

// ErrUnavailable is returned when the binary was built without camera support.
var ErrUnavailable = apperrors.New(apperrors.CodeUnavailable, "camera support not built (use -tags gocv)")

// ErrClosed is returned by Grab after Close.
var ErrClosed = apperrors.New(apperrors.CodeUnavailable, "camera closed")
