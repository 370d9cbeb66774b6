//go:build !gocv

package camera

import "image"

// Camera is unavailable in builds without the gocv tag.
type Camera struct{}

// Open always fails without the gocv tag.
func Open(device, width, height int) (*Camera, error) {
	return nil, ErrUnavailable
}

func (c *Camera) Grab() (image.Image, bool, error) { return nil, false, ErrClosed }

func (c *Camera) Close() {}
