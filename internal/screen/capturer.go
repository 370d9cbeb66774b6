// Package screen provides platform-agnostic screen capture with change detection
package screen

import (
	"image"
	"os"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// sampleGrid is the number of pixels sampled per axis when digesting a frame.
const sampleGrid = 128

// Capturer grabs the screen. changed is false when the frame matches the
// previous grab, in which case the image is nil.
type Capturer interface {
	Grab() (img image.Image, changed bool, err error)
	Close()
}

// backend implements platform-specific raw capture
type backend interface {
	captureRaw() (image.Image, error)
	cleanup()
}

// baseCapturer provides shared digest-based change detection
type baseCapturer struct {
	backend
	tempDir string

	mu   sync.Mutex
	last [blake2b.Size256]byte
	seen bool
}

func newBase(b backend, tempDir string) *baseCapturer {
	return &baseCapturer{backend: b, tempDir: tempDir}
}

func (c *baseCapturer) Grab() (image.Image, bool, error) {
	img, err := c.captureRaw()
	if err != nil {
		return nil, false, err
	}

	sum := digest(img)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen && sum == c.last {
		return nil, false, nil
	}
	c.last, c.seen = sum, true
	return img, true, nil
}

func (c *baseCapturer) Close() {
	c.cleanup()
	if c.tempDir != "" {
		os.RemoveAll(c.tempDir)
	}
}

// digest hashes the frame size and a grid of sampled pixels.
func digest(img image.Image) [blake2b.Size256]byte {
	b := img.Bounds()
	stepX := max(b.Dx()/sampleGrid, 1)
	stepY := max(b.Dy()/sampleGrid, 1)

	buf := make([]byte, 0, 16+sampleGrid*sampleGrid*4)
	buf = appendInt(buf, b.Dx())
	buf = appendInt(buf, b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			r, g, bl, a := img.At(x, y).RGBA()
			buf = append(buf, byte(r>>8), byte(g>>8), byte(bl>>8), byte(a>>8))
		}
	}
	return blake2b.Sum256(buf)
}

func appendInt(buf []byte, v int) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
