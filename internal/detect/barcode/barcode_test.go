package barcode

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/GriffinCanCode/scanline/internal/detect"
)

var _ detect.Detector = (*Detector)(nil)

func TestDetectBlankImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}

	items, err := New().Detect(context.Background(), img)

	if err != nil {
		t.Fatalf("Detect() error = %v, want nil", err)
	}
	if len(items) != 0 {
		t.Errorf("Detect() = %v, want no items", items)
	}
}

func TestDetectNoise(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if (x*7+y*3)%5 == 0 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}

	if _, err := New().Detect(context.Background(), img); err != nil {
		t.Errorf("Detect() error = %v, want nil", err)
	}
}

func TestDetectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().Detect(ctx, image.NewGray(image.Rect(0, 0, 8, 8))); err == nil {
		t.Error("Detect() with cancelled context should fail")
	}
}

func TestNameAndClose(t *testing.T) {
	d := New()
	if d.Name() != Name {
		t.Errorf("Name() = %q, want %q", d.Name(), Name)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
