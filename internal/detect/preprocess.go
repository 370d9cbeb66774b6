package detect

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Preprocess describes image adjustments applied before detection.
type Preprocess struct {
	// Rotate counter-clockwise by 0, 90, 180 or 270 degrees.
	Rotate int
	// MaxWidth downscales wider images; 0 disables. Item bounds are scaled back.
	MaxWidth int
	// Grayscale converts the image before detection.
	Grayscale bool
}

// Validate reports an unsupported rotation or negative width.
func (p Preprocess) Validate() error {
	switch p.Rotate {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("rotation must be a multiple of 90 in [0,270], got %d", p.Rotate)
	}
	if p.MaxWidth < 0 {
		return fmt.Errorf("max width must not be negative, got %d", p.MaxWidth)
	}
	return nil
}

func (p Preprocess) empty() bool {
	return p.Rotate == 0 && p.MaxWidth == 0 && !p.Grayscale
}

type preprocessed struct {
	Detector
	p Preprocess
}

// Preprocessed applies p to every image before handing it to d. Returned bounds
// are in the coordinates of the rotated, full-size image.
func Preprocessed(d Detector, p Preprocess) Detector {
	if p.empty() {
		return d
	}
	return &preprocessed{Detector: d, p: p}
}

func (d *preprocessed) Detect(ctx context.Context, img image.Image) ([]Item, error) {
	base := rotate(img, d.p.Rotate)
	work := base

	bw, bh := base.Bounds().Dx(), base.Bounds().Dy()
	if d.p.MaxWidth > 0 && bw > d.p.MaxWidth {
		work = imaging.Resize(base, d.p.MaxWidth, 0, imaging.Lanczos)
	}
	if d.p.Grayscale {
		work = imaging.Grayscale(work)
	}

	items, err := d.Detector.Detect(ctx, work)
	if err != nil {
		return nil, err
	}

	wb := work.Bounds()
	if wb.Dx() == bw && wb.Dy() == bh && wb.Min == base.Bounds().Min {
		return items, nil
	}
	sx := float64(bw) / float64(wb.Dx())
	sy := float64(bh) / float64(wb.Dy())
	for i := range items {
		items[i].Bounds = scaleRect(items[i].Bounds, wb.Min, base.Bounds().Min, sx, sy)
	}
	return items, nil
}

func rotate(img image.Image, deg int) image.Image {
	switch deg {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return img
	}
}

// scaleRect maps r from the work image (origin from) to the base image (origin to).
func scaleRect(r image.Rectangle, from, to image.Point, sx, sy float64) image.Rectangle {
	x0 := float64(r.Min.X-from.X) * sx
	y0 := float64(r.Min.Y-from.Y) * sy
	x1 := float64(r.Max.X-from.X) * sx
	y1 := float64(r.Max.Y-from.Y) * sy
	return image.Rect(
		to.X+int(math.Floor(x0)), to.Y+int(math.Floor(y0)),
		to.X+int(math.Ceil(x1)), to.Y+int(math.Ceil(y1)),
	)
}
