// Package barcode decodes QR codes with goqr.
package barcode

import (
	"context"
	"image"
	"log/slog"

	"github.com/GriffinCanCode/scanline/internal/detect"
	"github.com/liyue201/goqr"
)

// Name identifies this detector in detections and logs.
const Name = "barcode"

// Detector finds QR codes in an image.
type Detector struct{}

// New returns a QR detector. It holds no native resources.
func New() *Detector { return &Detector{} }

// Name implements detect.Detector.
func (*Detector) Name() string { return Name }

// Detect decodes every QR code in img. goqr reports no symbol positions, so each
// item spans the whole frame. An image without codes yields no items and no error.
func (*Detector) Detect(ctx context.Context, img image.Image) ([]detect.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	codes, err := goqr.Recognize(img)
	if err != nil {
		// goqr reports "no code found" and decode failures alike.
		slog.Debug("qr recognize", "error", err)
		return nil, nil
	}

	items := make([]detect.Item, 0, len(codes))
	for _, c := range codes {
		if len(c.Payload) == 0 {
			continue
		}
		items = append(items, detect.Item{
			Kind:       detect.KindBarcode,
			Text:       string(c.Payload),
			Bounds:     img.Bounds(),
			Confidence: 1,
			Level:      detect.LevelCode,
		})
	}
	return items, nil
}

// Close implements detect.Detector.
func (*Detector) Close() error { return nil }
