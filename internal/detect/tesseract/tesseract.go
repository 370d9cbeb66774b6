//go:build tesseract

package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/GriffinCanCode/scanline/internal/detect"
	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
	"github.com/otiai10/gosseract/v2"
)

// Detector owns one gosseract client. The client is not goroutine-safe; the
// scheduler worker is its only caller.
type Detector struct {
	client *gosseract.Client
	buf    bytes.Buffer
}

// New creates a client for the given languages (default "eng").
func New(langs ...string) (*Detector, error) {
	client := gosseract.NewClient()
	if len(langs) > 0 {
		if err := client.SetLanguage(langs...); err != nil {
			client.Close()
			return nil, fmt.Errorf("set OCR language: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	return &Detector{client: client}, nil
}

// Name implements detect.Detector.
func (*Detector) Name() string { return Name }

// Detect returns word items grouped and flattened from Tesseract's layout.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]detect.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.buf.Reset()
	if err := png.Encode(&d.buf, img); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidImage, "encode frame")
	}
	if err := d.client.SetImageFromBytes(d.buf.Bytes()); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDetectFailed, "set OCR image")
	}

	boxes, err := d.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDetectFailed, "get bounding boxes")
	}

	origin := img.Bounds().Min
	words := make([]word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, word{
			Box:        b.Box.Add(origin),
			Text:       b.Word,
			Confidence: b.Confidence,
			Block:      b.BlockNum,
			Par:        b.ParNum,
			Line:       b.LineNum,
		})
	}
	return detect.Leaves(buildTree(words)), nil
}

// Close releases the native client.
func (d *Detector) Close() error {
	return d.client.Close()
}
