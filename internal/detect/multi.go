package detect

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"strings"
)

type multi []Detector

// Multi runs detectors in order over the same image and concatenates their items.
// A failing member is logged and skipped; Detect fails only if every member fails.
func Multi(ds ...Detector) Detector {
	if len(ds) == 1 {
		return ds[0]
	}
	return multi(ds)
}

func (m multi) Name() string {
	names := make([]string, len(m))
	for i, d := range m {
		names[i] = d.Name()
	}
	return strings.Join(names, "+")
}

func (m multi) Detect(ctx context.Context, img image.Image) ([]Item, error) {
	var items []Item
	var errs []error
	for _, d := range m {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		got, err := d.Detect(ctx, img)
		if err != nil {
			slog.Warn("detector failed", "detector", d.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		items = append(items, got...)
	}
	if len(m) > 0 && len(errs) == len(m) {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

func (m multi) Close() error {
	var errs []error
	for _, d := range m {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
