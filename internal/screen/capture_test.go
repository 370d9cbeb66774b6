package screen

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

type fakeBackend struct {
	frames  []image.Image
	err     error
	cleaned bool
}

func (f *fakeBackend) captureRaw() (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	img := f.frames[0]
	if len(f.frames) > 1 {
		f.frames = f.frames[1:]
	}
	return img, nil
}

func (f *fakeBackend) cleanup() { f.cleaned = true }

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestGrabChangeDetection(t *testing.T) {
	white := solid(64, 64, color.White)
	black := solid(64, 64, color.Black)
	b := &fakeBackend{frames: []image.Image{white, white, black, black}}
	c := newBase(b, "")

	tests := []struct {
		name    string
		changed bool
	}{
		{"first frame", true},
		{"same frame", false},
		{"new frame", true},
		{"same again", false},
	}
	for _, tt := range tests {
		img, changed, err := c.Grab()
		if err != nil {
			t.Fatalf("%s: Grab() error = %v", tt.name, err)
		}
		if changed != tt.changed {
			t.Errorf("%s: changed = %v, want %v", tt.name, changed, tt.changed)
		}
		if changed == (img == nil) {
			t.Errorf("%s: image returned = %v with changed = %v", tt.name, img != nil, changed)
		}
	}
}

func TestGrabError(t *testing.T) {
	want := errors.New("no display")
	c := newBase(&fakeBackend{err: want}, "")

	if _, _, err := c.Grab(); !errors.Is(err, want) {
		t.Errorf("Grab() error = %v, want %v", err, want)
	}
}

func TestDigest(t *testing.T) {
	a := solid(300, 200, color.White)
	b := solid(300, 200, color.White)
	if digest(a) != digest(b) {
		t.Error("identical frames should share a digest")
	}

	if digest(a) == digest(solid(200, 300, color.White)) {
		t.Error("different sizes should differ")
	}

	b.Set(0, 0, color.Black)
	if digest(a) == digest(b) {
		t.Error("a changed sampled pixel should change the digest")
	}
}

func TestCloseRemovesTempDir(t *testing.T) {
	dir, err := os.MkdirTemp("", "scanline-screen-test-*")
	if err != nil {
		t.Fatal(err)
	}
	b := &fakeBackend{}
	c := newBase(b, dir)

	c.Close()

	if !b.cleaned {
		t.Error("backend cleanup not called")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("temp directory should be removed after Close")
	}
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "shot.png")
	f, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, solid(8, 4, color.White)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	img, err := decodeFile(file)
	if err != nil {
		t.Fatalf("decodeFile() error = %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Errorf("bounds = %v", img.Bounds())
	}

	if err := os.WriteFile(file, []byte("not an image"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := decodeFile(file); err == nil {
		t.Error("decodeFile should reject garbage")
	}
}

func TestRunCaptureMissingCommand(t *testing.T) {
	_, err := runCapture(filepath.Join(t.TempDir(), "x.png"), "scanline-no-such-screenshot-tool")
	if err == nil {
		t.Error("missing command should fail")
	}
}

// Integration test - only runs if a display is reachable
func TestNativeIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := Bounds(); err != nil {
		t.Skipf("no display: %v", err)
	}

	c := NewNative(image.Rectangle{})
	defer c.Close()

	img, changed, err := c.Grab()
	if err != nil {
		t.Skipf("capture failed (may be permission issue): %v", err)
	}
	if !changed || img == nil {
		t.Error("first grab should report a change")
	}
}
