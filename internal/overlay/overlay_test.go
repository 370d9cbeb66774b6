package overlay

import (
	"image"
	"testing"
	"time"

	"github.com/GriffinCanCode/scanline/internal/detect"
)

func sample() detect.Detection {
	return detect.Detection{
		FrameID:  4,
		Source:   "camera",
		Detector: "barcode+tesseract",
		Items: []detect.Item{
			{Kind: detect.KindBarcode, Text: "https://example.com", Bounds: image.Rect(0, 0, 100, 100), Level: detect.LevelCode},
			{Kind: detect.KindText, Text: "hello", Bounds: image.Rect(10, 10, 30, 20), Level: detect.LevelWord},
			{Kind: detect.KindText, Text: "world", Bounds: image.Rect(35, 10, 60, 20), Level: detect.LevelWord},
		},
	}
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestDeliverReplaces(t *testing.T) {
	o := New()
	o.Deliver(sample())
	o.Deliver(detect.Detection{FrameID: 5, Items: []detect.Item{{Text: "only"}}})

	s := o.Snapshot()
	if s.FrameID != 5 || len(s.Items) != 1 || s.Items[0].Text != "only" {
		t.Errorf("snapshot = %+v, want frame 5 with one item", s)
	}
	if s.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	o := New()
	o.Deliver(sample())

	s := o.Snapshot()
	s.Items[0].Text = "mutated"

	if o.Snapshot().Items[0].Text == "mutated" {
		t.Error("snapshot shares item storage with overlay")
	}
}

func TestHitTest(t *testing.T) {
	o := New()
	o.Deliver(sample())

	tests := []struct {
		name     string
		x, y     int
		wantText string
		wantOK   bool
	}{
		{"word inside code", 15, 15, "hello", true},
		{"second word", 40, 12, "world", true},
		{"code only", 90, 90, "https://example.com", true},
		{"outside everything", 150, 150, "", false},
		{"max edge is exclusive", 100, 50, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, ok := o.HitTest(tt.x, tt.y)
			if ok != tt.wantOK || item.Text != tt.wantText {
				t.Errorf("HitTest(%d,%d) = %q,%v want %q,%v", tt.x, tt.y, item.Text, ok, tt.wantText, tt.wantOK)
			}
		})
	}
}

func TestSelectPublishes(t *testing.T) {
	o := New()
	o.Deliver(sample())
	ch, cancel := o.Subscribe()
	defer cancel()

	item, ok := o.Select(15, 15)
	if !ok || item.Text != "hello" {
		t.Fatalf("Select = %q,%v", item.Text, ok)
	}

	e := recv(t, ch)
	if e.Type != EventSelected || e.Item == nil || e.Item.Text != "hello" {
		t.Errorf("event = %+v", e)
	}

	if _, ok := o.Select(500, 500); ok {
		t.Error("Select on empty area should miss")
	}
	select {
	case e := <-ch:
		t.Errorf("unexpected event on miss: %+v", e)
	default:
	}
}

func TestTextHidden(t *testing.T) {
	o := New()
	o.Deliver(sample())

	o.SetTextHidden(true)

	if !o.TextHidden() {
		t.Fatal("TextHidden() = false")
	}
	s := o.Snapshot()
	if !s.TextHidden || s.Items[1].Text != "" || s.Items[2].Text != "" {
		t.Errorf("text items not redacted: %+v", s.Items)
	}
	if s.Items[0].Text != "https://example.com" {
		t.Error("barcodes must stay visible when text is hidden")
	}

	// Hidden text can still be selected.
	if item, ok := o.Select(15, 15); !ok || item.Text != "hello" {
		t.Errorf("Select with hidden text = %q,%v", item.Text, ok)
	}

	if o.ToggleText() {
		t.Error("ToggleText() should show text again")
	}
	if o.Snapshot().Items[1].Text != "hello" {
		t.Error("text not restored")
	}
}

func TestClear(t *testing.T) {
	o := New()
	o.Deliver(sample())
	ch, cancel := o.Subscribe()
	defer cancel()

	o.Clear()

	if s := o.Snapshot(); len(s.Items) != 0 || s.FrameID != 0 {
		t.Errorf("snapshot after Clear = %+v", s)
	}
	if e := recv(t, ch); e.Type != EventCleared {
		t.Errorf("event = %v, want cleared", e.Type)
	}
}

func TestSubscribeEvents(t *testing.T) {
	o := New()
	ch, cancel := o.Subscribe()

	o.Deliver(sample())
	e := recv(t, ch)
	if e.Type != EventDetection || e.Snapshot.FrameID != 4 {
		t.Errorf("event = %+v", e)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	o.Deliver(sample())
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	o := New()
	_, cancel := o.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultSubscriberBuffer*4; i++ {
			o.Deliver(sample())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a full subscriber")
	}
}

func TestClose(t *testing.T) {
	o := New()
	ch, cancel := o.Subscribe()

	o.Close()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	late, _ := o.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribe after Close should return a closed channel")
	}
}
