package history

import (
	"strings"
	"testing"
	"time"
)

func TestStoreAdd(t *testing.T) {
	s := NewStore(30, 10)
	s.Add(Event{Text: "4006381333931", Kind: "barcode", Source: "camera", FrameID: 9})

	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Text != "4006381333931" || e.Kind != "barcode" || e.Source != "camera" || e.FrameID != 9 {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestStoreMaxSize(t *testing.T) {
	s := NewStore(5, 10)
	for i := 0; i < 10; i++ {
		s.Add(Event{Text: "msg", Kind: "text"})
	}

	if s.Len() != 5 {
		t.Errorf("expected 5 entries, got %d", s.Len())
	}
}

func TestRecent(t *testing.T) {
	s := NewStore(30, 10)
	now := time.Now()
	s.now = func() time.Time { return now.Add(-5 * time.Minute) }
	s.Add(Event{Text: "Old", Kind: "text"})
	s.now = func() time.Time { return now }
	s.Add(Event{Text: "Recent", Kind: "text"})

	recent := s.Recent(time.Minute)
	if len(recent) != 1 || recent[0].Text != "Recent" {
		t.Errorf("Recent(1m) = %+v", recent)
	}

	text := s.Text(time.Minute)
	if strings.Contains(text, "Old") {
		t.Error("should not contain old entry")
	}
	if !strings.Contains(text, "TEXT: Recent") {
		t.Errorf("Text() = %q, want TEXT: Recent", text)
	}

	if got := s.Recent(10 * time.Minute); len(got) != 2 || got[0].Text != "Old" {
		t.Errorf("Recent(10m) = %+v, want oldest first", got)
	}
}

func TestEmit(t *testing.T) {
	s := NewStore(30, 10)
	go s.Emit(Event{Text: "test", Kind: "text"})

	select {
	case e := <-s.Events():
		if e.Text != "test" {
			t.Errorf("expected 'test', got %q", e.Text)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestEmitNonBlocking(t *testing.T) {
	s := NewStore(30, 1)
	s.Emit(Event{Text: "1"})

	done := make(chan struct{})
	go func() {
		s.Emit(Event{Text: "2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Emit blocked on a full channel")
	}
}
