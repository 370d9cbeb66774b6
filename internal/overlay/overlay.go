// Package overlay keeps the latest detection for display and resolves taps on
// it to detected items.
package overlay

import (
	"image"
	"sync"
	"time"

	"github.com/GriffinCanCode/scanline/internal/detect"
	"github.com/GriffinCanCode/scanline/internal/syncx"
)

// EventType names overlay events.
type EventType string

const (
	EventDetection   EventType = "detection"
	EventSelected    EventType = "selected"
	EventCleared     EventType = "cleared"
	EventTextToggled EventType = "text_toggled"
)

// DefaultSubscriberBuffer is the per-subscriber event buffer.
const DefaultSubscriberBuffer = 16

// Event is published to subscribers on every overlay change.
type Event struct {
	Type     EventType
	Snapshot Snapshot
	Item     *detect.Item // set for EventSelected
}

// Snapshot is a copy of the overlay contents. Text items are redacted while
// text is hidden.
type Snapshot struct {
	FrameID    uint64
	Source     string
	Detector   string
	Items      []detect.Item
	TextHidden bool
	UpdatedAt  time.Time
}

type state struct {
	det     detect.Detection
	hidden  bool
	updated time.Time
}

// Overlay is a detect.Sink holding the most recent detection.
type Overlay struct {
	st  *syncx.RWGuard[state]
	now func() time.Time

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

var _ detect.Sink = (*Overlay)(nil)

// New creates an empty overlay.
func New() *Overlay {
	return &Overlay{
		st:   syncx.NewGuard(state{}),
		now:  time.Now,
		subs: make(map[int]chan Event),
	}
}

// Deliver replaces the overlay contents with d.
func (o *Overlay) Deliver(d detect.Detection) {
	now := o.now()
	snap := syncx.Update(o.st, func(s *state) Snapshot {
		s.det = d
		s.updated = now
		return s.snapshot()
	})
	o.publish(Event{Type: EventDetection, Snapshot: snap})
}

// Clear removes all items.
func (o *Overlay) Clear() {
	now := o.now()
	snap := syncx.Update(o.st, func(s *state) Snapshot {
		s.det = detect.Detection{}
		s.updated = now
		return s.snapshot()
	})
	o.publish(Event{Type: EventCleared, Snapshot: snap})
}

// Snapshot returns the current contents.
func (o *Overlay) Snapshot() Snapshot {
	return syncx.Read(o.st, func(s state) Snapshot { return s.snapshot() })
}

// HitTest returns the smallest item containing (x, y). Hidden text is still hit.
func (o *Overlay) HitTest(x, y int) (item detect.Item, ok bool) {
	o.st.View(func(s state) { item, ok = hitTest(s.det.Items, image.Pt(x, y)) })
	return item, ok
}

// Select hit-tests (x, y) and publishes the selected item with its full text.
func (o *Overlay) Select(x, y int) (detect.Item, bool) {
	item, ok := o.HitTest(x, y)
	if !ok {
		return detect.Item{}, false
	}
	o.publish(Event{Type: EventSelected, Snapshot: o.Snapshot(), Item: &item})
	return item, true
}

// SetTextHidden hides or shows text items in snapshots and events.
func (o *Overlay) SetTextHidden(hidden bool) {
	snap := syncx.Update(o.st, func(s *state) Snapshot {
		s.hidden = hidden
		return s.snapshot()
	})
	o.publish(Event{Type: EventTextToggled, Snapshot: snap})
}

// ToggleText flips text visibility and returns the new hidden state.
func (o *Overlay) ToggleText() bool {
	snap := syncx.Update(o.st, func(s *state) Snapshot {
		s.hidden = !s.hidden
		return s.snapshot()
	})
	o.publish(Event{Type: EventTextToggled, Snapshot: snap})
	return snap.TextHidden
}

// TextHidden reports whether text is hidden.
func (o *Overlay) TextHidden() bool {
	return syncx.Read(o.st, func(s state) bool { return s.hidden })
}

// Subscribe returns a channel of overlay events and a cancel func. Events are
// dropped for subscribers that fall behind.
func (o *Overlay) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, DefaultSubscriberBuffer)

	o.subMu.Lock()
	if o.closed {
		o.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := o.nextID
	o.nextID++
	o.subs[id] = ch
	o.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			if c, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(c)
			}
			o.subMu.Unlock()
		})
	}
}

// Close ends every subscription.
func (o *Overlay) Close() {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	o.closed = true
	for id, c := range o.subs {
		delete(o.subs, id)
		close(c)
	}
}

func (o *Overlay) publish(e Event) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, c := range o.subs {
		select {
		case c <- e:
		default:
		}
	}
}

func (s state) snapshot() Snapshot {
	items := make([]detect.Item, len(s.det.Items))
	copy(items, s.det.Items)
	if s.hidden {
		for i := range items {
			if items[i].Kind == detect.KindText {
				items[i].Text = ""
			}
		}
	}
	return Snapshot{
		FrameID:    s.det.FrameID,
		Source:     s.det.Source,
		Detector:   s.det.Detector,
		Items:      items,
		TextHidden: s.hidden,
		UpdatedAt:  s.updated,
	}
}

// hitTest prefers the smallest containing item so words win over a code
// spanning the whole frame.
func hitTest(items []detect.Item, p image.Point) (detect.Item, bool) {
	var best detect.Item
	found := false
	bestArea := 0
	for _, it := range items {
		if !p.In(it.Bounds) {
			continue
		}
		area := it.Bounds.Dx() * it.Bounds.Dy()
		if !found || area < bestArea {
			best, found, bestArea = it, true, area
		}
	}
	return best, found
}
