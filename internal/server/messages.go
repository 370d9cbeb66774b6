package server

import (
	"image"
	"time"

	"github.com/GriffinCanCode/scanline/internal/detect"
	"github.com/GriffinCanCode/scanline/internal/overlay"
)

// Message types.
type Message struct {
	Type string `json:"type"`
}

// SelectMessage asks for the item at a point.
type SelectMessage struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Rect is an image.Rectangle as origin plus size.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type ItemDTO struct {
	Kind       string  `json:"kind"`
	Text       string  `json:"text"`
	Bounds     Rect    `json:"bounds"`
	Confidence float64 `json:"confidence,omitempty"`
	Level      string  `json:"level,omitempty"`
}

// SnapshotDTO is the overlay contents as sent to clients.
type SnapshotDTO struct {
	FrameID    uint64    `json:"frame_id"`
	Source     string    `json:"source,omitempty"`
	Detector   string    `json:"detector,omitempty"`
	Items      []ItemDTO `json:"items"`
	TextHidden bool      `json:"text_hidden"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// EventMessage is pushed to websocket clients on overlay changes.
type EventMessage struct {
	Type     string       `json:"type"`
	Snapshot *SnapshotDTO `json:"snapshot,omitempty"`
	Item     *ItemDTO     `json:"item,omitempty"`
}

// RecognizedMessage is pushed to websocket clients for each new history entry.
type RecognizedMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Kind    string `json:"kind"`
	Source  string `json:"source"`
	FrameID uint64 `json:"frame_id"`
}

type SelectResponse struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
}

type FrameResponse struct {
	FrameID uint64 `json:"frame_id"`
}

type HistoryEntryDTO struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source"`
	FrameID   uint64    `json:"frame_id"`
}

func rectDTO(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

func itemDTO(it detect.Item) ItemDTO {
	return ItemDTO{
		Kind:       string(it.Kind),
		Text:       it.Text,
		Bounds:     rectDTO(it.Bounds),
		Confidence: it.Confidence,
		Level:      string(it.Level),
	}
}

func snapshotDTO(s overlay.Snapshot) *SnapshotDTO {
	items := make([]ItemDTO, len(s.Items))
	for i, it := range s.Items {
		items[i] = itemDTO(it)
	}
	return &SnapshotDTO{
		FrameID:    s.FrameID,
		Source:     s.Source,
		Detector:   s.Detector,
		Items:      items,
		TextHidden: s.TextHidden,
		UpdatedAt:  s.UpdatedAt,
	}
}

func eventMessage(e overlay.Event) EventMessage {
	msg := EventMessage{Type: string(e.Type), Snapshot: snapshotDTO(e.Snapshot)}
	if e.Item != nil {
		dto := itemDTO(*e.Item)
		msg.Item = &dto
	}
	return msg
}
