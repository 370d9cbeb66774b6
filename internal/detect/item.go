// Package detect adapts detection engines to the frame scheduler and
// delivers their results to sinks.
package detect

import (
	"image"
	"time"
)

// Kind of detected item.
type Kind string

const (
	KindBarcode Kind = "barcode"
	KindText    Kind = "text"
)

// Level of a text item in the recognition hierarchy.
type Level string

const (
	LevelBlock Level = "block"
	LevelLine  Level = "line"
	LevelWord  Level = "word"
	LevelCode  Level = "code"
)

// Item is one detected thing in a frame, in frame pixel coordinates.
type Item struct {
	Kind       Kind
	Text       string
	Bounds     image.Rectangle
	Confidence float64 // 0..1, or 0 when the engine does not report one
	Level      Level
}

// Node is an item with its nested components (block > line > word).
type Node struct {
	Item
	Children []Node
}

// Leaves flattens trees into their leaf items, depth first.
func Leaves(nodes []Node) []Item {
	var out []Item
	var walk func(n Node)
	walk = func(n Node) {
		if len(n.Children) == 0 {
			out = append(out, n.Item)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out
}

// Detection is the result of running a detector over one frame.
type Detection struct {
	FrameID   uint64
	Timestamp time.Duration
	Source    string
	Detector  string
	Items     []Item
	Elapsed   time.Duration
}

// Texts returns the non-empty item texts in order.
func (d Detection) Texts() []string {
	out := make([]string, 0, len(d.Items))
	for _, it := range d.Items {
		if it.Text != "" {
			out = append(out, it.Text)
		}
	}
	return out
}
