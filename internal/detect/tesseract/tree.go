// Package tesseract runs word-level OCR through gosseract. The engine needs
// libtesseract and is only compiled in with the "tesseract" build tag.
package tesseract

import (
	"image"
	"strings"

	"github.com/GriffinCanCode/scanline/internal/detect"
	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
)

// Name identifies this detector in detections and logs.
const Name = "tesseract"

// ErrUnavailable is returned when the binary was built without tesseract support.
var ErrUnavailable = apperrors.New(apperrors.CodeDetectorUnavailable, "tesseract support not compiled in (build with -tags tesseract)")

// word is one OCR word with its position in Tesseract's layout hierarchy.
type word struct {
	Box        image.Rectangle
	Text       string
	Confidence float64 // 0..100 as reported by tesseract
	Block      int
	Par        int
	Line       int
}

// buildTree groups words into block > line > word nodes, preserving reading order.
func buildTree(words []word) []detect.Node {
	type lineKey struct{ block, par, line int }

	var blocks []detect.Node
	blockIdx := map[int]int{}
	lineIdx := map[lineKey]int{}

	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		leaf := detect.Node{Item: detect.Item{
			Kind:       detect.KindText,
			Text:       w.Text,
			Bounds:     w.Box,
			Confidence: w.Confidence / 100,
			Level:      detect.LevelWord,
		}}

		bi, ok := blockIdx[w.Block]
		if !ok {
			bi = len(blocks)
			blockIdx[w.Block] = bi
			blocks = append(blocks, detect.Node{Item: detect.Item{Kind: detect.KindText, Level: detect.LevelBlock}})
		}
		block := &blocks[bi]

		k := lineKey{w.Block, w.Par, w.Line}
		li, ok := lineIdx[k]
		if !ok {
			li = len(block.Children)
			lineIdx[k] = li
			block.Children = append(block.Children, detect.Node{Item: detect.Item{Kind: detect.KindText, Level: detect.LevelLine}})
		}
		line := &block.Children[li]
		line.Children = append(line.Children, leaf)
	}

	for i := range blocks {
		b := &blocks[i]
		lines := make([]string, 0, len(b.Children))
		for j := range b.Children {
			summarize(&b.Children[j], " ")
			lines = append(lines, b.Children[j].Text)
		}
		b.Text = strings.Join(lines, "\n")
		b.Bounds, b.Confidence = union(b.Children)
	}
	return blocks
}

// summarize sets a node's text, bounds and confidence from its children.
func summarize(n *detect.Node, sep string) {
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.Text
	}
	n.Text = strings.Join(parts, sep)
	n.Bounds, n.Confidence = union(n.Children)
}

func union(nodes []detect.Node) (image.Rectangle, float64) {
	var r image.Rectangle
	var conf float64
	for i, n := range nodes {
		if i == 0 {
			r = n.Bounds
		} else {
			r = r.Union(n.Bounds)
		}
		conf += n.Confidence
	}
	if len(nodes) > 0 {
		conf /= float64(len(nodes))
	}
	return r, conf
}
