package remote

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder
	"image/png"

	"github.com/GriffinCanCode/scanline/internal/detect"
	"google.golang.org/protobuf/types/known/structpb"
)

// Request fields:  {image: base64 string, format: "png"|"jpeg"}
// Response fields: {blocks: [node]} where node is
// {text, kind, level, confidence, x1, y1, x2, y2, children: [node]}.

// EncodeRequest packs img as a PNG Recognize request.
func EncodeRequest(img image.Image) (*structpb.Struct, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return structpb.NewStruct(map[string]any{
		"image":  base64.StdEncoding.EncodeToString(buf.Bytes()),
		"format": "png",
	})
}

// DecodeRequest extracts the image from a Recognize request.
func DecodeRequest(req *structpb.Struct) (image.Image, error) {
	raw := req.GetFields()["image"].GetStringValue()
	if raw == "" {
		return nil, fmt.Errorf("request has no image")
	}
	if base64.StdEncoding.DecodedLen(len(raw)) > MaxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", MaxImageBytes)
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodeBlocks packs a recognition tree as a Recognize response.
func EncodeBlocks(nodes []detect.Node) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"blocks": nodeList(nodes)})
}

func nodeList(nodes []detect.Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = map[string]any{
			"text":       n.Text,
			"kind":       string(n.Kind),
			"level":      string(n.Level),
			"confidence": n.Confidence,
			"x1":         n.Bounds.Min.X,
			"y1":         n.Bounds.Min.Y,
			"x2":         n.Bounds.Max.X,
			"y2":         n.Bounds.Max.Y,
			"children":   nodeList(n.Children),
		}
	}
	return out
}

// DecodeBlocks unpacks a Recognize response into a recognition tree.
func DecodeBlocks(resp *structpb.Struct) []detect.Node {
	return decodeNodes(resp.GetFields()["blocks"].GetListValue())
}

func decodeNodes(list *structpb.ListValue) []detect.Node {
	values := list.GetValues()
	if len(values) == 0 {
		return nil
	}
	out := make([]detect.Node, 0, len(values))
	for _, v := range values {
		s := v.GetStructValue()
		if s == nil {
			continue
		}
		f := s.GetFields()
		kind := detect.Kind(f["kind"].GetStringValue())
		if kind == "" {
			kind = detect.KindText
		}
		out = append(out, detect.Node{
			Item: detect.Item{
				Kind:       kind,
				Text:       f["text"].GetStringValue(),
				Level:      detect.Level(f["level"].GetStringValue()),
				Confidence: f["confidence"].GetNumberValue(),
				Bounds: image.Rect(
					int(f["x1"].GetNumberValue()), int(f["y1"].GetNumberValue()),
					int(f["x2"].GetNumberValue()), int(f["y2"].GetNumberValue()),
				),
			},
			Children: decodeNodes(f["children"].GetListValue()),
		})
	}
	return out
}
