package remote

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net"
	"sync/atomic"
	"testing"

	"github.com/GriffinCanCode/scanline/internal/detect"
	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
	"github.com/GriffinCanCode/scanline/internal/resilience"
	"github.com/GriffinCanCode/scanline/internal/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeRecognizer struct {
	nodes   []detect.Node
	err     error
	calls   atomic.Int32
	traceID atomic.Value
	bounds  atomic.Value
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img image.Image) ([]detect.Node, error) {
	f.calls.Add(1)
	if tc, ok := trace.FromContext(ctx); ok {
		f.traceID.Store(tc.TraceID)
	}
	f.bounds.Store(img.Bounds())
	return f.nodes, f.err
}

func startServer(t *testing.T, srv RecognizerServer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor()))
	RegisterRecognizerServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := New("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for i := 0; i < 20; i++ {
		img.Set(i, i%10, color.Black)
	}
	return img
}

func sampleTree() []detect.Node {
	word := func(s string, x int) detect.Node {
		return detect.Node{Item: detect.Item{Kind: detect.KindText, Text: s, Level: detect.LevelWord, Confidence: 0.9, Bounds: image.Rect(x, 0, x+5, 5)}}
	}
	return []detect.Node{{
		Item: detect.Item{Kind: detect.KindText, Text: "ab cd", Level: detect.LevelBlock, Bounds: image.Rect(0, 0, 15, 5)},
		Children: []detect.Node{{
			Item:     detect.Item{Kind: detect.KindText, Text: "ab cd", Level: detect.LevelLine, Bounds: image.Rect(0, 0, 15, 5)},
			Children: []detect.Node{word("ab", 0), word("cd", 10)},
		}},
	}}
}

func TestRecognizeRoundTrip(t *testing.T) {
	rec := &fakeRecognizer{nodes: sampleTree()}
	c := startServer(t, rec)

	nodes, err := c.Recognize(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Recognize() = %v", err)
	}

	if len(nodes) != 1 || nodes[0].Level != detect.LevelBlock || nodes[0].Text != "ab cd" {
		t.Fatalf("nodes = %+v", nodes)
	}
	if nodes[0].Bounds != image.Rect(0, 0, 15, 5) {
		t.Errorf("block bounds = %v", nodes[0].Bounds)
	}
	if got := rec.bounds.Load().(image.Rectangle); got != image.Rect(0, 0, 20, 10) {
		t.Errorf("server saw image %v, want 20x10", got)
	}
}

func TestDetectReturnsLeaves(t *testing.T) {
	c := startServer(t, &fakeRecognizer{nodes: sampleTree()})

	items, err := c.Detect(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Detect() = %v", err)
	}

	if len(items) != 2 || items[0].Text != "ab" || items[1].Text != "cd" {
		t.Fatalf("items = %+v", items)
	}
	if items[1].Bounds != image.Rect(10, 0, 15, 5) || items[1].Confidence != 0.9 {
		t.Errorf("item = %+v", items[1])
	}
	if c.Name() != Name {
		t.Errorf("Name() = %q", c.Name())
	}
}

func TestTracePropagation(t *testing.T) {
	rec := &fakeRecognizer{}
	c := startServer(t, rec)
	ctx := trace.WithContext(context.Background(), trace.Context{TraceID: "feedface", SpanID: "0102"})

	if _, err := c.Recognize(ctx, testImage()); err != nil {
		t.Fatalf("Recognize() = %v", err)
	}

	if got, _ := rec.traceID.Load().(string); got != "feedface" {
		t.Errorf("server trace id = %q, want feedface", got)
	}
}

func TestAppErrorPropagates(t *testing.T) {
	rec := &fakeRecognizer{err: apperrors.New(apperrors.CodeInvalidImage, "too blurry").WithMetadata("reason", "blur")}
	c := startServer(t, rec)

	_, err := c.Recognize(context.Background(), testImage())

	if !apperrors.IsCode(err, apperrors.CodeInvalidImage) {
		t.Fatalf("err = %v, want INVALID_IMAGE", err)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Metadata["reason"] != "blur" {
		t.Errorf("metadata = %v", appErr.Metadata)
	}
	if n := rec.calls.Load(); n != 1 {
		t.Errorf("calls = %d, non-retryable errors must not be retried", n)
	}
}

func TestUnavailableRetriesThenOpensBreaker(t *testing.T) {
	rec := &fakeRecognizer{err: status.Error(codes.Unavailable, "model loading")}
	c := startServer(t, rec)

	_, err := c.Recognize(context.Background(), testImage())
	if !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Fatalf("err = %v, want UNAVAILABLE", err)
	}
	if n := rec.calls.Load(); n != int32(resilience.DefaultMaxRetries+1) {
		t.Errorf("calls = %d, want %d", n, resilience.DefaultMaxRetries+1)
	}
	if c.Breaker().State() != resilience.Open {
		t.Fatalf("breaker = %v, want open", c.Breaker().State())
	}

	before := rec.calls.Load()
	_, err = c.Detect(context.Background(), testImage())
	if !apperrors.IsCode(err, apperrors.CodeDetectorUnavailable) {
		t.Errorf("err = %v, want DETECTOR_UNAVAILABLE", err)
	}
	if rec.calls.Load() != before {
		t.Error("open breaker should not reach the server")
	}
	if counts := c.Breaker().Counts(); counts.Trips != 1 || counts.Rejected != 1 {
		t.Errorf("breaker counts = %+v", counts)
	}
}

func TestCancelledContext(t *testing.T) {
	c := startServer(t, &fakeRecognizer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Recognize(ctx, testImage()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type itemsDetector struct{ items []detect.Item }

func (d itemsDetector) Name() string { return "items" }
func (d itemsDetector) Detect(context.Context, image.Image) ([]detect.Item, error) {
	return d.items, nil
}
func (d itemsDetector) Close() error { return nil }

func TestServeDetector(t *testing.T) {
	local := itemsDetector{items: []detect.Item{{Kind: detect.KindBarcode, Text: "4006381333931", Level: detect.LevelCode, Bounds: image.Rect(0, 0, 20, 10), Confidence: 1}}}
	c := startServer(t, Serve(local))

	items, err := c.Detect(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Detect() = %v", err)
	}
	if len(items) != 1 || items[0].Kind != detect.KindBarcode || items[0].Text != "4006381333931" {
		t.Errorf("items = %+v", items)
	}
}

func TestDecodeRequestErrors(t *testing.T) {
	if _, err := DecodeRequest(nil); err == nil {
		t.Error("nil request should fail")
	}

	req, err := EncodeRequest(testImage())
	if err != nil {
		t.Fatalf("EncodeRequest() = %v", err)
	}
	img, err := DecodeRequest(req)
	if err != nil {
		t.Fatalf("DecodeRequest() = %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 20, 10) {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestDecodeBlocksDefaultsKind(t *testing.T) {
	resp, err := EncodeBlocks([]detect.Node{{Item: detect.Item{Text: "x"}}})
	if err != nil {
		t.Fatalf("EncodeBlocks() = %v", err)
	}
	nodes := DecodeBlocks(resp)
	if len(nodes) != 1 || nodes[0].Kind != detect.KindText {
		t.Errorf("nodes = %+v", nodes)
	}
	if DecodeBlocks(nil) != nil {
		t.Error("DecodeBlocks(nil) should be nil")
	}
}
