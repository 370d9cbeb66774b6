package remote

import (
	"context"
	"image"
	"sync"

	"github.com/GriffinCanCode/scanline/internal/detect"
	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// RecognizerServer is the server side of the Recognizer service.
type RecognizerServer interface {
	Recognize(ctx context.Context, img image.Image) ([]detect.Node, error)
}

// RegisterRecognizerServer registers srv on s.
func RegisterRecognizerServer(s grpc.ServiceRegistrar, srv RecognizerServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecognizerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Recognize", Handler: recognizeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scanline/v1/recognizer.proto",
}

func recognizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		img, err := DecodeRequest(req.(*structpb.Struct))
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInvalidImage, "decode request")
		}
		nodes, err := srv.(RecognizerServer).Recognize(ctx, img)
		if err != nil {
			return nil, err
		}
		return EncodeBlocks(nodes)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RecognizeMethod}
	return interceptor(ctx, in, info, handler)
}

// DetectorServer serves a local detector as a recognizer. Calls are serialized
// because detectors are not required to be goroutine-safe.
type DetectorServer struct {
	mu  sync.Mutex
	det detect.Detector
}

// Serve wraps det as a RecognizerServer.
func Serve(det detect.Detector) *DetectorServer {
	return &DetectorServer{det: det}
}

// Recognize runs the detector and returns its items as a flat list of nodes.
func (s *DetectorServer) Recognize(ctx context.Context, img image.Image) ([]detect.Node, error) {
	s.mu.Lock()
	items, err := s.det.Detect(ctx, img)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	nodes := make([]detect.Node, len(items))
	for i, it := range items {
		nodes[i] = detect.Node{Item: it}
	}
	return nodes, nil
}
