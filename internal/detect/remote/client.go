package remote

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/GriffinCanCode/scanline/internal/detect"
	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
	"github.com/GriffinCanCode/scanline/internal/resilience"
	"github.com/GriffinCanCode/scanline/internal/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a detect.Detector backed by a remote recognizer.
type Client struct {
	conn    *grpc.ClientConn
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	timeout time.Duration
}

var _ detect.Detector = (*Client)(nil)

// New connects to the recognizer at addr. Extra options are appended to the defaults.
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                DefaultKeepaliveTime,
			Timeout:             DefaultKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeDetectorUnavailable, "connect recognizer %s", addr)
	}

	return &Client{
		conn:    conn,
		breaker: resilience.New("recognizer", resilience.DetectorConfig()),
		retry:   resilience.DefaultRetryConfig(),
		timeout: DefaultCallTimeout,
	}, nil
}

// Breaker exposes the circuit breaker guarding Recognize calls.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// Name implements detect.Detector.
func (*Client) Name() string { return Name }

// Recognize returns the recognizer's full block > line > word tree for img.
func (c *Client) Recognize(ctx context.Context, img image.Image) ([]detect.Node, error) {
	req, err := EncodeRequest(img)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidImage, "encode request")
	}

	var resp *structpb.Struct
	err = resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
		out, err := resilience.Do(c.breaker, func() (*structpb.Struct, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			out := new(structpb.Struct)
			if err := c.conn.Invoke(callCtx, RecognizeMethod, req, out); err != nil {
				return nil, err
			}
			return out, nil
		})
		if err != nil {
			return err
		}
		resp = out
		return nil
	})

	switch {
	case err == nil:
		return DecodeBlocks(resp), nil
	case errors.Is(err, resilience.ErrOpen):
		return nil, apperrors.Wrap(err, apperrors.CodeDetectorUnavailable, "recognizer circuit open")
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, apperrors.FromGRPCError(err)
	}
}

// Detect implements detect.Detector with the leaves of the recognition tree.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]detect.Item, error) {
	nodes, err := c.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}
	return detect.Leaves(nodes), nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	counts := c.breaker.Counts()
	slog.Debug("recognizer client closed", "target", c.conn.Target(), "breaker", counts.State.String(), "trips", counts.Trips, "rejected", counts.Rejected)
	return c.conn.Close()
}
