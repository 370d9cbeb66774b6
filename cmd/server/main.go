// Scanline server - feeds screen, camera and uploaded frames to detectors and
// serves the results over HTTP and WebSocket
package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/GriffinCanCode/scanline/internal/camera"
	"github.com/GriffinCanCode/scanline/internal/config"
	"github.com/GriffinCanCode/scanline/internal/detect"
	"github.com/GriffinCanCode/scanline/internal/detect/remote"
	"github.com/GriffinCanCode/scanline/internal/orchestrator"
	"github.com/GriffinCanCode/scanline/internal/orchestrator/feed"
	"github.com/GriffinCanCode/scanline/internal/screen"
	"github.com/GriffinCanCode/scanline/internal/server"
	"github.com/GriffinCanCode/scanline/internal/trace"
)

func main() {
	cfg := config.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, cfg)
	stop()
	if err != nil {
		slog.Error("scanline server failed", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is done. Everything it opened is closed before it
// returns, on error paths too.
func run(ctx context.Context, cfg *config.Config) error {
	feeders, closeSources := buildFeeders(cfg)
	defer closeSources()

	if cfg.GRPCAddr != "" {
		grpcServer, err := serveRecognizer(cfg)
		if err != nil {
			return fmt.Errorf("start recognizer on %s: %w", cfg.GRPCAddr, err)
		}
		defer grpcServer.GracefulStop()
	}

	// Sessions outlive the signal context until Close has drained them.
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	manager := orchestrator.New(cfg, orchestrator.NewDetectorFactory(cfg), feeders...)
	defer manager.Close()

	srv := server.New(base, manager)

	if err := manager.Start(base); err != nil {
		return fmt.Errorf("start scanning: %w", err)
	}

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}

	httpServer := &http.Server{
		Handler:     srv.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("scanline server starting", "http", lis.Addr().String(), "grpc", cfg.GRPCAddr, "detectors", cfg.Detectors, "feeders", len(feeders))
		if err := httpServer.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		slog.Error("http server error", "error", err)
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Close ends websocket subscriptions so Shutdown does not wait on them.
	manager.Close()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Error("http shutdown error", "error", shutdownErr)
	}
	slog.Info("shutdown complete")
	return err
}

// buildFeeders opens the configured capture sources. Sources that fail to
// open are logged and skipped.
func buildFeeders(cfg *config.Config) ([]*feed.Feeder, func()) {
	var feeders []*feed.Feeder
	var closers []func()

	var sc screen.Capturer
	switch cfg.ScreenBackend {
	case config.ScreenNative:
		sc = screen.NewNative(image.Rectangle{})
	case config.ScreenCommand:
		c, err := screen.NewCommand()
		if err != nil {
			slog.Warn("screen capture disabled", "error", err)
		} else {
			sc = c
		}
	}
	if sc != nil {
		feeders = append(feeders, feed.New("screen", sc, cfg.ScreenCaptureRate, cfg.SimilarityThreshold))
		closers = append(closers, sc.Close)
	}

	if cfg.CameraDevice >= 0 {
		cam, err := camera.Open(cfg.CameraDevice, cfg.CameraWidth, cfg.CameraHeight)
		if err != nil {
			slog.Warn("camera disabled", "device", cfg.CameraDevice, "error", err)
		} else {
			feeders = append(feeders, feed.New("camera", cam, cfg.CameraRate, cfg.SimilarityThreshold))
			closers = append(closers, cam.Close)
		}
	}

	return feeders, func() {
		for _, c := range closers {
			c()
		}
	}
}

// serveRecognizer exposes the local engines over gRPC. The remote engine is
// left out so two instances cannot forward frames to each other.
func serveRecognizer(cfg *config.Config) (*grpc.Server, error) {
	local := *cfg
	local.Detectors = nil
	for _, d := range cfg.Detectors {
		if d != config.DetectorRemote {
			local.Detectors = append(local.Detectors, d)
		}
	}
	if len(local.Detectors) == 0 {
		local.Detectors = []string{config.DetectorBarcode}
	}

	det, err := orchestrator.NewDetectorFactory(&local)()
	if err != nil {
		return nil, err
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = det.Close()
		return nil, err
	}

	gs := grpc.NewServer(grpc.UnaryInterceptor(trace.UnaryServerInterceptor()))
	remote.RegisterRecognizerServer(gs, remote.Serve(det))

	go func() {
		slog.Info("recognizer serving", "addr", cfg.GRPCAddr, "detector", det.Name())
		defer closeDetector(det)
		if err := gs.Serve(lis); err != nil {
			slog.Error("grpc server error", "error", err)
		}
	}()
	return gs, nil
}

func closeDetector(det detect.Detector) {
	if err := det.Close(); err != nil {
		slog.Warn("detector close failed", "error", err)
	}
}
