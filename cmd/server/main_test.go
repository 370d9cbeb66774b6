package main

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/scanline/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTPAddr:         "127.0.0.1:0",
		Detectors:        []string{config.DetectorBarcode},
		ScreenBackend:    config.ScreenOff,
		CameraDevice:     -1,
		HistorySize:      10,
		AnnounceCooldown: time.Second,
	}
}

// runWithin fails the test when run does not return in time.
func runWithin(t *testing.T, ctx context.Context, cfg *config.Config) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
		return nil
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.GRPCAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	if err := runWithin(t, ctx, cfg); err != nil {
		t.Errorf("run() = %v, want nil", err)
	}
}

func TestRunRecognizerFailure(t *testing.T) {
	cfg := testConfig()
	cfg.GRPCAddr = "127.0.0.1:-1"

	err := runWithin(t, context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "start recognizer") {
		t.Errorf("run() = %v, want recognizer error", err)
	}
}

func TestRunHTTPListenFailureAfterStart(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	cfg := testConfig()
	cfg.HTTPAddr = busy.Addr().String()

	// Scanning is already running when the listen fails; run must still return.
	err = runWithin(t, context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "listen on") {
		t.Errorf("run() = %v, want listen error", err)
	}
}
