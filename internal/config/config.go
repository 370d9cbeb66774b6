// Package config handles platform configuration
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
)

// Detector names accepted in DETECTORS.
const (
	DetectorBarcode   = "barcode"
	DetectorTesseract = "tesseract"
	DetectorRemote    = "remote"
)

// Screen backends accepted in SCREEN_BACKEND.
const (
	ScreenNative  = "native"
	ScreenCommand = "command"
	ScreenOff     = "off"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // serves local detectors as a recognizer; empty disables
	LogLevel slog.Level

	Detectors      []string
	RecognizerAddr string
	OCRLanguages   []string

	ScreenCaptureRate float64 // Hz
	ScreenBackend     string
	CameraDevice      int // -1 disables the camera
	CameraRate        float64
	CameraWidth       int
	CameraHeight      int

	FrameMaxWidth       int
	FrameRotate         int // degrees, multiple of 90
	FrameGrayscale      bool
	DetectionCacheSize  int
	SimilarityThreshold int // max pHash distance treated as "same frame"

	StopOnDetect     bool
	AnnounceCooldown time.Duration
	HistorySize      int
}

func Load() *Config {
	return &Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8000"),
		GRPCAddr:            getEnv("GRPC_ADDR", ""),
		LogLevel:            getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		Detectors:           getEnvList("DETECTORS", []string{DetectorBarcode}),
		RecognizerAddr:      getEnv("RECOGNIZER_ADDR", "localhost:50051"),
		OCRLanguages:        getEnvList("OCR_LANGUAGES", []string{"eng"}),
		ScreenCaptureRate:   getEnvFloat("SCREEN_CAPTURE_RATE", 2.0),
		ScreenBackend:       getEnv("SCREEN_BACKEND", ScreenNative),
		CameraDevice:        getEnvInt("CAMERA_DEVICE", -1),
		CameraRate:          getEnvFloat("CAMERA_RATE", 15.0),
		CameraWidth:         getEnvInt("CAMERA_WIDTH", 1280),
		CameraHeight:        getEnvInt("CAMERA_HEIGHT", 720),
		FrameMaxWidth:       getEnvInt("FRAME_MAX_WIDTH", 1600),
		FrameRotate:         getEnvInt("FRAME_ROTATE", 0),
		FrameGrayscale:      getEnvBool("FRAME_GRAYSCALE", false),
		DetectionCacheSize:  getEnvInt("DETECTION_CACHE_SIZE", 64),
		SimilarityThreshold: getEnvInt("SIMILARITY_THRESHOLD", 3),
		StopOnDetect:        getEnvBool("STOP_ON_DETECT", false),
		AnnounceCooldown:    getEnvDuration("ANNOUNCE_COOLDOWN", 5*time.Second),
		HistorySize:         getEnvInt("HISTORY_SIZE", 100),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.Detectors) == 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "at least one detector is required")
	}
	for _, d := range c.Detectors {
		switch d {
		case DetectorBarcode, DetectorTesseract, DetectorRemote:
		default:
			return apperrors.Newf(apperrors.CodeConfigInvalid, "unknown detector %q", d).WithMetadata("key", "DETECTORS")
		}
	}
	if c.HasDetector(DetectorRemote) {
		if c.RecognizerAddr == "" {
			return apperrors.New(apperrors.CodeConfigInvalid, "remote detector needs a recognizer address").WithMetadata("key", "RECOGNIZER_ADDR")
		}
		if c.RecognizerAddr == c.GRPCAddr {
			return apperrors.New(apperrors.CodeConfigInvalid, "remote detector points at this instance's recognizer").WithMetadata("key", "RECOGNIZER_ADDR")
		}
	}
	switch c.ScreenBackend {
	case ScreenNative, ScreenCommand, ScreenOff:
	default:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "unknown screen backend %q", c.ScreenBackend).WithMetadata("key", "SCREEN_BACKEND")
	}
	if c.ScreenBackend != ScreenOff && c.ScreenCaptureRate <= 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "screen capture rate must be positive").WithMetadata("key", "SCREEN_CAPTURE_RATE")
	}
	if c.CameraDevice >= 0 && c.CameraRate <= 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "camera rate must be positive").WithMetadata("key", "CAMERA_RATE")
	}
	if c.FrameRotate%90 != 0 {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "rotation %d is not a multiple of 90", c.FrameRotate).WithMetadata("key", "FRAME_ROTATE")
	}
	if c.FrameMaxWidth < 0 || c.DetectionCacheSize < 0 || c.HistorySize < 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "sizes must not be negative")
	}
	return nil
}

// HasDetector reports whether name is enabled.
func (c *Config) HasDetector(name string) bool {
	for _, d := range c.Detectors {
		if d == name {
			return true
		}
	}
	return false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvLevel(key string, def slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(v)); err == nil {
			return l
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
