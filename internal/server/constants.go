// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Upload limit for POST /api/frames
	MaxUploadBytes = 16 << 20

	// Per-connection sliding window rate limiting for websocket messages
	RateLimitMessages = 30
	RateLimitWindow   = time.Second

	// Write deadline for a single websocket message
	WSWriteTimeout = 5 * time.Second

	// Max window for GET /api/history; the default is orchestrator.DefaultHistoryWindow
	MaxHistorySeconds = 24 * 60 * 60

	// Source name for uploaded frames
	UploadSource = "upload"
)
