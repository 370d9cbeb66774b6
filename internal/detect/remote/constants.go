// Package remote talks to an out-of-process recognizer over gRPC.
package remote

import "time"

// Service naming on the wire.
const (
	ServiceName     = "scanline.v1.Recognizer"
	RecognizeMethod = "/" + ServiceName + "/Recognize"
	Name            = "remote"
)

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Per-attempt deadline for a single Recognize call
	DefaultCallTimeout = 5 * time.Second

	// Upper bound on an encoded request image
	MaxImageBytes = 16 << 20
)
