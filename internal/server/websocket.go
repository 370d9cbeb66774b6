package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/GriffinCanCode/scanline/internal/orchestrator/history"
	"github.com/GriffinCanCode/scanline/internal/overlay"
	"github.com/GriffinCanCode/scanline/internal/trace"
)

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
	now        func() time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{now: time.Now}
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

type client struct {
	id   string
	conn *websocket.Conn
	rl   *rateLimiter
}

func (c *client) write(ctx context.Context, v any) error {
	ctx, cancel := context.WithTimeout(ctx, WSWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, v)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	c := &client{id: uuid.NewString(), conn: conn, rl: newRateLimiter()}

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
	}()

	// Get trace context from HTTP upgrade request
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := trace.Logger(ctx).With("conn", c.id)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	events, unsubscribe := s.scan.Overlay().Subscribe()
	defer unsubscribe()

	// Current overlay first so a new client does not wait for the next frame.
	if err := c.write(ctx, EventMessage{Type: string(overlay.EventDetection), Snapshot: snapshotDTO(s.scan.Overlay().Snapshot())}); err != nil {
		log.Debug("websocket write error", "error", err)
		return
	}

	go s.pushEvents(ctx, cancel, c, events, log)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = c.write(ctx, ErrorMessage{Type: "error", Code: "RATE_LIMITED", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "select":
			var sel SelectMessage
			if err := json.Unmarshal(msg, &sel); err != nil {
				continue
			}
			// A hit is published to every subscriber, this client included.
			if _, ok := s.scan.Overlay().Select(sel.X, sel.Y); !ok {
				_ = c.write(ctx, ErrorMessage{Type: "error", Code: "NOT_FOUND", Message: "no item at point"})
			}
		case "toggle_text":
			s.scan.Overlay().ToggleText()
		default:
			log.Debug("unknown message type", "type", base.Type)
		}
	}
}

// broadcastHistory fans recognition events out to every connected client.
func (s *Server) broadcastHistory(ctx context.Context) {
	events := s.scan.History().Events()
	for {
		var e history.Event
		select {
		case <-ctx.Done():
			return
		case e = <-events:
		}

		msg := RecognizedMessage{Type: "recognized", Text: e.Text, Kind: e.Kind, Source: e.Source, FrameID: e.FrameID}

		s.mu.RLock()
		for _, c := range s.conns {
			go func(c *client) {
				if err := c.write(ctx, msg); err != nil {
					slog.Debug("websocket broadcast error", "conn", c.id, "error", err)
				}
			}(c)
		}
		s.mu.RUnlock()
	}
}

// pushEvents forwards overlay events until the subscription or connection ends.
func (s *Server) pushEvents(ctx context.Context, cancel context.CancelFunc, c *client, events <-chan overlay.Event, log *slog.Logger) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := c.write(ctx, eventMessage(e)); err != nil {
				log.Debug("websocket push error", "error", err)
				return
			}
		}
	}
}
