package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	apperrors "github.com/GriffinCanCode/scanline/internal/errors"
	"github.com/GriffinCanCode/scanline/internal/orchestrator"
	"github.com/GriffinCanCode/scanline/internal/orchestrator/feed"
	"github.com/GriffinCanCode/scanline/internal/orchestrator/history"
	"github.com/GriffinCanCode/scanline/internal/overlay"
	"github.com/GriffinCanCode/scanline/internal/trace"
)

// Scanner is the scanning session the server drives. *orchestrator.Manager
// satisfies it.
type Scanner interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	SubmitImage(img image.Image, source string) (uint64, error)
	Stats() orchestrator.Stats
	Overlay() *overlay.Overlay
	History() *history.MemoryStore
	Feeders() []*feed.Feeder
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	scan Scanner
	// baseCtx bounds sessions started over HTTP; request contexts end too early.
	baseCtx context.Context

	mu    sync.RWMutex
	conns map[string]*client
}

// New creates a new server. Sessions started through the API live until ctx is
// done; so does the history broadcaster.
func New(ctx context.Context, scan Scanner) *Server {
	s := &Server{
		scan:    scan,
		baseCtx: ctx,
		conns:   make(map[string]*client),
	}

	go s.broadcastHistory(ctx)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// WebSocket endpoint
	r.HandleFunc("/ws", s.handleWebSocket)

	// REST API. Registered on the root router so a method mismatch answers 405.
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/detections", s.handleDetections).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/feeds/{name}/latest", s.handleFeedLatest).Methods(http.MethodGet)
	r.HandleFunc("/api/frames", s.handleFrame).Methods(http.MethodPost)
	r.HandleFunc("/api/select", s.handleSelect).Methods(http.MethodPost)
	r.HandleFunc("/api/overlay/text", s.handleOverlayText).Methods(http.MethodPost)
	r.HandleFunc("/api/scan/start", s.handleScanStart).Methods(http.MethodPost)
	r.HandleFunc("/api/scan/stop", s.handleScanStop).Methods(http.MethodPost)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(r))
}

// Connections returns the number of open websocket connections.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "running": s.scan.Running()})
}

type frameStats struct {
	Submitted   uint64 `json:"submitted"`
	Processed   uint64 `json:"processed"`
	Failed      uint64 `json:"failed"`
	Dropped     uint64 `json:"dropped"`
	LastFrameID uint64 `json:"last_frame_id"`
	State       string `json:"state"`
}

type feederStats struct {
	Name      string `json:"name"`
	Grabbed   uint64 `json:"grabbed"`
	Unchanged uint64 `json:"unchanged"`
	Similar   uint64 `json:"similar"`
	Submitted uint64 `json:"submitted"`
	Errors    uint64 `json:"errors"`
}

type statsResponse struct {
	Running     bool          `json:"running"`
	Session     string        `json:"session,omitempty"`
	Runs        int           `json:"runs"`
	Frames      frameStats    `json:"frames"`
	Feeders     []feederStats `json:"feeders"`
	History     int           `json:"history"`
	Connections int           `json:"connections"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.scan.Stats()
	resp := statsResponse{
		Running: st.Running,
		Session: st.Session,
		Runs:    st.Runs,
		Frames: frameStats{
			Submitted:   st.Frames.Submitted,
			Processed:   st.Frames.Processed,
			Failed:      st.Frames.Failed,
			Dropped:     st.Frames.Dropped,
			LastFrameID: st.Frames.LastFrameID,
			State:       st.Frames.State.String(),
		},
		Feeders:     make([]feederStats, 0, len(st.Feeders)),
		History:     s.scan.History().Len(),
		Connections: s.Connections(),
	}
	for _, f := range st.Feeders {
		resp.Feeders = append(resp.Feeders, feederStats(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDetections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, snapshotDTO(s.scan.Overlay().Snapshot()))
}

// handleHistory lists recent recognitions, as JSON or as plain text lines
// with format=text.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	window := orchestrator.DefaultHistoryWindow
	if v := r.URL.Query().Get("seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxHistorySeconds {
			writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "seconds must be between 1 and %d", MaxHistorySeconds))
			return
		}
		window = time.Duration(n) * time.Second
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, s.scan.History().Text(window))
		return
	default:
		writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown format %q", format))
		return
	}

	entries := s.scan.History().Recent(window)
	out := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleFeedLatest serves the named feeder's most recent changed frame as PNG.
func (s *Server) handleFeedLatest(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, f := range s.scan.Feeders() {
		if f.Name() != name {
			continue
		}
		img := f.Latest()
		if img == nil {
			writeError(w, apperrors.Newf(apperrors.CodeNotFound, "feed %q has no frame yet", name))
			return
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			writeError(w, apperrors.Wrap(err, apperrors.CodeInternal, "encode frame"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		_, _ = w.Write(buf.Bytes())
		return
	}
	writeError(w, apperrors.Newf(apperrors.CodeNotFound, "unknown feed %q", name))
}

// handleFrame accepts a raw PNG or JPEG body and schedules it.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "upload_frame")
	defer span.End()
	log := trace.Logger(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorStatus(w, http.StatusRequestEntityTooLarge, apperrors.Newf(apperrors.CodeInvalidImage, "upload exceeds %s", humanize.IBytes(MaxUploadBytes)))
			return
		}
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "read body"))
		return
	}
	if len(body) == 0 {
		writeError(w, apperrors.New(apperrors.CodeInvalidImage, "empty body"))
		return
	}

	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidImage, "decode image"))
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = UploadSource
	}

	id, err := s.scan.SubmitImage(img, source)
	if err != nil {
		writeError(w, err)
		return
	}

	span.SetAttr("frame_id", id)
	log.Info("frame uploaded", "frame_id", id, "format", format, "size", humanize.Bytes(uint64(len(body))), "bounds", img.Bounds().String())
	writeJSON(w, http.StatusAccepted, FrameResponse{FrameID: id})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "decode request"))
		return
	}

	item, ok := s.scan.Overlay().Select(req.X, req.Y)
	if !ok {
		writeError(w, apperrors.Newf(apperrors.CodeNotFound, "no item at (%d, %d)", req.X, req.Y))
		return
	}
	writeJSON(w, http.StatusOK, SelectResponse{Text: item.Text, Kind: string(item.Kind)})
}

// handleOverlayText sets text visibility, or toggles it when hidden is omitted.
func (s *Server) handleOverlayText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hidden *bool `json:"hidden"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "decode request"))
			return
		}
	}

	ov := s.scan.Overlay()
	var hidden bool
	if req.Hidden == nil {
		hidden = ov.ToggleText()
	} else {
		ov.SetTextHidden(*req.Hidden)
		hidden = *req.Hidden
	}
	writeJSON(w, http.StatusOK, map[string]bool{"text_hidden": hidden})
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	// Keep the request's trace but not its lifetime.
	ctx := s.baseCtx
	if tc, ok := trace.FromContext(r.Context()); ok {
		ctx = trace.WithContext(ctx, tc)
	}

	err := s.scan.Start(ctx)
	switch {
	case errors.Is(err, orchestrator.ErrRunning):
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
	case err != nil:
		writeError(w, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "scanning_started", "session": s.scan.Stats().Session})
	}
}

func (s *Server) handleScanStop(w http.ResponseWriter, _ *http.Request) {
	s.scan.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "scanning_stopped"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the AppError's status, or 500 for anything else.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
	}
	writeErrorStatus(w, status, err)
}

func writeErrorStatus(w http.ResponseWriter, status int, err error) {
	msg := ErrorMessage{Type: "error", Message: err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg.Code = appErr.Code.String()
		msg.Message = appErr.Message
	}
	writeJSON(w, status, msg)
}
