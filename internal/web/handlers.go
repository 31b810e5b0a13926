package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/multishot/internal/debug"
	"github.com/cjeanneret/multishot/internal/hw/camera"
	"github.com/cjeanneret/multishot/internal/logic/capture"
)

// MaxRequestBytes bounds the body of POST /capture.
const MaxRequestBytes = 1 << 20

// DefaultMinInterval is the minimum delay between two capture starts.
const DefaultMinInterval = 5 * time.Second

// maxRequestedFormats bounds the formats list, duplicates included.
const maxRequestedFormats = 16

// Request is the body of POST /capture.
type Request struct {
	Formats []string `json:"formats"` // empty = configured default
}

// ValidateRequest parses the requested format tags.
func ValidateRequest(r Request) ([]camera.Format, error) {
	if len(r.Formats) > maxRequestedFormats {
		return nil, fmt.Errorf("at most %d formats may be requested, got %d", maxRequestedFormats, len(r.Formats))
	}
	return camera.ParseFormats(r.Formats)
}

// RunCaptureFunc runs one multi-format capture and returns its artifacts.
// It is called from the POST /capture handler in a goroutine.
type RunCaptureFunc func(ctx context.Context, formats []camera.Format) ([]capture.Artifact, error)

// FormConfig holds default values for the capture form (from config).
type FormConfig struct {
	Formats   []string `json:"formats"`
	OutputDir string   `json:"output_dir"`
	TimeoutMs int      `json:"timeout_ms"`
}

// FormatInfo describes one known format for GET /formats.
type FormatInfo struct {
	Tag       string `json:"tag"`
	Extension string `json:"extension"`
	Raw       bool   `json:"raw"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	RunCapture   RunCaptureFunc
	FormDefaults FormConfig
	MinInterval  time.Duration

	runningMu sync.Mutex
	running   bool
	lastStart time.Time
	cancelRun context.CancelFunc

	baseCtx  context.Context
	staticFS fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If runCapture is nil, POST /capture will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, runCapture RunCaptureFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		RunCapture:   runCapture,
		FormDefaults: formDefaults,
		MinInterval:  DefaultMinInterval,
		baseCtx:      context.Background(),
		staticFS:     staticFS,
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.FormDefaults)
}

// HandleFormats lists the known formats in canonical order.
func (h *Handlers) HandleFormats(w http.ResponseWriter, r *http.Request) {
	var out []FormatInfo
	for _, f := range camera.AllFormats() {
		out = append(out, FormatInfo{Tag: f.String(), Extension: f.Extension(), Raw: f.IsRAW()})
	}
	writeJSON(w, http.StatusOK, out)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCapture handles POST /capture to start a multi-format capture.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	formats, err := ValidateRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.RunCapture == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "capture already in progress", http.StatusConflict)
		return
	}
	if !h.lastStart.IsZero() && time.Since(h.lastStart) < h.MinInterval {
		h.runningMu.Unlock()
		http.Error(w, "too many captures, try again later", http.StatusTooManyRequests)
		return
	}
	ctx, cancel := context.WithCancel(h.baseCtx)
	h.running = true
	h.lastStart = time.Now()
	h.cancelRun = cancel
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			cancel()
			h.runningMu.Lock()
			h.running = false
			h.cancelRun = nil
			h.runningMu.Unlock()
		}()

		artifacts, err := h.RunCapture(ctx, formats)
		if err != nil {
			level := "error"
			if errors.Is(err, capture.ErrCancelled) {
				level = "warn"
			}
			h.Broadcaster.Broadcast(level, "Capture failed: "+err.Error())
			debug.Error(err)
			return
		}
		for _, a := range artifacts {
			h.Broadcaster.BroadcastArtifact(a)
		}
		h.Broadcaster.Broadcast("info", fmt.Sprintf("Capture complete: %d artifacts", len(artifacts)))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleCancel handles POST /capture/cancel. The running capture is
// rejected as cancelled; artifacts already written stay on disk.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	cancel := h.cancelRun
	h.runningMu.Unlock()

	if cancel == nil {
		http.Error(w, "no capture in progress", http.StatusConflict)
		return
	}
	cancel()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// Running reports whether a capture is in progress.
func (h *Handlers) Running() bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	return h.running
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
