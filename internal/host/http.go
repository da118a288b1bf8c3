// Package host exposes the driver's control surface: the thin
// request/response command layer the desktop shell (or local tooling)
// uses to open documents, drive the capture pipeline, and inspect
// status. Handlers only translate between HTTP and the core.
package host

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	pkglog "github.com/slatecast/slatecast/pkg/log"

	"github.com/slatecast/slatecast/internal/capture"
	"github.com/slatecast/slatecast/internal/config"
	"github.com/slatecast/slatecast/internal/document"
	"github.com/slatecast/slatecast/internal/hub"
	"github.com/slatecast/slatecast/internal/output"
	"github.com/slatecast/slatecast/internal/service"
	"github.com/slatecast/slatecast/internal/state"
)

var viewerUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server is the host/control HTTP surface.
type Server struct {
	engine   service.Engine
	pipeline *capture.Pipeline
	hub      *hub.Hub
	store    *state.Store
	cfg      config.OutputsConfig

	mu     sync.Mutex
	mirror *output.MirrorSink
}

// NewServer wires the control surface into the core.
func NewServer(engine service.Engine, pipeline *capture.Pipeline, h *hub.Hub, store *state.Store, cfg config.OutputsConfig) *Server {
	return &Server{
		engine:   engine,
		pipeline: pipeline,
		hub:      h,
		store:    store,
		cfg:      cfg,
	}
}

// RegisterRoutes mounts the control endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/document/open", s.handleDocumentOpen)
	mux.HandleFunc("POST /api/document/close", s.handleDocumentClose)
	mux.HandleFunc("POST /api/capture/start", s.handleCaptureStart)
	mux.HandleFunc("POST /api/capture/stop", s.handleCaptureStop)
	mux.HandleFunc("POST /api/outputs/{kind}/start", s.handleOutputStart)
	mux.HandleFunc("POST /api/outputs/{kind}/stop", s.handleOutputStop)
	mux.HandleFunc("GET /ws/preview", s.handlePreview)
}

type statusResponse struct {
	Document    state.DocumentState    `json:"document"`
	Presenter   state.PresenterState   `json:"presenter"`
	Integration state.IntegrationState `json:"integration"`
	Connections int                    `json:"connections"`
	Sinks       []string               `json:"sinks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Document:    s.store.Document(),
		Presenter:   s.store.Presenter(),
		Integration: s.store.Integration(),
		Connections: s.hub.Count(),
		Sinks:       s.pipeline.SinkKinds(),
	})
}

type documentOpenRequest struct {
	Path     string `json:"path"`
	Pages    int    `json:"pages"`
	Manifest string `json:"manifest,omitempty"`
}

func (s *Server) handleDocumentOpen(w http.ResponseWriter, r *http.Request) {
	var req documentOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	path, pages := req.Path, req.Pages
	if req.Manifest != "" {
		m, err := document.LoadManifest(req.Manifest)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if path == "" {
			path = m.Path
		}
		pages = m.Pages
	}

	if path == "" || pages < 1 {
		writeError(w, http.StatusBadRequest, "path and a positive page count are required")
		return
	}

	if err := s.engine.OpenDocument(path, pages); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "opened"})
}

func (s *Server) handleDocumentClose(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CloseDocument(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

type captureStartRequest struct {
	Display int    `json:"display"`
	Window  string `json:"window,omitempty"`
}

func (s *Server) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	var req captureStartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	err := s.pipeline.Start(capture.Selector{DisplayID: req.Display, Window: req.Window})
	switch {
	case errors.Is(err, capture.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "capturing"})
	}
}

func (s *Server) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.mirror = nil
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
}

func (s *Server) handleOutputStart(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")

	switch kind {
	case output.KindMirror:
		mirror := output.NewMirrorSink()
		if err := s.pipeline.RegisterSink(kind, mirror); err != nil {
			mirror.Stop()
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.mu.Lock()
		s.mirror = mirror
		s.mu.Unlock()

	case output.KindRecord:
		record, err := output.NewRecordSink(s.cfg.RecordDir)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if err := s.pipeline.RegisterSink(kind, record); err != nil {
			record.Stop()
			writeError(w, http.StatusConflict, err.Error())
			return
		}

	default:
		writeError(w, http.StatusNotFound, "unknown sink kind")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "kind": kind})
}

func (s *Server) handleOutputStop(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")

	if err := s.pipeline.StopSink(kind); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if kind == output.KindMirror {
		s.mu.Lock()
		s.mirror = nil
		s.mu.Unlock()
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "kind": kind})
}

// handlePreview attaches one viewer to the running mirror sink.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	mirror := s.mirror
	s.mu.Unlock()

	if mirror == nil || !mirror.IsRunning() {
		writeError(w, http.StatusConflict, "mirror output is not running")
		return
	}

	conn, err := viewerUpgrader.Upgrade(w, r, nil)
	if err != nil {
		pkglog.L().Error().Err(err).Msg("preview upgrade failed")
		return
	}

	mirror.ServeViewer(conn)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		pkglog.L().Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
