package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/straja-ai/magika-go/internal/auth"
	"github.com/straja-ai/magika-go/internal/config"
	"github.com/straja-ai/magika-go/internal/magika"
	"github.com/straja-ai/magika-go/internal/redact"
	"github.com/straja-ai/magika-go/internal/report"
	"github.com/straja-ai/magika-go/internal/telemetry"
)

// EventLookup finds events that have left the in-memory store.
// *report.SQLiteSink satisfies it.
type EventLookup interface {
	Get(ctx context.Context, id string) (*report.Event, error)
}

// Server exposes a Scanner over HTTP.
type Server struct {
	cfg     config.ServerConfig
	scanner *magika.Scanner
	model   string
	auth    *auth.Auth
	emitter *report.Emitter
	history EventLookup
	tel     *telemetry.Provider
	results *resultStore

	mux        *http.ServeMux
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithEmitter forwards every scan event to em.
func WithEmitter(em *report.Emitter) Option {
	return func(s *Server) { s.emitter = em }
}

// WithHistory answers GET /v1/scans/{id} from h once the in-memory TTL expired.
func WithHistory(h EventLookup) Option {
	return func(s *Server) { s.history = h }
}

// WithTelemetry records spans and metrics for each scan.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(s *Server) { s.tel = p }
}

// WithModelName sets the model name reported in events and /v1/labels.
func WithModelName(name string) Option {
	return func(s *Server) { s.model = name }
}

// New builds a Server around scanner.
func New(cfg config.ServerConfig, scanner *magika.Scanner, opts ...Option) (*Server, error) {
	if scanner == nil {
		return nil, errors.New("scanner is nil")
	}
	authz, err := auth.New(cfg.APIKeys)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		scanner: scanner,
		auth:    authz,
		results: newResultStore(time.Duration(cfg.ResultTTLSecond) * time.Second),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /v1/scan", s.handleScan)
	s.mux.HandleFunc("GET /v1/scans/{id}", s.handleGetScan)
	s.mux.HandleFunc("GET /v1/labels", s.handleLabels)
	return s, nil
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	redact.Logf("server: magika listening on %s (auth=%v)", s.cfg.Addr, s.auth.Enabled())
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight scans.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// --- Handlers ---

type scanResponse struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Score float32 `json:"score"`
	Size  int64   `json:"size"`
	MIME  string  `json:"mime,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
	ID      string `json:"id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Allow(r.Header.Get("Authorization")) {
		writeError(w, http.StatusUnauthorized, "invalid or missing API key", "authentication_error", "")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "request_too_large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body", "source_io", "")
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "upload"
	}
	size := int64(len(data))

	ctx, span := s.tel.StartScan(r.Context(), map[string]interface{}{
		telemetry.AttrSource: name,
		telemetry.AttrSize:   size,
		telemetry.AttrOrigin: "http",
	})
	start := time.Now()
	pred, scanErr := s.scanner.ScanBytes(ctx, data)
	dur := time.Since(start)
	telemetry.EndScan(span, pred, scanErr)
	s.tel.RecordScan(ctx, pred, size, dur, scanErr)

	ev := report.BuildEvent(report.BuildParams{
		Source:     name,
		Model:      s.model,
		Prediction: pred,
		Size:       size,
		MIME:       report.DetectMIME(bytes.NewReader(data)),
		Err:        scanErr,
		Duration:   dur,
	})
	s.results.Put(ev)
	s.emitter.Emit(ev)

	if scanErr != nil {
		redact.Logf("server: scan %s failed: %v", ev.ID, scanErr)
		writeError(w, statusFor(scanErr), "scan failed", ev.ErrorKind, ev.ID)
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{
		ID:    ev.ID,
		Label: ev.Label,
		Score: ev.Score,
		Size:  ev.Size,
		MIME:  ev.MIME,
	})
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Allow(r.Header.Get("Authorization")) {
		writeError(w, http.StatusUnauthorized, "invalid or missing API key", "authentication_error", "")
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if ev, ok := s.results.Get(id); ok {
		writeJSON(w, http.StatusOK, ev)
		return
	}
	if s.history != nil && id != "" {
		ev, err := s.history.Get(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, ev)
			return
		case !errors.Is(err, report.ErrEventNotFound):
			redact.Logf("server: history lookup %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "history lookup failed", "unknown", id)
			return
		}
	}
	writeError(w, http.StatusNotFound, "scan not found", "not_found", id)
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Allow(r.Header.Get("Authorization")) {
		writeError(w, http.StatusUnauthorized, "invalid or missing API key", "authentication_error", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":  s.model,
		"labels": s.scanner.Labels(),
	})
}

// statusFor maps scan error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, magika.ErrSourceUnavailable), errors.Is(err, magika.ErrSourceIO), errors.Is(err, magika.ErrOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		redact.Logf("server: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, kind, id string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Kind: kind, ID: id}})
}
