// Package gateway exposes the bridge over HTTP: health and metrics probes, a
// read API over series and variables, command endpoints, and a websocket that
// streams bridge events to the presentation layer.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360/telebridge/bridge"
	"github.com/c360/telebridge/component"
	"github.com/c360/telebridge/errors"
	"github.com/c360/telebridge/health"
	"github.com/c360/telebridge/notifier"
	"github.com/c360/telebridge/router"
	"github.com/c360/telebridge/store"
)

// Bridge is the surface of the ingestion component the gateway serves
type Bridge interface {
	Samples(key string) []store.Sample
	SeriesKeys() []string
	Variables() map[string]bridge.VariableInfo
	Subscribe(kind notifier.Kind, fn notifier.Listener) notifier.SubscriptionID
	Unsubscribe(id notifier.SubscriptionID) bool
	CreateVariable(ctx context.Context, spec router.VariableSpec) error
	DeleteVariable(ctx context.Context, name string) error
	CreateFilter(ctx context.Context, variableName string) error
	DeleteFilter(ctx context.Context, filterName string) error
	UpdateParameter(ctx context.Context, name, param, value string) error
	Health() component.HealthStatus
}

// Options configures a gateway Server
type Options struct {
	Addr           string
	Bridge         Bridge
	Logger         *slog.Logger
	MetricsHandler http.Handler // optional; mounted at /metrics when set
}

// Server is the HTTP gateway
type Server struct {
	addr   string
	bridge Bridge
	logger *slog.Logger

	mux    *http.ServeMux
	server *http.Server

	running   atomic.Bool
	startTime time.Time
}

// NewServer creates the gateway and registers its routes
func NewServer(opts Options) (*Server, error) {
	if opts.Bridge == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewServer",
			"bridge is required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:   opts.Addr,
		bridge: opts.Bridge,
		logger: logger.With("component", "gateway"),
		mux:    http.NewServeMux(),
	}
	s.registerRoutes(opts.MetricsHandler)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) registerRoutes(metricsHandler http.Handler) {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if metricsHandler != nil {
		s.mux.Handle("GET /metrics", metricsHandler)
	}

	s.mux.HandleFunc("GET /api/v1/series", s.handleListSeries)
	s.mux.HandleFunc("GET /api/v1/series/{key}", s.handleGetSeries)

	s.mux.HandleFunc("GET /api/v1/variables", s.handleListVariables)
	s.mux.HandleFunc("POST /api/v1/variables", s.handleCreateVariable)
	s.mux.HandleFunc("DELETE /api/v1/variables/{name}", s.handleDeleteVariable)
	s.mux.HandleFunc("PUT /api/v1/variables/{name}/parameters/{param}", s.handleUpdateParameter)

	s.mux.HandleFunc("POST /api/v1/filters", s.handleCreateFilter)
	s.mux.HandleFunc("DELETE /api/v1/filters/{name}", s.handleDeleteFilter)

	s.mux.HandleFunc("GET /api/v1/events/ws", s.handleEvents)
}

// Handler returns the gateway's HTTP handler (for tests)
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Initialize is a no-op; route registration happens at construction
func (s *Server) Initialize() error {
	return nil
}

// Start begins serving. The listener runs in the background; a failed bind
// surfaces through the log because Serve errors after Start returns.
func (s *Server) Start(_ context.Context) error {
	if s.running.Swap(true) {
		return errors.ErrAlreadyStarted
	}
	s.startTime = time.Now()

	go func() {
		s.logger.Info("gateway listening", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully within the timeout
func (s *Server) Stop(timeout time.Duration) error {
	if !s.running.Swap(false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "Gateway", "Stop", "shutdown server")
	}
	return nil
}

// Health reports gateway health
func (s *Server) Health() component.HealthStatus {
	var uptime time.Duration
	if s.running.Load() {
		uptime = time.Since(s.startTime)
	}
	return component.HealthStatus{
		Healthy:   s.running.Load(),
		LastCheck: time.Now(),
		Uptime:    uptime,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := health.Aggregate("telebridge",
		health.FromComponentHealth("bridge", s.bridge.Health()),
		health.FromComponentHealth("gateway", s.Health()),
	)

	code := http.StatusOK
	if !status.IsHealthy() && !status.IsDegraded() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

func (s *Server) handleListSeries(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"series": s.bridge.SeriesKeys(),
	})
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	samples := s.bridge.Samples(key)
	if samples == nil {
		s.writeError(w, http.StatusNotFound, "unknown series "+key)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"key":     key,
		"samples": samples,
	})
}

func (s *Server) handleListVariables(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"variables": s.bridge.Variables(),
	})
}

func (s *Server) handleCreateVariable(w http.ResponseWriter, r *http.Request) {
	var spec router.VariableSpec
	if err := decodeBody(r, &spec); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.bridge.CreateVariable(r.Context(), spec); err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"name": spec.Name})
}

func (s *Server) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.bridge.DeleteVariable(r.Context(), name); err != nil {
		s.writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleUpdateParameter(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	param := r.PathValue("param")

	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body")
		return
	}
	value := strings.TrimSpace(string(body))
	if value == "" {
		s.writeError(w, http.StatusBadRequest, "empty parameter value")
		return
	}

	if err := s.bridge.UpdateParameter(r.Context(), name, param, value); err != nil {
		s.writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type createFilterRequest struct {
	Variable string `json:"variable"`
}

func (s *Server) handleCreateFilter(w http.ResponseWriter, r *http.Request) {
	var req createFilterRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.bridge.CreateFilter(r.Context(), req.Variable); err != nil {
		s.writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeleteFilter(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.bridge.DeleteFilter(r.Context(), name); err != nil {
		s.writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.WrapInvalid(err, "Gateway", "decodeBody", "decode request body")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

// writeCommandError maps command failures onto HTTP status codes
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsInvalid(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrNotConnected):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
