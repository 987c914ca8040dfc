// Package http exposes the execution core over HTTP: run control endpoints
// and a server-sent-events stream that forwards event-bus events verbatim.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Itangalo/scenario-lab-sub001/internal/logging"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
	"github.com/Itangalo/scenario-lab-sub001/pkg/events"
)

// StartRequest is the body of POST /runs.
type StartRequest struct {
	// Scenario is the scenario definition in YAML.
	Scenario string `json:"scenario"`
	// EndTurn overrides the scenario's configured end turn when positive.
	EndTurn int `json:"end_turn,omitempty"`
	// CreditLimitUSD overrides the scenario's credit limit when positive.
	CreditLimitUSD float64 `json:"credit_limit_usd,omitempty"`
	// DryRun routes calls to the offline scripted client.
	DryRun bool `json:"dry_run,omitempty"`
}

// Engine is the capability surface the server needs from the execution core.
// Runs execute asynchronously; the stream endpoint observes their progress.
type Engine interface {
	StartRun(ctx context.Context, req StartRequest) (runID string, err error)
	Status(ctx context.Context, runID string) (*domain.ScenarioState, error)
	ListRuns(ctx context.Context) ([]string, error)
	Pause(runID string) error
	ResumeRun(ctx context.Context, runID string) error
	Bus() *events.Bus
}

// Server handles the HTTP API.
type Server struct {
	engine  Engine
	logger  *slog.Logger
	metrics http.Handler
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetricsHandler mounts a metrics endpoint (e.g. promhttp) at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// NewHandler builds the routed HTTP handler for the engine.
func NewHandler(engine Engine, opts ...ServerOption) http.Handler {
	s := &Server{
		engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.startRun)
		r.Get("/", s.listRuns)
		r.Get("/{runID}", s.status)
		r.Post("/{runID}/pause", s.pause)
		r.Post("/{runID}/resume", s.resume)
		r.Get("/{runID}/events", s.streamEvents)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Scenario == "" {
		http.Error(w, "scenario is required", http.StatusBadRequest)
		return
	}

	runID, err := s.engine.StartRun(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.logger.Info("run started", "run_id", runID)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.engine.ListRuns(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// statusResponse summarizes a run without shipping the whole snapshot.
type statusResponse struct {
	RunID      string  `json:"run_id"`
	ScenarioID string  `json:"scenario_id"`
	Status     string  `json:"status"`
	HaltReason string  `json:"halt_reason,omitempty"`
	Turn       int     `json:"turn"`
	TotalUSD   float64 `json:"total_usd"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	state, err := s.engine.Status(r.Context(), runID)
	if err != nil {
		s.runError(w, runID, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		RunID:      state.RunID,
		ScenarioID: state.ScenarioID,
		Status:     string(state.Status),
		HaltReason: string(state.HaltReason),
		Turn:       state.Turn,
		TotalUSD:   state.TotalCost(),
	})
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.engine.Pause(runID); err != nil {
		s.runError(w, runID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "requested": "pause"})
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.engine.ResumeRun(r.Context(), runID); err != nil {
		s.runError(w, runID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "requested": "resume"})
}

// streamEvents forwards bus events for one run as server-sent events,
// replaying the retained history first so reconnecting clients catch up.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	runID := chi.URLParam(r, "runID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Live events are buffered while the replay is written; the subscription
	// starts first so no event falls between replay and live. An event
	// published in that window arrives both in the replay and on the live
	// channel, so the replayed frames are remembered and each live
	// duplicate is suppressed once.
	live := make(chan domain.Event, 64)
	unsubscribe := s.engine.Bus().SubscribeAll(func(evt domain.Event) {
		if evt.RunID != runID {
			return
		}
		select {
		case live <- evt:
		default:
			// Slow client: drop rather than block the bus.
		}
	})
	defer unsubscribe()

	replayed := make(map[string]struct{})
	for _, evt := range s.engine.Bus().History(runID) {
		data, err := json.Marshal(evt)
		if err != nil {
			return
		}
		if err := writeSSE(w, evt.Type, data); err != nil {
			return
		}
		replayed[string(data)] = struct{}{}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-live:
			data, err := json.Marshal(evt)
			if err != nil {
				return
			}
			if replayed != nil {
				if _, dup := replayed[string(data)]; dup {
					delete(replayed, string(data))
					continue
				}
				// Live dispatch is in publish order, so the first
				// non-replayed event means the overlap window has
				// fully drained.
				replayed = nil
			}
			if err := writeSSE(w, evt.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE emits one event verbatim as its JSON encoding.
func writeSSE(w http.ResponseWriter, t domain.EventType, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", t, data)
	return err
}

func (s *Server) runError(w http.ResponseWriter, runID string, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, domain.ErrRunNotFound):
		http.Error(w, fmt.Sprintf("run %s not found", runID), http.StatusNotFound)
	case errors.Is(err, domain.ErrNotResumable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
