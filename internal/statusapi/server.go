// Package statusapi exposes a read-only HTTP view of in-flight and
// completed runs: a point-in-time snapshot at GET /runs/{id} and a
// server-sent-event stream of snapshots at GET /runs/{id}/stream.
package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/owlduet-labs/adc-engine/pkg/adcmodel"
)

// version is set via -ldflags at build time.
var version = "dev"

// SetVersion overrides the reported version string.
func SetVersion(v string) {
	version = v
}

// RunSnapshot is one read of a run's current state, safe to serialize and
// safe to take concurrently with the Scheduler mutating the underlying
// RunState on its own goroutine.
type RunSnapshot struct {
	RunID           string  `json:"run_id"`
	Status          string  `json:"status"`
	OuterIteration  int     `json:"outer_iteration"`
	InnerIteration  int     `json:"inner_iteration"`
	ComplianceScore float64 `json:"compliance_score"`
	TotalTokens     int     `json:"total_tokens"`
	PhaseCount      int     `json:"phase_count"`
}

// Registry is the status API's view of running and completed runs: a
// thread-safe map from run ID to its latest RunSnapshot, written by
// whatever drives the Scheduler and read by this package's handlers.
//
// ADC-IMPLEMENTS: <status-api-feature-01>
type Registry struct {
	store *snapshotStore
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{store: newSnapshotStore()}
}

// Put records or updates a run's snapshot, computed fresh from the current
// RunState. Status should be "running", "success", or "failed".
func (r *Registry) Put(runID string, status string, rs *adcmodel.RunState) {
	snapshot := RunSnapshot{
		RunID:           runID,
		Status:          status,
		OuterIteration:  rs.OuterIteration,
		InnerIteration:  rs.InnerIteration,
		ComplianceScore: rs.ComplianceScore,
		TotalTokens:     rs.TotalTokens(),
		PhaseCount:      len(rs.PhaseHistory),
	}
	r.store.put(runID, snapshot)
}

// Get returns the latest snapshot for a run, or ok=false if unknown.
func (r *Registry) Get(runID string) (RunSnapshot, bool) {
	return r.store.get(runID)
}

// Subscribe returns a channel receiving every snapshot Put records for
// runID from this point on, plus a cancel function the caller must invoke
// to stop receiving and release the subscription.
func (r *Registry) Subscribe(runID string) (<-chan RunSnapshot, func()) {
	return r.store.subscribe(runID)
}

// Server is the chi-based HTTP surface over a Registry.
type Server struct {
	registry *Registry
	router   chi.Router
}

// NewServer builds a Server backed by registry, wiring the same
// middleware stack (request ID, real IP, logging, panic recovery, CORS)
// the rest of the service stack uses.
func NewServer(registry *Registry) *Server {
	s := &Server{registry: registry}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Route("/runs/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetRun)
		r.Get("/stream", s.handleStreamRun)
	})

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version, "service": "adc-engine"})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snapshot, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handleStreamRun streams each snapshot update for a run as a
// server-sent event, closing when the client disconnects.
func (s *Server) handleStreamRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if snapshot, ok := s.registry.Get(id); ok {
		writeSSE(w, snapshot)
		flusher.Flush()
	}

	updates, cancel := s.registry.Subscribe(id)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			writeSSE(w, snapshot)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, snapshot RunSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
