package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/randomwalk/internal/application/simulate"
	"github.com/sawpanic/randomwalk/internal/domain/walk"
	"github.com/sawpanic/randomwalk/internal/interfaces/output"
	"github.com/sawpanic/randomwalk/internal/metrics"
	"github.com/sawpanic/randomwalk/internal/net/ratelimit"
	"github.com/sawpanic/randomwalk/internal/persistence"
)

// Handlers serves health, metrics and on-demand simulations
type Handlers struct {
	source        simulate.Source
	base          simulate.Config
	maxIterations int
	metrics       *metrics.Collector
	ledger        persistence.RunLedger
	health        persistence.RepositoryHealth
	limiter       *ratelimit.Limiter
	startTime     time.Time
}

// HandlerDeps groups what the handlers need
type HandlerDeps struct {
	Source        simulate.Source
	Base          simulate.Config // defaults for window, iterations and benchmark
	MaxIterations int
	Metrics       *metrics.Collector
	Ledger        persistence.RunLedger
	Health        persistence.RepositoryHealth
	Limiter       *ratelimit.Limiter // per-client throttle on simulations, nil disables
}

// NewHandlers creates the handler set
func NewHandlers(deps HandlerDeps) *Handlers {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 10000
	}
	return &Handlers{
		source:        deps.Source,
		base:          deps.Base,
		maxIterations: deps.MaxIterations,
		metrics:       deps.Metrics,
		ledger:        deps.Ledger,
		health:        deps.Health,
		limiter:       deps.Limiter,
		startTime:     time.Now(),
	}
}

// HealthResponse is the /health body
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Ledger    *persistence.HealthCheck `json:"ledger,omitempty"`
}

// RunResponse is the /v1/runs/{run_id} body
type RunResponse struct {
	RunID   string                  `json:"run_id"`
	Counts  map[string]int64        `json:"counts"`
	Records []persistence.RunRecord `json:"records"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.health != nil {
		check := h.health.Health(r.Context())
		resp.Ledger = &check
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Metrics() http.Handler {
	return h.metrics.Handler()
}

// Simulate runs one symbol and streams its rows as CSV
func (h *Handlers) Simulate(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow(clientHost(r)) {
		h.writeError(w, r, http.StatusTooManyRequests, "rate_limited",
			"Too many simulations from this client, retry shortly")
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["symbol"]))
	cfg, err := h.requestConfig(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var buf bytes.Buffer
	opts := []simulate.Option{simulate.WithMetrics(h.metrics)}
	if h.ledger != nil {
		opts = append(opts, simulate.WithLedger(h.ledger))
	}
	runner, err := simulate.NewRunner(cfg, h.source, output.NewStreamSink(&buf), opts...)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	out, err := runner.RunSymbol(r.Context(), symbol)
	if err != nil {
		status, code := statusFor(err)
		h.writeError(w, r, status, code, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("X-Run-ID", runner.RunID())
	w.Header().Set("X-Drift", formatFloat(out.Stats.Drift))
	w.Header().Set("X-Volatility", formatFloat(out.Stats.Volatility))
	w.Header().Set("X-Terminal-P05", formatFloat(out.Summary.P05))
	w.Header().Set("X-Terminal-P50", formatFloat(out.Summary.P50))
	w.Header().Set("X-Terminal-P95", formatFloat(out.Summary.P95))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Client went away mid-response")
	}
}

// Run returns the ledger records of one run
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "ledger_disabled",
			"The run ledger is not configured")
		return
	}
	runID := mux.Vars(r)["run_id"]
	if _, err := uuid.Parse(runID); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "run_id must be a UUID")
		return
	}

	records, err := h.ledger.ListRun(r.Context(), runID)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Ledger read failed")
		h.writeError(w, r, http.StatusInternalServerError, "ledger_error", "Failed to read run")
		return
	}
	if len(records) == 0 {
		h.writeError(w, r, http.StatusNotFound, "run_not_found", "No records for run "+runID)
		return
	}
	counts, err := h.ledger.CountByState(r.Context(), runID)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Ledger read failed")
		h.writeError(w, r, http.StatusInternalServerError, "ledger_error", "Failed to read run")
		return
	}
	h.writeJSON(w, http.StatusOK, RunResponse{RunID: runID, Counts: counts, Records: records})
}

func (h *Handlers) requestConfig(r *http.Request) (simulate.Config, error) {
	cfg := h.base
	cfg.Workers = 1
	q := r.URL.Query()

	if v := q.Get("start"); v != "" {
		start, err := time.Parse(walk.DateLayout, v)
		if err != nil {
			return cfg, fmt.Errorf("invalid start %q, want YYYY-MM-DD", v)
		}
		cfg.Start = start
	}
	if v := q.Get("end"); v != "" {
		end, err := time.Parse(walk.DateLayout, v)
		if err != nil {
			return cfg, fmt.Errorf("invalid end %q, want YYYY-MM-DD", v)
		}
		cfg.End = end
	}
	if v := q.Get("iterations"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > h.maxIterations {
			return cfg, fmt.Errorf("iterations must be an integer in [1, %d]", h.maxIterations)
		}
		cfg.Iterations = n
	}
	if v := q.Get("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid seed %q", v)
		}
		cfg.Seed = seed
	}
	return cfg, cfg.Validate()
}

func statusFor(err error) (int, string) {
	var symErr *walk.SymbolError
	if errors.As(err, &symErr) && symErr.Stage == "benchmark" {
		return http.StatusServiceUnavailable, "benchmark_unavailable"
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, walk.ErrDataUnavailable):
		return http.StatusNotFound, walk.Reason(err)
	case errors.Is(err, walk.ErrLengthMismatch), errors.Is(err, walk.ErrInsufficientData):
		return http.StatusUnprocessableEntity, walk.Reason(err)
	default:
		return http.StatusInternalServerError, walk.Reason(err)
	}
}

func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
