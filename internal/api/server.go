package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lifesignal/internal/alerts"
	"lifesignal/internal/correlate"
	"lifesignal/internal/daemon"
	"lifesignal/internal/entity"
	"lifesignal/internal/goals"
	"lifesignal/internal/metrics"
	"lifesignal/internal/report"
)

// Triggerer starts an out-of-band evaluation pass.
type Triggerer interface {
	Trigger(ctx context.Context, trigger daemon.Trigger) (string, error)
	Evaluating() bool
}

// AlertLister reads the persisted alert log.
type AlertLister interface {
	ListAlerts(ctx context.Context, limit int) ([]alerts.Record, error)
}

// Server exposes reports, correlation queries, the alert log and the manual
// trigger over HTTP.
type Server struct {
	Loader   entity.Loader
	Location *time.Location
	Engine   Triggerer
	Alerts   AlertLister
	Gatherer prometheus.Gatherer
	Now      func() time.Time
	Logger   *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.Local
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger()))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/report", s.handleReport)
		r.Get("/areas", s.handleAreas)
		r.Get("/goals", s.handleGoals)
		r.Get("/correlation", s.handleCorrelation)
		r.Get("/alerts", s.handleListAlerts)
		r.Post("/alerts/trigger", s.handleTrigger)
	})

	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// ListenAndServe serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger().Info("http server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.Engine != nil {
		resp["evaluating"] = s.Engine.Evaluating()
	}
	writeJSON(w, http.StatusOK, resp)
}

// asOf reads the optional ?now= override.
func (s *Server) asOf(r *http.Request) (time.Time, error) {
	if v := r.URL.Query().Get("now"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid now %q: want RFC3339", v)
		}
		return t, nil
	}
	return s.now(), nil
}

func (s *Server) source(w http.ResponseWriter, r *http.Request) (entity.Source, bool) {
	src, err := s.Loader(r.Context())
	if err != nil {
		s.logger().Error("load entities failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "LOAD_FAILED", err.Error())
		return nil, false
	}
	return src, true
}

func (s *Server) buildReport(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	now, err := s.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_NOW", err.Error())
		return nil, false
	}
	src, ok := s.source(w, r)
	if !ok {
		return nil, false
	}
	rep, err := report.Build(r.Context(), src, now, s.location())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "REPORT_FAILED", err.Error())
		return nil, false
	}
	return rep, true
}

// GET /v1/report
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.buildReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /v1/areas
func (s *Server) handleAreas(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.buildReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"areas":  rep.Areas,
		"global": rep.Global,
		"errors": rep.Errors,
	})
}

// GET /v1/goals
func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	src, ok := s.source(w, r)
	if !ok {
		return
	}
	progress, err := goals.EvaluateAll(r.Context(), src)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "GOALS_FAILED", err.Error())
		return
	}
	if progress == nil {
		progress = []goals.Progress{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": progress})
}

// GET /v1/correlation?driver=&outcome=&lag=&max_lag=&agg=
func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := correlate.Request{
		Driver:   q.Get("driver"),
		Outcome:  q.Get("outcome"),
		Location: s.location(),
	}
	if req.Driver == "" || req.Outcome == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "driver and outcome are required")
		return
	}
	for name, dst := range map[string]*int{"lag": &req.Lag, "max_lag": &req.MaxLag} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LAG", name+" must be a non-negative integer")
			return
		}
		*dst = n
	}
	agg, err := metrics.ParseAggregation(q.Get("agg"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_AGG", err.Error())
		return
	}
	req.Aggregation = agg
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LAG", err.Error())
		return
	}

	src, ok := s.source(w, r)
	if !ok {
		return
	}
	resp, err := correlate.Run(r.Context(), src, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "CORRELATION_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /v1/alerts?limit=
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if s.Alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_ALERT_LOG", "alert log not configured")
		return
	}
	recs, err := s.Alerts.ListAlerts(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}
	if recs == nil {
		recs = []alerts.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": recs})
}

// POST /v1/alerts/trigger
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_SCHEDULER", "scheduler not running")
		return
	}
	id, err := s.Engine.Trigger(r.Context(), daemon.TriggerManual)
	if errors.Is(err, daemon.ErrPassRunning) {
		writeError(w, http.StatusConflict, "PASS_RUNNING", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "TRIGGER_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"pass_id": id, "status": "accepted"})
}
