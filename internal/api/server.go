// Package api serves compiled plans over HTTP: compile a definition, list
// and inspect stored plans, and render the setpoints of a stored plan.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/seqsweep/internal/compiler"
	"github.com/banshee-data/seqsweep/internal/config"
	"github.com/banshee-data/seqsweep/internal/db"
	"github.com/banshee-data/seqsweep/internal/httputil"
	"github.com/banshee-data/seqsweep/internal/monitoring"
	"github.com/banshee-data/seqsweep/internal/plot"
	"github.com/banshee-data/seqsweep/internal/version"
)

type Server struct {
	db       *db.DB
	compiles atomic.Int64
}

// NewServer returns a server backed by database. With a nil database only
// /api/compile is available.
func NewServer(database *db.DB) *Server {
	return &Server{db: database}
}

// CompileResponse is the body returned by /api/compile.
type CompileResponse struct {
	PlanID string         `json:"plan_id,omitempty"`
	Plan   *compiler.Plan `json:"plan"`
}

// PlanResponse is a stored plan with its axis rows.
type PlanResponse struct {
	*db.PlanRecord
	Axes []db.AxisRow `json:"axes"`
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf("[%d] %s %s %.2fms", lrw.statusCode, r.Method, r.RequestURI,
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}

// ServeMux routes the API and the /debug/ pages. Debug pages are served to
// loopback and tailnet clients only.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/compile", s.handleCompile)
	mux.HandleFunc("/api/plans", s.handlePlans)
	mux.HandleFunc("/api/plans/", s.handlePlanByID)

	debug := tsweb.Debugger(mux)
	debug.KV("Version", version.String())
	debug.KVFunc("Compiles", func() any { return s.compiles.Load() })
	if s.db != nil {
		if err := s.db.AttachAdminRoutes(mux); err != nil {
			monitoring.Warnf("plan store debug routes disabled: %v", err)
		}
	}
	return mux
}

// handleCompile handles POST /api/compile
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var def config.SweepDefinition
	if err := httputil.DecodeJSON(r, &def); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := def.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := compiler.Compile(&def)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	s.compiles.Add(1)

	resp := CompileResponse{Plan: res.Plan}
	status := http.StatusOK
	if s.db != nil && r.URL.Query().Get("store") != "false" {
		id, err := s.db.InsertPlan(&def, res.Plan)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		resp.PlanID = id
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, resp)
}

// handlePlans handles GET /api/plans?sequence=&limit=
func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireDB(w) {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	plans, err := s.db.ListPlans(r.URL.Query().Get("sequence"), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if plans == nil {
		plans = []db.PlanRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, plans)
}

// handlePlanByID handles GET/DELETE /api/plans/:id and
// GET /api/plans/:id/setpoints
func (s *Server) handlePlanByID(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/plans/"), "/")
	id := parts[0]
	if id == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "missing plan id")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "setpoints":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleSetpoints(w, id)
	case len(parts) > 1:
		httputil.WriteJSONError(w, http.StatusNotFound, "not found")
	case r.Method == http.MethodGet:
		s.handleGetPlan(w, id)
	case r.Method == http.MethodDelete:
		if err := s.db.DeletePlan(id); err != nil {
			httputil.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func (s *Server) handleGetPlan(w http.ResponseWriter, id string) {
	rec, err := s.db.GetPlan(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	axes, err := s.db.PlanAxes(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PlanResponse{PlanRecord: rec, Axes: axes})
}

// handleSetpoints rebuilds the stored definition and renders its axes.
func (s *Server) handleSetpoints(w http.ResponseWriter, id string) {
	rec, err := s.db.GetPlan(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	seq, err := compiler.Build(rec.Definition)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := plot.SetpointsHTML(fmt.Sprintf("%s setpoints (%s)", rec.Sequence, id),
		plot.SeriesFromSet(seq.Sweeps()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteHTML(w, page)
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no plan database configured")
		return false
	}
	return true
}

// ListenAndServe serves the API on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           LoggingMiddleware(s.ServeMux()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("HTTP API listening on %s", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Warnf("HTTP server shutdown error: %v", err)
		return server.Close()
	}
	return nil
}
