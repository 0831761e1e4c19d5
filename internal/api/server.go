// Package api exposes reports, imports, insights, Notion sync and the metrics
// calculator over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/gmv-tracker/internal/insight"
	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/notionsync"
	"github.com/sells-group/gmv-tracker/internal/reconcile"
	"github.com/sells-group/gmv-tracker/internal/report"
	"github.com/sells-group/gmv-tracker/internal/store"
)

// maxUploadBytes bounds the in-memory part of a multipart import.
const maxUploadBytes = 32 << 20

// Options holds the defaults applied to requests that omit them.
type Options struct {
	Fees        model.FeeSchedule
	Policy      reconcile.Policy
	TopN        int
	TrendWeeks  int
	SlidesDir   string
	CORSOrigins []string
}

// Server serves the HTTP API. Analyzer and Syncer are optional; their routes
// answer 503 when nil.
type Server struct {
	store    store.Store
	reports  *report.Service
	analyzer *insight.Analyzer
	syncer   *notionsync.Syncer
	opts     Options
}

// New creates a Server.
func New(s store.Store, reports *report.Service, analyzer *insight.Analyzer, syncer *notionsync.Syncer, opts Options) *Server {
	if opts.TrendWeeks <= 0 {
		opts.TrendWeeks = 8
	}
	if opts.SlidesDir == "" {
		opts.SlidesDir = "slides"
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{store: s, reports: reports, analyzer: analyzer, syncer: syncer, opts: opts}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/metrics", s.calculate)
		r.Post("/imports", s.importReport)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.listReports)
			r.Get("/trend", s.trend)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getReport)
				r.Patch("/", s.updateNotes)
				r.Delete("/", s.deleteReport)
				r.Get("/imports", s.listImports)
				r.Get("/compare", s.compare)
				r.Get("/compare/{prevID}", s.compare)
				r.Get("/insights", s.listInsights)
				r.Post("/insights", s.analyze)
				r.Get("/notion", s.notionStatus)
				r.Post("/notion", s.syncNotion)
				r.Post("/slides", s.slides)
			})
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: msg}})
}

// writeDomainError maps err onto a status code. Unknown errors are logged
// and answered with a generic 500.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
		writeError(w, status, code, "internal server error")
		return
	}

	body := errorBody{Code: code, Message: err.Error()}
	var dz *metrics.DivisionByZeroError
	if errors.As(err, &dz) {
		body.Details = map[string]any{"metric": dz.Metric, "divisor": dz.Divisor}
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func classify(err error) (int, string) {
	var inputErr *report.InputError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, report.ErrWeekExists):
		return http.StatusConflict, "WEEK_EXISTS"
	case errors.Is(err, metrics.ErrDivisionByZero):
		return http.StatusUnprocessableEntity, "DIVISION_BY_ZERO"
	case errors.Is(err, metrics.ErrInvalidMargin):
		return http.StatusUnprocessableEntity, "INVALID_MARGIN"
	case errors.Is(err, reconcile.ErrAmbiguousMatch):
		return http.StatusUnprocessableEntity, "AMBIGUOUS_MATCH"
	case errors.Is(err, metrics.ErrNonFinite):
		return http.StatusUnprocessableEntity, "NON_FINITE"
	case errors.As(err, &inputErr):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, notionsync.ErrNotConfigured), errors.Is(err, insight.ErrNoProviders):
		return http.StatusServiceUnavailable, "NOT_CONFIGURED"
	case errors.Is(err, insight.ErrAllFailed):
		return http.StatusBadGateway, "PROVIDERS_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
