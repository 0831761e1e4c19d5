package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/slides"
	"github.com/sells-group/gmv-tracker/internal/store"
)

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	year, ok := queryInt(r, "year")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "year must be an integer")
		return
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "limit must be an integer")
		return
	}

	reports, err := s.store.ListReports(r.Context(), store.ReportFilter{Year: year, Limit: limit})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) trend(w http.ResponseWriter, r *http.Request) {
	weeks, ok := queryInt(r, "weeks")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "weeks must be an integer")
		return
	}
	if weeks <= 0 {
		weeks = s.opts.TrendWeeks
	}
	reports, err := s.reports.Trend(r.Context(), weeks)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	detail, err := s.reports.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) updateNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Notes == nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "notes is required")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.UpdateReportNotes(r.Context(), id, *req.Notes); err != nil {
		writeDomainError(w, err)
		return
	}
	rep, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) deleteReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetReport(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.store.DeleteReport(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	zap.L().Info("api: report deleted", zap.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listImports(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetReport(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	imports, err := s.store.ListImports(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imports": imports})
}

func (s *Server) compare(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.reports.Compare(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "prevID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// calculateRequest is a metrics.Input with an optional target margin.
type calculateRequest struct {
	metrics.Input
	TargetMargin *float64 `json:"target_margin"`
	// Partial reports undefined metrics instead of failing on a zero divisor.
	Partial bool `json:"partial"`
}

func (s *Server) calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		return
	}
	margin := metrics.DefaultTargetMargin
	if req.TargetMargin != nil {
		margin = *req.TargetMargin
	}

	if req.Partial {
		p, err := metrics.CalculatePartial(req.Input, margin)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}

	out, err := metrics.CalculateWithMargin(req.Input, margin)
	if err == nil {
		err = out.Finite()
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listInsights(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetReport(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	recs, err := s.store.ListRecommendations(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "no insight providers configured")
		return
	}
	var req struct {
		Regenerate bool                 `json:"regenerate"`
		Types      []model.AnalysisType `json:"types"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
			return
		}
	}
	for _, t := range req.Types {
		switch t {
		case model.AnalysisTrends, model.AnalysisRecommendations, model.AnalysisPrediction:
		default:
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "unknown analysis type "+string(t))
			return
		}
	}

	recs, err := s.analyzer.Analyze(r.Context(), chi.URLParam(r, "id"), req.Regenerate, req.Types...)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func (s *Server) notionStatus(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "notion is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetReport(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	st, err := s.syncer.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": st.Synced, "last": st.Last, "status": st.String()})
}

func (s *Server) syncNotion(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "notion is not configured")
		return
	}
	entry, err := s.syncer.SyncReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) slides(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deck, err := slides.Render(r.Context(), s.store, id, s.opts.TrendWeeks)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	path, err := slides.Save(s.opts.SlidesDir, id, deck)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path, "content": deck})
}
