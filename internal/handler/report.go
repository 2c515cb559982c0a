// Package handler exposes report analytics over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/reportcore/internal/aggregate"
	"github.com/matthewbaird/reportcore/internal/analytics"
	"github.com/matthewbaird/reportcore/internal/catalog"
	"github.com/matthewbaird/reportcore/internal/fields"
	"github.com/matthewbaird/reportcore/internal/filter"
	"github.com/matthewbaird/reportcore/internal/insight"
	"github.com/matthewbaird/reportcore/internal/types"
	"github.com/matthewbaird/reportcore/internal/visibility"
)

// Analytics is the engine surface the handlers need.
type Analytics interface {
	Report(ctx context.Context, reportID string) (catalog.Report, error)
	Entries(ctx context.Context, reportID string, active filter.Active) (catalog.Report, []types.Entry, error)
	Run(ctx context.Context, q analytics.Query) (analytics.Result, error)
	Compare(ctx context.Context, q analytics.Query, previous filter.Active) (aggregate.Comparison, error)
	Import(ctx context.Context, reportID string, docs []types.Document) (analytics.ImportResult, error)
}

// ReportHandler serves the /v1/reports routes.
type ReportHandler struct {
	engine Analytics
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(engine Analytics) *ReportHandler {
	return &ReportHandler{engine: engine}
}

// Routes registers the report routes on r.
func (h *ReportHandler) Routes(r chi.Router) {
	r.Route("/v1/reports/{report_id}", func(r chi.Router) {
		r.Get("/", h.GetReport)
		r.Post("/visibility", h.Visibility)
		r.Post("/entries/search", h.SearchEntries)
		r.Post("/entries/import", h.ImportEntries)
		r.Post("/aggregate", h.Aggregate)
		r.Post("/compare", h.Compare)
	})
}

// GetReport returns a report template.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Report(r.Context(), chi.URLParam(r, "report_id"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type visibilityRequest struct {
	Values types.RawBag `json:"values"`
}

type visibilityResponse struct {
	Visible  map[string]bool      `json:"visible"`
	Sections []visibility.Section `json:"sections"`
}

// Visibility evaluates the report's visibility rules against a draft value bag.
func (h *ReportHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidBody(w, err)
		return
	}
	report, err := h.engine.Report(r.Context(), chi.URLParam(r, "report_id"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	// Draft values are partial; decode issues only hide the affected values.
	bag, _ := fields.DecodeBag(report.Fields, req.Values)
	ev := visibility.NewEvaluator(report.Fields)
	sections := ev.Layout(bag)
	if sections == nil {
		sections = []visibility.Section{}
	}
	writeJSON(w, http.StatusOK, visibilityResponse{
		Visible:  ev.VisibleIDs(bag),
		Sections: sections,
	})
}

type searchRequest struct {
	Filters filter.Active `json:"filters"`
}

type searchResponse struct {
	Entries    []types.Entry `json:"entries"`
	TotalCount int           `json:"total_count"`
}

// SearchEntries returns one page of the entries matching the filters.
func (h *ReportHandler) SearchEntries(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidBody(w, err)
		return
	}
	_, entries, err := h.engine.Entries(r.Context(), chi.URLParam(r, "report_id"), req.Filters)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	lo, hi := parsePagination(r).page(len(entries))
	writeJSON(w, http.StatusOK, searchResponse{
		Entries:    append([]types.Entry{}, entries[lo:hi]...),
		TotalCount: len(entries),
	})
}

type aggregateRequest struct {
	Filters  filter.Active       `json:"filters"`
	GroupBy  aggregate.Dimension `json:"group_by"`
	Insights []insight.Config    `json:"insights"`
	Universe []string            `json:"universe"`
}

// Aggregate groups the matching entries and computes insights.
func (h *ReportHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidBody(w, err)
		return
	}
	res, err := h.engine.Run(r.Context(), analytics.Query{
		ReportID: chi.URLParam(r, "report_id"),
		Filters:  req.Filters,
		GroupBy:  req.GroupBy,
		Insights: req.Insights,
		Universe: req.Universe,
	})
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type compareRequest struct {
	Filters         filter.Active       `json:"filters"`
	PreviousFilters filter.Active       `json:"previous_filters"`
	GroupBy         aggregate.Dimension `json:"group_by"`
	Universe        []string            `json:"universe"`
}

// Compare aggregates two filter sets and joins the results by group.
func (h *ReportHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidBody(w, err)
		return
	}
	cmp, err := h.engine.Compare(r.Context(), analytics.Query{
		ReportID: chi.URLParam(r, "report_id"),
		Filters:  req.Filters,
		GroupBy:  req.GroupBy,
		Insights: []insight.Config{},
		Universe: req.Universe,
	}, req.PreviousFilters)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

type importRequest struct {
	Entries []types.Document `json:"entries"`
}

// ImportEntries stores a batch of submissions.
func (h *ReportHandler) ImportEntries(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidBody(w, err)
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "entries is required")
		return
	}
	res, err := h.engine.Import(r.Context(), chi.URLParam(r, "report_id"), req.Entries)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
