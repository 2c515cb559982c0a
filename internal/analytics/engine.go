// Package analytics composes the report catalog, the document store and the pure
// filter/aggregate/insight pipeline into memoized report queries.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/matthewbaird/reportcore/internal/aggregate"
	"github.com/matthewbaird/reportcore/internal/catalog"
	"github.com/matthewbaird/reportcore/internal/eventbus"
	"github.com/matthewbaird/reportcore/internal/filter"
	"github.com/matthewbaird/reportcore/internal/insight"
	"github.com/matthewbaird/reportcore/internal/store"
	"github.com/matthewbaird/reportcore/internal/types"
)

// Publisher receives events after documents are written.
type Publisher interface {
	Publish(ctx context.Context, evt eventbus.Event)
}

// Query is one analytics request against a report.
type Query struct {
	ReportID string              `json:"report_id"`
	Filters  filter.Active       `json:"filters,omitempty"`
	GroupBy  aggregate.Dimension `json:"group_by,omitempty"`
	// Insights overrides the report's configured insights when non-nil.
	Insights []insight.Config `json:"insights"`
	// Universe lists every known group label so idle groups are reported.
	Universe []string `json:"universe,omitempty"`
}

// Result is the outcome of a Query. Results may be shared between callers through
// the cache and must not be modified.
type Result struct {
	ReportID   string              `json:"report_id"`
	GroupBy    aggregate.Dimension `json:"group_by"`
	Groups     []aggregate.Group   `json:"groups"`
	Totals     aggregate.Totals    `json:"totals"`
	Insights   []insight.Insight   `json:"insights"`
	EntryCount int                 `json:"entry_count"`
}

// ImportResult reports the stored ids and any data-quality issues per document.
type ImportResult struct {
	IDs    []string            `json:"ids"`
	Issues map[string][]string `json:"issues,omitempty"`
}

// Engine runs analytics queries.
type Engine struct {
	catalog   catalog.Provider
	store     store.Store
	publisher Publisher
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger

	parallelThreshold int
	workers           int

	cache  *resultCache
	flight singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the calendar used for date filters and time buckets.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithPublisher sets where import events are published.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

// WithLogger sets the engine's logger. Defaults to the global zerolog logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock overrides the time source used to stamp imported documents.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithParallelism aggregates with workers goroutines once a query matches at least
// threshold entries. workers <= 1 disables parallel aggregation.
func WithParallelism(threshold, workers int) Option {
	return func(e *Engine) {
		e.parallelThreshold = threshold
		e.workers = workers
	}
}

// WithCacheSize bounds the number of memoized results. 0 disables the cache.
func WithCacheSize(n int) Option {
	return func(e *Engine) { e.cache = newResultCache(n) }
}

// New creates an Engine.
func New(cat catalog.Provider, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		catalog:           cat,
		store:             st,
		loc:               time.Local,
		now:               time.Now,
		logger:            log.Logger,
		parallelThreshold: 5000,
		workers:           4,
		cache:             newResultCache(256),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Report returns a report's metadata.
func (e *Engine) Report(ctx context.Context, reportID string) (catalog.Report, error) {
	return e.catalog.Report(ctx, reportID)
}

// Entries loads, decodes and filters a report's documents.
func (e *Engine) Entries(ctx context.Context, reportID string, active filter.Active) (catalog.Report, []types.Entry, error) {
	report, err := e.catalog.Report(ctx, reportID)
	if err != nil {
		return catalog.Report{}, nil, err
	}
	docs, err := e.store.ListDocuments(ctx, reportID, store.ListOptions{})
	if err != nil {
		return catalog.Report{}, nil, fmt.Errorf("loading documents for %s: %w", reportID, err)
	}

	entries, issues := types.DecodeAll(docs, report.Fields)
	for id, errs := range issues {
		e.logger.Warn().
			Str("report_id", reportID).
			Str("document_id", id).
			Int("issues", len(errs)).
			Err(errs[0]).
			Msg("document has malformed values")
	}
	return report, filter.Apply(entries, report.Fields, active, filter.WithLocation(e.loc)), nil
}

// Run executes q, serving repeated identical queries from the cache.
func (e *Engine) Run(ctx context.Context, q Query) (Result, error) {
	if q.GroupBy == "" {
		q.GroupBy = aggregate.ByEntity
	}
	key, err := cacheKey(q)
	if err != nil {
		return Result{}, err
	}
	if res, ok := e.cache.get(key); ok {
		return res, nil
	}

	// Callers arriving after an import never join a flight started before it.
	gen := e.cache.generation(q.ReportID)
	v, err, _ := e.flight.Do(fmt.Sprintf("%s%s%d", key, keySep, gen), func() (interface{}, error) {
		res, err := e.run(ctx, q)
		if err != nil {
			return Result{}, err
		}
		e.cache.add(q.ReportID, gen, key, res)
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (e *Engine) run(ctx context.Context, q Query) (Result, error) {
	report, entries, err := e.Entries(ctx, q.ReportID, q.Filters)
	if err != nil {
		return Result{}, err
	}

	opts := []aggregate.Option{aggregate.WithLocation(e.loc)}
	// Time buckets are keyed by period, not label, so a label universe cannot seed them.
	if len(q.Universe) > 0 && !q.GroupBy.Temporal() {
		buckets := make([]aggregate.Bucket, len(q.Universe))
		for i, label := range q.Universe {
			buckets[i] = aggregate.Bucket{Label: label}
		}
		opts = append(opts, aggregate.WithUniverse(buckets...))
	}

	var agg aggregate.Result
	if e.workers > 1 && len(entries) >= e.parallelThreshold {
		agg, err = aggregate.AggregateParallel(ctx, entries, report.Fields, q.GroupBy, e.workers, opts...)
		if err != nil {
			return Result{}, err
		}
	} else {
		agg = aggregate.Aggregate(entries, report.Fields, q.GroupBy, opts...)
	}

	configs := q.Insights
	if configs == nil {
		configs = report.Insights
	}
	return Result{
		ReportID:   report.ID,
		GroupBy:    agg.Dimension,
		Groups:     agg.Groups,
		Totals:     agg.Totals,
		Insights:   insight.Compute(agg.Groups, report.Fields.Numeric(), configs),
		EntryCount: len(entries),
	}, nil
}

// Compare runs q for the current filters and again for previous, joining the two.
func (e *Engine) Compare(ctx context.Context, q Query, previous filter.Active) (aggregate.Comparison, error) {
	cur, err := e.Run(ctx, q)
	if err != nil {
		return aggregate.Comparison{}, err
	}
	pq := q
	pq.Filters = previous
	prev, err := e.Run(ctx, pq)
	if err != nil {
		return aggregate.Comparison{}, err
	}
	return aggregate.Compare(
		aggregate.Result{Dimension: cur.GroupBy, Groups: cur.Groups, Totals: cur.Totals},
		aggregate.Result{Dimension: prev.GroupBy, Groups: prev.Groups, Totals: prev.Totals},
	), nil
}

// Import stores docs under reportID. Missing ids are assigned and missing creation
// times are stamped. Malformed values are stored as given and reported as issues.
func (e *Engine) Import(ctx context.Context, reportID string, docs []types.Document) (ImportResult, error) {
	report, err := e.catalog.Report(ctx, reportID)
	if err != nil {
		return ImportResult{}, err
	}

	now := e.now().UTC()
	out := ImportResult{IDs: make([]string, len(docs))}
	prepared := make([]types.Document, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.ReportID = report.ID
		if d.Scope == "" {
			d.Scope = types.ScopeCell
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		if _, issues := d.Decode(report.Fields); len(issues) > 0 {
			if out.Issues == nil {
				out.Issues = make(map[string][]string)
			}
			for _, is := range issues {
				out.Issues[d.ID] = append(out.Issues[d.ID], is.Error())
			}
		}
		prepared[i] = d
		out.IDs[i] = d.ID
	}

	if err := e.store.WriteDocuments(ctx, prepared); err != nil {
		return ImportResult{}, err
	}
	e.Invalidate(report.ID)

	if e.publisher != nil {
		e.publisher.Publish(ctx, eventbus.Event{
			ID:          uuid.NewString(),
			Type:        eventbus.DocumentsImported,
			ReportID:    report.ID,
			DocumentIDs: out.IDs,
			OccurredAt:  now,
		})
	}
	e.logger.Info().Str("report_id", report.ID).Int("documents", len(prepared)).Msg("documents imported")
	return out, nil
}

// Invalidate drops every cached result of a report.
func (e *Engine) Invalidate(reportID string) {
	e.cache.invalidate(reportID)
}

// HandleEvent implements eventbus.Handler, invalidating results of imported reports.
// It lets engines sharing a store through the bus observe each other's writes.
func (e *Engine) HandleEvent(_ context.Context, evt eventbus.Event) error {
	if evt.Type == eventbus.DocumentsImported {
		e.Invalidate(evt.ReportID)
	}
	return nil
}
