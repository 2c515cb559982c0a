package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/reportcore/internal/aggregate"
	"github.com/matthewbaird/reportcore/internal/catalog"
	"github.com/matthewbaird/reportcore/internal/eventbus"
	"github.com/matthewbaird/reportcore/internal/fields"
	"github.com/matthewbaird/reportcore/internal/filter"
	"github.com/matthewbaird/reportcore/internal/insight"
	"github.com/matthewbaird/reportcore/internal/store"
	"github.com/matthewbaird/reportcore/internal/types"
)

// countingStore counts listings to observe cache hits.
type countingStore struct {
	store.Store
	mu    sync.Mutex
	lists int
}

func (s *countingStore) ListDocuments(ctx context.Context, reportID string, opts store.ListOptions) ([]types.Document, error) {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	return s.Store.ListDocuments(ctx, reportID, opts)
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

// gatedStore holds the first listing until release is closed.
type gatedStore struct {
	countingStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) ListDocuments(ctx context.Context, reportID string, opts store.ListOptions) ([]types.Document, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.countingStore.ListDocuments(ctx, reportID, opts)
}

type recordingPublisher struct {
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt eventbus.Event) {
	p.events = append(p.events, evt)
}

func testReport() catalog.Report {
	return catalog.Report{
		ID:   "r1",
		Name: "Informe",
		Fields: fields.MustSet(
			fields.Definition{ID: "asis", Key: "asistentes", Label: "Asistentes", Type: fields.Number, Order: 1},
			fields.Definition{ID: "ayuno", Key: "ayuno", Label: "Ayuno", Type: fields.Boolean, Order: 2},
		),
		Insights: []insight.Config{{FieldID: "asis", Type: insight.Max, Enabled: true}},
	}
}

func doc(id, entity string, day int, values string) types.Document {
	var bag types.RawBag
	if err := json.Unmarshal([]byte(values), &bag); err != nil {
		panic(err)
	}
	return types.Document{
		ID:        id,
		ReportID:  "r1",
		Scope:     types.ScopeCell,
		CreatedAt: time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC),
		Values:    bag,
		Context:   types.Context{EntityName: entity},
	}
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *countingStore) {
	t.Helper()
	st := &countingStore{Store: store.NewMemoryStore()}
	require.NoError(t, st.WriteDocuments(context.Background(), []types.Document{
		doc("d1", "Célula 2", 1, `{"asis": 10, "ayuno": true}`),
		doc("d2", "Célula 10", 5, `{"asis": "abc", "ayuno": "Sí"}`),
		doc("d3", "Célula 2", 20, `{"asis": 4, "extra": 1}`),
	}))
	opts = append([]Option{WithLocation(time.UTC)}, opts...)
	return New(catalog.NewMemory(testReport()), st, opts...), st
}

func TestEngine_Run(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.Run(context.Background(), Query{ReportID: "r1"})
	require.NoError(t, err)

	assert.Equal(t, aggregate.ByEntity, res.GroupBy)
	assert.Equal(t, 3, res.EntryCount)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, "Célula 2", res.Groups[0].Label)
	assert.Equal(t, 14.0, res.Groups[0].Values["asis"])
	assert.Equal(t, 0.0, res.Groups[1].Values["asis"])
	assert.Equal(t, 2.0, res.Totals.Values["ayuno"])

	require.Len(t, res.Insights, 1)
	assert.Contains(t, res.Insights[0].Message, "Célula 2")
}

func TestEngine_RunFiltersAndOverridesInsights(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.Run(context.Background(), Query{
		ReportID: "r1",
		Filters:  filter.Active{filter.KeyCreatedTo: "2024-03-10"},
		GroupBy:  aggregate.ByMonth,
		Insights: []insight.Config{},
		Universe: nil,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.EntryCount)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "marzo 2024", res.Groups[0].Label)
	assert.Empty(t, res.Insights)
}

func TestEngine_RunUniverseReportsIdleGroups(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.Run(context.Background(), Query{ReportID: "r1", Universe: []string{"Célula 2", "Célula 10", "Célula 3"}})
	require.NoError(t, err)
	require.Len(t, res.Groups, 3)

	last := res.Insights[len(res.Insights)-1]
	assert.Equal(t, insight.Inactivity, last.Kind)
	assert.Equal(t, insight.Warning, last.Type)
	assert.Contains(t, last.Message, "Célula 3")
}

func TestEngine_RunUniverseIgnoredForTimeBuckets(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.Run(context.Background(), Query{
		ReportID: "r1",
		GroupBy:  aggregate.ByMonth,
		Universe: []string{"marzo 2024", "Célula 3"},
	})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "2024-03", res.Groups[0].Key)
	assert.Equal(t, "marzo 2024", res.Groups[0].Label)
	assert.Equal(t, 3, res.Groups[0].Count)
	for _, in := range res.Insights {
		assert.NotEqual(t, insight.Inactivity, in.Kind)
	}
}

func TestEngine_RunAfterImportDoesNotJoinStaleFlight(t *testing.T) {
	st := &gatedStore{
		countingStore: countingStore{Store: store.NewMemoryStore()},
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	ctx := context.Background()
	require.NoError(t, st.WriteDocuments(ctx, []types.Document{doc("d1", "Célula 2", 1, `{"asis": 10}`)}))
	e := New(catalog.NewMemory(testReport()), st, WithLocation(time.UTC))
	q := Query{ReportID: "r1"}

	stale := make(chan Result, 1)
	go func() {
		res, err := e.Run(ctx, q)
		assert.NoError(t, err)
		stale <- res
	}()
	<-st.entered

	_, err := e.Import(ctx, "r1", []types.Document{doc("d2", "Célula 3", 2, `{"asis": 4}`)})
	require.NoError(t, err)

	fresh := make(chan Result, 1)
	go func() {
		res, err := e.Run(ctx, q)
		assert.NoError(t, err)
		fresh <- res
	}()
	select {
	case res := <-fresh:
		assert.Equal(t, 2, res.EntryCount)
	case <-time.After(5 * time.Second):
		t.Fatal("run after import waited on the flight started before it")
	}
	close(st.release)
	<-stale
	assert.Equal(t, 2, st.count())
}

func TestEngine_RunUnknownReport(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.Run(context.Background(), Query{ReportID: "missing"})
	assert.ErrorIs(t, err, catalog.ErrReportNotFound)
}

func TestEngine_CachesUntilImport(t *testing.T) {
	pub := &recordingPublisher{}
	e, st := newEngine(t, WithPublisher(pub), WithClock(func() time.Time {
		return time.Date(2024, 3, 25, 8, 0, 0, 0, time.UTC)
	}))
	ctx := context.Background()
	q := Query{ReportID: "r1", Filters: filter.Active{"asis_min": "1"}}

	first, err := e.Run(ctx, q)
	require.NoError(t, err)
	_, err = e.Run(ctx, Query{ReportID: "r1", Filters: filter.Active{"asis_min": "1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, st.count(), "identical query served from cache")

	out, err := e.Import(ctx, "r1", []types.Document{{
		Values:  types.RawBag{"asis": json.RawMessage(`7`), "nope": json.RawMessage(`1`)},
		Context: types.Context{EntityName: "Célula 3"},
	}})
	require.NoError(t, err)
	require.Len(t, out.IDs, 1)
	assert.NotEmpty(t, out.IDs[0])
	assert.Contains(t, out.Issues, out.IDs[0])

	require.Len(t, pub.events, 1)
	assert.Equal(t, eventbus.DocumentsImported, pub.events[0].Type)
	assert.Equal(t, "r1", pub.events[0].ReportID)

	second, err := e.Run(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, st.count())
	assert.Equal(t, first.EntryCount+1, second.EntryCount)
}

func TestEngine_ImportStampsDefaults(t *testing.T) {
	stamp := time.Date(2024, 3, 25, 8, 0, 0, 0, time.UTC)
	e, _ := newEngine(t, WithClock(func() time.Time { return stamp }))
	ctx := context.Background()

	out, err := e.Import(ctx, "r1", []types.Document{{ID: "given", ReportID: "ignored"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"given"}, out.IDs)
	assert.Empty(t, out.Issues)

	_, entries, err := e.Entries(ctx, "r1", filter.Active{filter.KeyCreatedFrom: "2024-03-25"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "given", entries[0].ID)
	assert.Equal(t, types.ScopeCell, entries[0].Scope)
	assert.True(t, entries[0].CreatedAt.Equal(stamp))

	_, err = e.Import(ctx, "missing", nil)
	assert.ErrorIs(t, err, catalog.ErrReportNotFound)
}

func TestEngine_HandleEventInvalidates(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	_, err := e.Run(ctx, Query{ReportID: "r1"})
	require.NoError(t, err)

	require.NoError(t, e.HandleEvent(ctx, eventbus.Event{Type: eventbus.DocumentsImported, ReportID: "other"}))
	_, err = e.Run(ctx, Query{ReportID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 1, st.count())

	require.NoError(t, e.HandleEvent(ctx, eventbus.Event{Type: eventbus.DocumentsImported, ReportID: "r1"}))
	_, err = e.Run(ctx, Query{ReportID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 2, st.count())
}

func TestEngine_ParallelMatchesSequential(t *testing.T) {
	seq, _ := newEngine(t, WithCacheSize(0))
	par, _ := newEngine(t, WithCacheSize(0), WithParallelism(1, 3))
	ctx := context.Background()

	want, err := seq.Run(ctx, Query{ReportID: "r1"})
	require.NoError(t, err)
	got, err := par.Run(ctx, Query{ReportID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEngine_Compare(t *testing.T) {
	e, _ := newEngine(t)
	cmp, err := e.Compare(context.Background(),
		Query{ReportID: "r1", Filters: filter.Active{filter.KeyCreatedFrom: "2024-03-15"}},
		filter.Active{filter.KeyCreatedTo: "2024-03-14"},
	)
	require.NoError(t, err)
	require.Len(t, cmp.Rows, 2)

	row := cmp.Rows[0]
	assert.Equal(t, "Célula 2", row.Label)
	assert.Equal(t, 1, row.CurrentCount)
	assert.Equal(t, 1, row.PreviousCount)
	assert.Equal(t, -6.0, row.Values["asis"].Change)
}
