// Package aggregate partitions report entries by a grouping dimension and folds
// them into per-group sums and counts with grand totals.
package aggregate

import (
	"time"

	"github.com/matthewbaird/reportcore/internal/fields"
	"github.com/matthewbaird/reportcore/internal/types"
)

// AbsentSuffix names the paired absence counter of an attendance field.
const AbsentSuffix = "_absent"

// AbsentKey returns the values key holding fieldID's absence count.
func AbsentKey(fieldID string) string { return fieldID + AbsentSuffix }

// Group is one partition of entries.
type Group struct {
	Key    string             `json:"key"`
	Label  string             `json:"label"`
	Count  int                `json:"count"`
	Values map[string]float64 `json:"values"`
}

// Totals sums every group.
type Totals struct {
	Count  int                `json:"count"`
	Values map[string]float64 `json:"values"`
}

// Result is the output of an aggregation pass.
type Result struct {
	Dimension Dimension `json:"dimension"`
	Groups    []Group   `json:"groups"`
	Totals    Totals    `json:"totals"`
}

// Bucket is a known key of a dimension's universe, used to pre-seed empty groups.
type Bucket struct {
	Key   string
	Label string
}

// Option configures an aggregation pass.
type Option func(*plan)

// WithLocation sets the location used for time buckets. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(p *plan) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithUniverse pre-seeds zero-count groups for every known bucket so inactive groups
// appear in the result. A bucket without a Key uses its normalized Label.
func WithUniverse(buckets ...Bucket) Option {
	return func(p *plan) {
		p.universe = append(p.universe, buckets...)
	}
}

// plan is the per-call field classification, computed once.
type plan struct {
	dim      Dimension
	loc      *time.Location
	numeric  []fields.Definition
	boolean  []fields.Definition
	universe []Bucket
}

func newPlan(set *fields.Set, dim Dimension, opts []Option) *plan {
	p := &plan{
		dim:     dim,
		loc:     time.Local,
		numeric: set.Numeric(),
		boolean: set.Boolean(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Aggregate groups entries by dim and sums every aggregable field.
func Aggregate(entries []types.Entry, set *fields.Set, dim Dimension, opts ...Option) Result {
	p := newPlan(set, dim, opts)
	acc := p.seed()
	acc.fold(p, entries)
	return p.finish(acc)
}

// accumulator is the per-key running aggregate.
type accumulator struct {
	key    string
	label  string
	count  int
	values map[string]float64
}

// partial is an insertion-ordered arena of accumulators.
type partial struct {
	order []*accumulator
	byKey map[string]*accumulator
}

func newPartial() *partial {
	return &partial{byKey: make(map[string]*accumulator)}
}

func (p *plan) seed() *partial {
	acc := newPartial()
	for _, b := range p.universe {
		key := b.Key
		if key == "" {
			key = NormalizeKey(b.Label)
		}
		acc.get(p, key, b.Label)
	}
	return acc
}

// get returns the accumulator for key, zero-filling every aggregable field on first sight.
func (a *partial) get(p *plan, key, label string) *accumulator {
	if g, ok := a.byKey[key]; ok {
		return g
	}
	g := &accumulator{key: key, label: label, values: make(map[string]float64, len(p.numeric)+len(p.boolean))}
	for _, d := range p.numeric {
		g.values[d.ID] = 0
		if d.Type.Spec().Agg == fields.AggAttendance {
			g.values[AbsentKey(d.ID)] = 0
		}
	}
	for _, d := range p.boolean {
		g.values[d.ID] = 0
	}
	a.byKey[key] = g
	a.order = append(a.order, g)
	return g
}

func (a *partial) fold(p *plan, entries []types.Entry) {
	for _, e := range entries {
		key, label := bucket(p.dim, e, p.loc)
		g := a.get(p, key, label)
		g.count++

		for _, d := range p.numeric {
			v := e.Values.Get(d.ID)
			switch d.Type.Spec().Agg {
			case fields.AggLength:
				g.values[d.ID] += float64(v.Len())
			case fields.AggAttendance:
				// An unanswered attendance field counts nobody, present or absent.
				if v.IsZero() {
					continue
				}
				selected := v.Len()
				g.values[d.ID] += float64(selected)
				if absent := e.RosterSize(d.ID) - selected; absent > 0 {
					g.values[AbsentKey(d.ID)] += float64(absent)
				}
			case fields.AggSum:
				g.values[d.ID] += v.Number()
			}
		}
		for _, d := range p.boolean {
			if e.Values.Get(d.ID).Bool() {
				g.values[d.ID]++
			}
		}
	}
}

// merge adds o into a. Keys first seen in o are appended in o's order, so merging
// contiguous partitions in input order reproduces a sequential fold.
func (a *partial) merge(p *plan, o *partial) {
	for _, og := range o.order {
		g := a.get(p, og.key, og.label)
		g.count += og.count
		for k, v := range og.values {
			g.values[k] += v
		}
	}
}

func (p *plan) finish(a *partial) Result {
	groups := make([]Group, len(a.order))
	totals := Totals{Values: make(map[string]float64)}
	for _, d := range p.numeric {
		totals.Values[d.ID] = 0
		if d.Type.Spec().Agg == fields.AggAttendance {
			totals.Values[AbsentKey(d.ID)] = 0
		}
	}
	for _, d := range p.boolean {
		totals.Values[d.ID] = 0
	}

	for i, g := range a.order {
		groups[i] = Group{Key: g.key, Label: g.label, Count: g.count, Values: g.values}
		totals.Count += g.count
		for k, v := range g.values {
			totals.Values[k] += v
		}
	}
	SortGroups(p.dim, groups)
	return Result{Dimension: p.dim, Groups: groups, Totals: totals}
}
