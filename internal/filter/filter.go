// Package filter narrows report entries to those matching an active filter set.
package filter

import (
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/reportcore/internal/fields"
	"github.com/matthewbaird/reportcore/internal/types"
)

// Fixed filter keys. Field filters are keyed by field id, with range suffixes.
const (
	KeyEntity      = "entidad"
	KeyCreatedFrom = "createdAt_from"
	KeyCreatedTo   = "createdAt_to"

	SuffixMin  = "_min"
	SuffixMax  = "_max"
	SuffixFrom = "_from"
	SuffixTo   = "_to"
)

// Active is the filter set keyed by filter key. Blank values impose no constraint.
type Active map[string]string

// Option configures a Filter.
type Option func(*Filter)

// WithLocation sets the calendar used to compare dates. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(f *Filter) {
		if loc != nil {
			f.loc = loc
		}
	}
}

// Filter is a compiled active filter set. It holds no per-call state and is safe for
// concurrent use.
type Filter struct {
	loc        *time.Location
	entity     string
	created    dayRange
	predicates []predicate
}

type predicate struct {
	fieldID string
	match   func(fields.Value) bool
}

// dayRange is an inclusive range of local calendar days; zero bounds are open.
type dayRange struct {
	from, to time.Time
}

func (r dayRange) active() bool { return !r.from.IsZero() || !r.to.IsZero() }

func (r dayRange) contains(day time.Time) bool {
	if !r.from.IsZero() && day.Before(r.from) {
		return false
	}
	if !r.to.IsZero() && day.After(r.to) {
		return false
	}
	return true
}

// Compile parses every present filter once against the report's fields.
func Compile(set *fields.Set, active Active, opts ...Option) *Filter {
	f := &Filter{loc: time.Local}
	for _, o := range opts {
		o(f)
	}

	f.entity = strings.ToLower(strings.TrimSpace(active[KeyEntity]))
	f.created = f.parseRange(active[KeyCreatedFrom], active[KeyCreatedTo])

	for _, def := range set.Filterable() {
		if p, ok := f.compileField(def, active); ok {
			f.predicates = append(f.predicates, p)
		}
	}
	return f
}

// Apply returns the entries satisfying every present filter, in input order.
func Apply(entries []types.Entry, set *fields.Set, active Active, opts ...Option) []types.Entry {
	return Compile(set, active, opts...).Apply(entries)
}

// Apply filters entries.
func (f *Filter) Apply(entries []types.Entry) []types.Entry {
	out := make([]types.Entry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Empty reports whether the filter imposes no constraint.
func (f *Filter) Empty() bool {
	return f.entity == "" && !f.created.active() && len(f.predicates) == 0
}

// Match reports whether a single entry satisfies the filter.
func (f *Filter) Match(e types.Entry) bool {
	if f.entity != "" && !strings.Contains(strings.ToLower(e.Context.EntityName), f.entity) {
		return false
	}
	if f.created.active() && !f.created.contains(fields.Day(e.CreatedAt, false, f.loc)) {
		return false
	}
	for _, p := range f.predicates {
		if !p.match(e.Values.Get(p.fieldID)) {
			return false
		}
	}
	return true
}

func (f *Filter) compileField(def fields.Definition, active Active) (predicate, bool) {
	id := def.ID
	switch def.Type.Spec().Filter {
	case fields.FilterSubstring:
		needle := strings.ToLower(active[id])
		if strings.TrimSpace(needle) == "" {
			return predicate{}, false
		}
		return predicate{id, func(v fields.Value) bool {
			return strings.Contains(strings.ToLower(v.String()), needle)
		}}, true

	case fields.FilterExact:
		want := active[id]
		if want == "" {
			return predicate{}, false
		}
		return predicate{id, func(v fields.Value) bool {
			return !v.IsZero() && v.String() == want
		}}, true

	case fields.FilterBool:
		var want bool
		switch active[id] {
		case "true":
			want = true
		case "false":
			want = false
		default:
			return predicate{}, false
		}
		return predicate{id, func(v fields.Value) bool {
			return !v.IsZero() && v.Bool() == want
		}}, true

	case fields.FilterRange:
		minRaw, maxRaw := strings.TrimSpace(active[id+SuffixMin]), strings.TrimSpace(active[id+SuffixMax])
		if minRaw == "" && maxRaw == "" {
			return predicate{}, false
		}
		lo, hasLo := parseBound(minRaw)
		hi, hasHi := parseBound(maxRaw)
		if !hasLo && !hasHi {
			return predicate{}, false
		}
		return predicate{id, func(v fields.Value) bool {
			// Bounds only apply to entries that carry a value.
			if v.IsZero() {
				return true
			}
			n := v.Number()
			if hasLo && n < lo {
				return false
			}
			if hasHi && n > hi {
				return false
			}
			return true
		}}, true

	case fields.FilterDateRange:
		r := f.parseRange(active[id+SuffixFrom], active[id+SuffixTo])
		if !r.active() {
			return predicate{}, false
		}
		loc := f.loc
		return predicate{id, func(v fields.Value) bool {
			if v.IsZero() {
				return false
			}
			return r.contains(v.LocalDay(loc))
		}}, true
	}
	return predicate{}, false
}

// parseRange reads from/to bounds as local calendar days. Unparsable bounds are open.
func (f *Filter) parseRange(from, to string) dayRange {
	return dayRange{from: f.parseDay(from), to: f.parseDay(to)}
}

func (f *Filter) parseDay(s string) time.Time {
	if strings.TrimSpace(s) == "" {
		return time.Time{}
	}
	t, ok := fields.ParseDate(s, f.loc)
	if !ok {
		return time.Time{}
	}
	// Bounds with an explicit zone are moved to the local calendar; plain dates were
	// parsed in f.loc already.
	return fields.Day(t, false, f.loc)
}

func parseBound(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
