// Package visibility decides whether a report field is currently relevant given the
// values of the fields it depends on, and groups visible fields into sections.
package visibility

import (
	"math"
	"strconv"
	"strings"

	"github.com/matthewbaird/reportcore/internal/fields"
)

// Evaluator resolves rule references once per report and evaluates rules against a
// value bag.
type Evaluator struct {
	set   *fields.Set
	keyID map[string]string
}

// NewEvaluator builds the key → id lookup for set.
func NewEvaluator(set *fields.Set) *Evaluator {
	idx := make(map[string]string, set.Len())
	for _, d := range set.All() {
		if d.Key == "" {
			continue
		}
		if _, seen := idx[d.Key]; !seen {
			idx[d.Key] = d.ID
		}
	}
	return &Evaluator{set: set, keyID: idx}
}

// IsFieldVisible is a one-shot IsVisible for callers without an Evaluator.
func IsFieldVisible(set *fields.Set, def fields.Definition, values fields.Bag) bool {
	return NewEvaluator(set).IsVisible(def, values)
}

// IsVisible reports whether every rule on def is satisfied. No rules means visible.
func (e *Evaluator) IsVisible(def fields.Definition, values fields.Bag) bool {
	for _, rule := range def.VisibilityRules {
		if !e.Satisfied(rule, values) {
			return false
		}
	}
	return true
}

// Satisfied evaluates a single rule. A rule whose key does not resolve is satisfied.
func (e *Evaluator) Satisfied(rule fields.Rule, values fields.Bag) bool {
	id, ok := e.keyID[rule.FieldKey]
	if !ok {
		return true
	}
	actual := values.Get(id).String()

	switch rule.Operator {
	case fields.OpEquals:
		return actual == rule.Value
	case fields.OpNotEquals:
		return actual != rule.Value
	case fields.OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(rule.Value))
	case fields.OpGT:
		return toNumber(actual) > toNumber(rule.Value)
	case fields.OpLT:
		return toNumber(actual) < toNumber(rule.Value)
	default:
		return true
	}
}

// toNumber coerces text the way a loose numeric comparison does: blank is 0 and
// unparsable is NaN, which fails every comparison.
func toNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}
