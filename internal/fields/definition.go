package fields

import (
	"errors"
	"fmt"
	"sort"
)

// SectionBreak in a SECTION's Value starts an unlabeled group instead of a titled section.
const SectionBreak = "SECTION_BREAK"

var (
	// ErrDuplicateFieldID is returned when two definitions share an id.
	ErrDuplicateFieldID = errors.New("duplicate field id")
	// ErrInvalidDefinition is returned for definitions that cannot be registered.
	ErrInvalidDefinition = errors.New("invalid field definition")
)

// DuplicateIDError names the offending id.
type DuplicateIDError struct {
	ID string
}

func (e DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate field id %q", e.ID)
}

// Is allows errors.Is(err, ErrDuplicateFieldID).
func (e DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateFieldID
}

// Operator is a visibility rule comparison.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "notEquals"
	OpContains  Operator = "contains"
	OpGT        Operator = "gt"
	OpLT        Operator = "lt"
)

// Rule makes a field depend on another field's current value.
type Rule struct {
	FieldKey string   `json:"fieldKey"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Definition is one typed slot within a report. Immutable per report version.
type Definition struct {
	ID              string   `json:"id"`
	Key             string   `json:"key"`
	Label           string   `json:"label,omitempty"`
	Type            Type     `json:"type"`
	Required        bool     `json:"required"`
	Options         []string `json:"options,omitempty"`
	Order           int      `json:"order"`
	Value           string   `json:"value,omitempty"`
	VisibilityRules []Rule   `json:"visibilityRules,omitempty"`
}

// DisplayLabel returns the label, falling back to the key and then the id.
func (d Definition) DisplayLabel() string {
	switch {
	case d.Label != "":
		return d.Label
	case d.Key != "":
		return d.Key
	default:
		return d.ID
	}
}

// IsSection reports whether d is a layout marker rather than a data field.
func (d Definition) IsSection() bool { return d.Type == Section }

// IsSectionBreak reports whether d is an unlabeled section break.
func (d Definition) IsSectionBreak() bool {
	return d.Type == Section && d.Value == SectionBreak
}

// Set is an ordered, indexed list of a report's field definitions.
type Set struct {
	defs  []Definition
	byID  map[string]int
	byKey map[string]int
}

// NewSet sorts defs by Order and indexes them. Empty or duplicate ids and unknown
// types are rejected.
func NewSet(defs []Definition) (*Set, error) {
	sorted := make([]Definition, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})

	s := &Set{
		defs:  sorted,
		byID:  make(map[string]int, len(sorted)),
		byKey: make(map[string]int, len(sorted)),
	}
	for i, d := range sorted {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: field at order %d has no id", ErrInvalidDefinition, d.Order)
		}
		if !d.Type.Valid() {
			return nil, fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidDefinition, d.ID, d.Type)
		}
		if _, dup := s.byID[d.ID]; dup {
			return nil, DuplicateIDError{ID: d.ID}
		}
		s.byID[d.ID] = i
		// First definition wins for a repeated key.
		if _, seen := s.byKey[d.Key]; d.Key != "" && !seen {
			s.byKey[d.Key] = i
		}
	}
	return s, nil
}

// MustSet is NewSet that panics on error. Intended for fixtures and tests.
func MustSet(defs ...Definition) *Set {
	s, err := NewSet(defs)
	if err != nil {
		panic(err)
	}
	return s
}

// All returns the definitions in presentation order.
func (s *Set) All() []Definition {
	return s.defs
}

// Len returns the number of definitions.
func (s *Set) Len() int { return len(s.defs) }

// ByID returns the definition with the given id.
func (s *Set) ByID(id string) (Definition, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Definition{}, false
	}
	return s.defs[i], true
}

// ByKey returns the definition with the given key.
func (s *Set) ByKey(key string) (Definition, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return Definition{}, false
	}
	return s.defs[i], true
}

// Numeric returns the fields aggregated into running sums.
func (s *Set) Numeric() []Definition {
	return s.where(func(sp Spec) bool { return sp.Numeric() })
}

// Boolean returns the fields aggregated as true counts.
func (s *Set) Boolean() []Definition {
	return s.where(func(sp Spec) bool { return sp.Agg == AggTrueCount })
}

// Filterable returns the fields the filter engine accepts predicates for.
func (s *Set) Filterable() []Definition {
	return s.where(func(sp Spec) bool { return sp.Filter != FilterNone })
}

func (s *Set) where(keep func(Spec) bool) []Definition {
	var out []Definition
	for _, d := range s.defs {
		if keep(d.Type.Spec()) {
			out = append(out, d)
		}
	}
	return out
}
