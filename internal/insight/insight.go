// Package insight derives human-readable highlights from aggregated groups.
package insight

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/matthewbaird/reportcore/internal/aggregate"
	"github.com/matthewbaird/reportcore/internal/fields"
)

// Kind selects the winning group of a configuration.
type Kind string

const (
	Max Kind = "max"
	Min Kind = "min"

	// Inactivity is the kind of the built-in zero-activity insight.
	Inactivity Kind = "inactivity"
)

// Severity classifies an insight for presentation.
type Severity string

const (
	Info    Severity = "info"
	Warning Severity = "warning"
)

// CountField is the pseudo-field ranking groups by entry count.
const CountField = "count"

// Icon types.
const (
	IconPrayer   = "prayer"
	IconFasting  = "fasting"
	IconBible    = "bible"
	IconOffering = "offering"
	IconTrophy   = "trophy"
	IconWarning  = "warning"
)

// Config is one configured insight.
type Config struct {
	FieldID string `json:"fieldId" yaml:"fieldId"`
	Type    Kind   `json:"type" yaml:"type"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Insight is a computed highlight.
type Insight struct {
	Type     Severity `json:"type"`
	Kind     Kind     `json:"kind"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	IconType string   `json:"iconType"`
}

// Compute evaluates every enabled config in order against groups, then appends the
// inactivity insight when any group has no entries. Groups are expected in display
// order; ties go to the earlier group.
func Compute(groups []aggregate.Group, numeric []fields.Definition, configs []Config) []Insight {
	byID := make(map[string]fields.Definition, len(numeric))
	for _, d := range numeric {
		byID[d.ID] = d
	}

	var out []Insight
	for _, c := range configs {
		if !c.Enabled || len(groups) == 0 {
			continue
		}
		if c.Type != Max && c.Type != Min {
			continue
		}

		var (
			value func(aggregate.Group) float64
			name  string
			key   string
		)
		if c.FieldID == CountField {
			value = func(g aggregate.Group) float64 { return float64(g.Count) }
			name, key = "Reportes", CountField
		} else {
			def, ok := byID[c.FieldID]
			if !ok {
				continue
			}
			id := def.ID
			value = func(g aggregate.Group) float64 { return g.Values[id] }
			name, key = def.DisplayLabel(), def.Key
		}

		ranked := slices.Clone(groups)
		slices.SortStableFunc(ranked, func(a, b aggregate.Group) int {
			va, vb := value(a), value(b)
			if c.Type == Min {
				va, vb = vb, va
			}
			switch {
			case va > vb:
				return -1
			case va < vb:
				return 1
			}
			return 0
		})
		top := ranked[0]
		v := value(top)
		if c.Type == Max && v == 0 {
			continue
		}
		out = append(out, build(c.Type, name, key, top.Label, v))
	}

	if in, ok := inactivity(groups); ok {
		out = append(out, in)
	}
	return out
}

func build(kind Kind, name, key, group string, v float64) Insight {
	in := Insight{Type: Warning, Kind: kind, IconType: Icon(kind, name, key)}
	if kind == Max {
		in.Type = Info
		in.Title = "Mayor " + strings.ToLower(name)
		in.Message = fmt.Sprintf("%s lidera en %s con %s", group, strings.ToLower(name), formatValue(v))
		return in
	}
	in.Title = "Menor " + strings.ToLower(name)
	in.Message = fmt.Sprintf("%s registra el valor más bajo en %s: %s", group, strings.ToLower(name), formatValue(v))
	return in
}

func inactivity(groups []aggregate.Group) (Insight, bool) {
	var idle []string
	for _, g := range groups {
		if g.Count == 0 {
			idle = append(idle, g.Label)
		}
	}
	if len(idle) == 0 {
		return Insight{}, false
	}
	msg := fmt.Sprintf("%d grupos sin reportes: %s", len(idle), strings.Join(idle, ", "))
	if len(idle) == 1 {
		msg = fmt.Sprintf("1 grupo sin reportes: %s", idle[0])
	}
	return Insight{
		Type:     Warning,
		Kind:     Inactivity,
		Title:    "Grupos sin actividad",
		Message:  msg,
		IconType: IconWarning,
	}, true
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
