package visibility

import "github.com/matthewbaird/reportcore/internal/fields"

// Section is a presentation group of visible data fields.
type Section struct {
	ID     string              `json:"id,omitempty"`
	Title  string              `json:"title,omitempty"`
	Break  bool                `json:"break,omitempty"` // started by a SECTION_BREAK marker
	Fields []fields.Definition `json:"fields"`
}

// Layout walks the fields in order and groups the visible ones by SECTION markers.
// A hidden section hides every field up to the next marker. Fields before the first
// marker land in an untitled leading section. Empty sections are dropped.
func (e *Evaluator) Layout(values fields.Bag) []Section {
	var out []Section
	current := Section{}
	hidden := false

	flush := func() {
		if len(current.Fields) > 0 {
			out = append(out, current)
		}
	}

	for _, d := range e.set.All() {
		if d.IsSection() {
			flush()
			current = Section{ID: d.ID, Break: d.IsSectionBreak()}
			if !current.Break {
				current.Title = d.DisplayLabel()
			}
			hidden = !e.IsVisible(d, values)
			continue
		}
		if hidden || !e.IsVisible(d, values) {
			continue
		}
		current.Fields = append(current.Fields, d)
	}
	flush()
	return out
}

// VisibleIDs returns the visibility of every data field keyed by id.
func (e *Evaluator) VisibleIDs(values fields.Bag) map[string]bool {
	out := make(map[string]bool, e.set.Len())
	for _, d := range e.set.All() {
		if d.IsSection() {
			continue
		}
		out[d.ID] = false
	}
	for _, s := range e.Layout(values) {
		for _, d := range s.Fields {
			out[d.ID] = true
		}
	}
	return out
}
