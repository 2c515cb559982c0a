package aggregate

// Delta is one field's value in two periods.
type Delta struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	Change   float64 `json:"change"`
	// Percent is nil when the previous value is 0.
	Percent *float64 `json:"percent"`
}

// Row pairs a group across two periods. Groups present in only one period report
// zero for the other.
type Row struct {
	Key           string           `json:"key"`
	Label         string           `json:"label"`
	CurrentCount  int              `json:"current_count"`
	PreviousCount int              `json:"previous_count"`
	Values        map[string]Delta `json:"values"`
}

// Comparison is a period-over-period view of two results on the same dimension.
type Comparison struct {
	Dimension Dimension `json:"dimension"`
	Rows      []Row     `json:"rows"`
	Totals    Row       `json:"totals"`
}

// Compare joins current and previous by group key.
func Compare(current, previous Result) Comparison {
	prev := make(map[string]Group, len(previous.Groups))
	for _, g := range previous.Groups {
		prev[g.Key] = g
	}

	rows := make([]Row, 0, len(current.Groups))
	seen := make(map[string]bool, len(current.Groups))
	for _, g := range current.Groups {
		seen[g.Key] = true
		p := prev[g.Key]
		rows = append(rows, row(g.Key, g.Label, g.Count, p.Count, g.Values, p.Values))
	}
	for _, p := range previous.Groups {
		if seen[p.Key] {
			continue
		}
		rows = append(rows, row(p.Key, p.Label, 0, p.Count, nil, p.Values))
	}

	dim := current.Dimension
	if dim == "" {
		dim = previous.Dimension
	}
	sortBy(dim, rows, func(r Row) (string, string) { return r.Key, r.Label })

	return Comparison{
		Dimension: dim,
		Rows:      rows,
		Totals:    row("", "Total", current.Totals.Count, previous.Totals.Count, current.Totals.Values, previous.Totals.Values),
	}
}

func row(key, label string, curCount, prevCount int, cur, prev map[string]float64) Row {
	r := Row{
		Key:           key,
		Label:         label,
		CurrentCount:  curCount,
		PreviousCount: prevCount,
		Values:        make(map[string]Delta, max(len(cur), len(prev))),
	}
	for k := range cur {
		r.Values[k] = delta(cur[k], prev[k])
	}
	for k := range prev {
		if _, ok := r.Values[k]; !ok {
			r.Values[k] = delta(cur[k], prev[k])
		}
	}
	return r
}

func delta(cur, prev float64) Delta {
	d := Delta{Current: cur, Previous: prev, Change: cur - prev}
	if prev != 0 {
		pct := (cur - prev) / prev * 100
		d.Percent = &pct
	}
	return d
}
