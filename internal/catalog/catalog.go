// Package catalog loads report templates and serves their field definitions.
//
// Templates are CUE or JSON documents validated against the embedded #Report schema
// before their fields are indexed.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/matthewbaird/reportcore/internal/fields"
	"github.com/matthewbaird/reportcore/internal/insight"
)

//go:embed schema.cue
var schemaSource string

var (
	// ErrReportNotFound is returned when no report has the requested id.
	ErrReportNotFound = errors.New("report not found")
	// ErrInvalidReport is returned when a template fails validation.
	ErrInvalidReport = errors.New("invalid report")
)

// Report is a validated report template.
type Report struct {
	ID          string
	Name        string
	Description string
	Fields      *fields.Set
	Insights    []insight.Config
}

// MarshalJSON renders the report with its fields in presentation order.
func (r Report) MarshalJSON() ([]byte, error) {
	var defs []fields.Definition
	if r.Fields != nil {
		defs = r.Fields.All()
	}
	return json.Marshal(struct {
		ID          string              `json:"id"`
		Name        string              `json:"name"`
		Description string              `json:"description,omitempty"`
		Fields      []fields.Definition `json:"fields"`
		Insights    []insight.Config    `json:"insights"`
	}{r.ID, r.Name, r.Description, defs, r.Insights})
}

// Provider resolves reports by id.
type Provider interface {
	Report(ctx context.Context, id string) (Report, error)
}

type reportDoc struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Fields      []fieldDoc       `json:"fields"`
	Insights    []insight.Config `json:"insights"`
}

type fieldDoc struct {
	ID              string    `json:"id"`
	Key             string    `json:"key"`
	Label           string    `json:"label"`
	Type            string    `json:"type"`
	Required        bool      `json:"required"`
	Options         []string  `json:"options"`
	Order           int       `json:"order"`
	Value           string    `json:"value"`
	VisibilityRules []ruleDoc `json:"visibilityRules"`
}

type ruleDoc struct {
	FieldKey string      `json:"fieldKey"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Parse validates a CUE or JSON template and builds its Report. filename is used in
// error positions only.
func Parse(filename string, data []byte) (Report, error) {
	// cue.Context is not safe for concurrent use.
	cctx := cuecontext.New()
	schema := cctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Report{}, fmt.Errorf("compiling report schema: %w", err)
	}

	v := cctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Report{}, fmt.Errorf("%w: %s", ErrInvalidReport, cueerrors.Details(err, nil))
	}
	u := schema.LookupPath(cue.ParsePath("#Report")).Unify(v)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return Report{}, fmt.Errorf("%w: %s", ErrInvalidReport, cueerrors.Details(err, nil))
	}

	var doc reportDoc
	if err := u.Decode(&doc); err != nil {
		return Report{}, fmt.Errorf("%w: decoding: %v", ErrInvalidReport, err)
	}
	return doc.build()
}

func (d reportDoc) build() (Report, error) {
	defs := make([]fields.Definition, len(d.Fields))
	for i, f := range d.Fields {
		rules := make([]fields.Rule, len(f.VisibilityRules))
		for j, r := range f.VisibilityRules {
			rules[j] = fields.Rule{
				FieldKey: r.FieldKey,
				Operator: fields.Operator(r.Operator),
				Value:    ruleValue(r.Value),
			}
		}
		defs[i] = fields.Definition{
			ID:              f.ID,
			Key:             f.Key,
			Label:           f.Label,
			Type:            fields.Type(f.Type),
			Required:        f.Required,
			Options:         f.Options,
			Order:           f.Order,
			Value:           f.Value,
			VisibilityRules: rules,
		}
	}
	set, err := fields.NewSet(defs)
	if err != nil {
		return Report{}, fmt.Errorf("%w: report %q: %w", ErrInvalidReport, d.ID, err)
	}
	return Report{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Fields:      set,
		Insights:    d.Insights,
	}, nil
}

func ruleValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// Memory is an in-process Provider.
type Memory struct {
	mu      sync.RWMutex
	reports map[string]Report
}

// NewMemory returns a Memory holding reports.
func NewMemory(reports ...Report) *Memory {
	m := &Memory{reports: make(map[string]Report, len(reports))}
	for _, r := range reports {
		m.reports[r.ID] = r
	}
	return m
}

// Register adds or replaces a report.
func (m *Memory) Register(r Report) error {
	if r.ID == "" || r.Fields == nil {
		return fmt.Errorf("%w: report needs an id and fields", ErrInvalidReport)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.ID] = r
	return nil
}

// Report implements Provider.
func (m *Memory) Report(_ context.Context, id string) (Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrReportNotFound, id)
	}
	return r, nil
}

// IDs returns the registered report ids, sorted.
func (m *Memory) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.reports))
	for id := range m.reports {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LoadFile parses and registers a single template.
func (m *Memory) LoadFile(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("reading %s: %w", path, err)
	}
	r, err := Parse(filepath.Base(path), data)
	if err != nil {
		return Report{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, m.Register(r)
}

// LoadDir registers every .cue and .json template in dir and returns how many were
// loaded. The first invalid template aborts the load.
func (m *Memory) LoadDir(dir string) (int, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading catalog dir: %w", err)
	}
	n := 0
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".cue", ".json":
		default:
			continue
		}
		if _, err := m.LoadFile(filepath.Join(dir, e.Name())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
