package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matthewbaird/reportcore/internal/analytics"
	"github.com/matthewbaird/reportcore/internal/catalog"
	"github.com/matthewbaird/reportcore/internal/filter"
	"github.com/matthewbaird/reportcore/internal/insight"
	"github.com/matthewbaird/reportcore/internal/logging"
	"github.com/matthewbaird/reportcore/internal/store"
	"github.com/matthewbaird/reportcore/internal/types"
)

// options are the flags shared by every subcommand.
type options struct {
	format   string
	logLevel string
	tz       string

	report  string
	entries string
	filters []string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "reportctl",
		Short: "Run report analytics over local files",
		Long: `reportctl validates report templates and runs the filter, aggregation and
insight pipeline over a JSON file of entries.

Report templates are CUE or JSON documents. Entries files hold a JSON array of
documents as accepted by the import endpoint.

Examples:
  reportctl validate reports/celulas.cue
  reportctl visible --report reports/celulas.cue --values draft.json
  reportctl filter --report r.cue --entries e.json --filter createdAt_from=2024-03-01
  reportctl aggregate --report r.cue --entries e.json --group-by mes --insights insights.yaml`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.InitWriter(cmd.ErrOrStderr(), opts.logLevel, "console")
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.format, "format", "yaml", "Output format: yaml | json")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")
	pf.StringVar(&opts.tz, "tz", "Local", "Time zone of the reporting calendar")

	root.AddCommand(
		newValidateCmd(opts),
		newVisibleCmd(opts),
		newFilterCmd(opts),
		newAggregateCmd(opts),
	)
	return root
}

// dataFlags registers the report/entries/filter flags on cmd.
func (o *options) dataFlags(cmd *cobra.Command, withEntries bool) {
	cmd.Flags().StringVar(&o.report, "report", "", "Report template file (.cue or .json)")
	_ = cmd.MarkFlagRequired("report")
	if !withEntries {
		return
	}
	cmd.Flags().StringVar(&o.entries, "entries", "", "JSON file with an array of entries")
	cmd.Flags().StringArrayVar(&o.filters, "filter", nil, "Filter as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("entries")
}

func (o *options) location() (*time.Location, error) {
	if o.tz == "" || o.tz == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(o.tz)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", o.tz, err)
	}
	return loc, nil
}

func (o *options) activeFilters() (filter.Active, error) {
	return parseFilters(o.filters)
}

// parseFilters reads key=value pairs.
func parseFilters(pairs []string) (filter.Active, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	active := make(filter.Active, len(pairs))
	for _, f := range pairs {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --filter %q, want key=value", f)
		}
		active[k] = v
	}
	return active, nil
}

func loadReport(path string) (catalog.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog.Report{}, fmt.Errorf("reading report: %w", err)
	}
	return catalog.Parse(path, data)
}

// loadEngine imports the entries file into an in-memory engine.
func (o *options) loadEngine(ctx context.Context) (*analytics.Engine, catalog.Report, analytics.ImportResult, error) {
	report, err := loadReport(o.report)
	if err != nil {
		return nil, catalog.Report{}, analytics.ImportResult{}, err
	}
	loc, err := o.location()
	if err != nil {
		return nil, catalog.Report{}, analytics.ImportResult{}, err
	}

	data, err := os.ReadFile(o.entries)
	if err != nil {
		return nil, catalog.Report{}, analytics.ImportResult{}, fmt.Errorf("reading entries: %w", err)
	}
	var docs []types.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, catalog.Report{}, analytics.ImportResult{}, fmt.Errorf("parsing entries: %w", err)
	}

	engine := analytics.New(catalog.NewMemory(report), store.NewMemoryStore(),
		analytics.WithLocation(loc),
		analytics.WithCacheSize(0),
	)
	imp := analytics.ImportResult{}
	if len(docs) > 0 {
		if imp, err = engine.Import(ctx, report.ID, docs); err != nil {
			return nil, catalog.Report{}, analytics.ImportResult{}, err
		}
	}
	return engine, report, imp, nil
}

// insightFile is the YAML form of insight configs; enabled defaults to true.
type insightFile []struct {
	FieldID string       `yaml:"fieldId"`
	Type    insight.Kind `yaml:"type"`
	Enabled *bool        `yaml:"enabled"`
}

func loadInsights(path string) ([]insight.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading insights: %w", err)
	}
	var file insightFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing insights: %w", err)
	}
	out := make([]insight.Config, len(file))
	for i, c := range file {
		out[i] = insight.Config{FieldID: c.FieldID, Type: c.Type, Enabled: c.Enabled == nil || *c.Enabled}
	}
	return out, nil
}

// write renders v in the selected format. YAML output goes through JSON so the
// wire field names and their order are kept.
func (o *options) write(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	switch o.format {
	case "json":
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err := buf.WriteTo(w)
		return err
	case "yaml":
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return err
		}
		blockStyle(&doc)
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q", o.format)
}

// blockStyle clears the flow and quoting styles a JSON document parses with.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
