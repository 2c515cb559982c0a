package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/reportcore/internal/aggregate"
	"github.com/matthewbaird/reportcore/internal/analytics"
	"github.com/matthewbaird/reportcore/internal/fields"
	"github.com/matthewbaird/reportcore/internal/types"
	"github.com/matthewbaird/reportcore/internal/visibility"
)

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <report>...",
		Short: "Validate report templates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				r, err := loadReport(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s, %d fields, %d insights)\n",
					path, r.ID, r.Fields.Len(), len(r.Insights))
			}
			return nil
		},
	}
}

type visibleOutput struct {
	Visible  []string             `json:"visible"`
	Hidden   []string             `json:"hidden"`
	Sections []visibility.Section `json:"sections"`
}

func newVisibleCmd(opts *options) *cobra.Command {
	var valuesPath string
	cmd := &cobra.Command{
		Use:   "visible",
		Short: "Show which fields a draft value bag makes visible",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := loadReport(opts.report)
			if err != nil {
				return err
			}
			var raw types.RawBag
			if valuesPath != "" {
				data, err := os.ReadFile(valuesPath)
				if err != nil {
					return fmt.Errorf("reading values: %w", err)
				}
				if err := json.Unmarshal(data, &raw); err != nil {
					return fmt.Errorf("parsing values: %w", err)
				}
			}
			bag, _ := fields.DecodeBag(report.Fields, raw)

			ev := visibility.NewEvaluator(report.Fields)
			ids := ev.VisibleIDs(bag)
			out := visibleOutput{Visible: []string{}, Hidden: []string{}, Sections: ev.Layout(bag)}
			for _, d := range report.Fields.All() {
				visible, ok := ids[d.ID]
				switch {
				case !ok:
				case visible:
					out.Visible = append(out.Visible, d.ID)
				default:
					out.Hidden = append(out.Hidden, d.ID)
				}
			}
			return opts.write(cmd.OutOrStdout(), out)
		},
	}
	opts.dataFlags(cmd, false)
	cmd.Flags().StringVar(&valuesPath, "values", "", "JSON value bag (object or fieldId/value pairs)")
	return cmd
}

type filterOutput struct {
	Total   int                 `json:"total"`
	Entries []types.Entry       `json:"entries,omitempty"`
	IDs     []string            `json:"ids,omitempty"`
	Issues  map[string][]string `json:"issues,omitempty"`
}

func newFilterCmd(opts *options) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "List the entries matching the filters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			active, err := opts.activeFilters()
			if err != nil {
				return err
			}
			engine, report, imp, err := opts.loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			_, entries, err := engine.Entries(cmd.Context(), report.ID, active)
			if err != nil {
				return err
			}

			out := filterOutput{Total: len(entries), Issues: imp.Issues}
			if full {
				out.Entries = entries
			} else {
				for _, e := range entries {
					out.IDs = append(out.IDs, e.ID)
				}
			}
			return opts.write(cmd.OutOrStdout(), out)
		},
	}
	opts.dataFlags(cmd, true)
	cmd.Flags().BoolVar(&full, "full", false, "Print whole entries instead of ids")
	return cmd
}

func newAggregateCmd(opts *options) *cobra.Command {
	var (
		groupBy      string
		insightsPath string
		universe     []string
		previous     []string
	)
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Group the matching entries and compute insights",
		Long: `Group the matching entries by a dimension and compute insights.

Dimensions: ` + dimensionList() + `

Insights come from the --insights YAML file when given, otherwise from the report.
With --previous the output compares the filtered entries against a second filter set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			active, err := opts.activeFilters()
			if err != nil {
				return err
			}
			engine, report, _, err := opts.loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			q := analytics.Query{
				ReportID: report.ID,
				Filters:  active,
				GroupBy:  aggregate.Dimension(groupBy),
				Universe: universe,
			}
			if insightsPath != "" {
				if q.Insights, err = loadInsights(insightsPath); err != nil {
					return err
				}
			}

			if cmd.Flags().Changed("previous") {
				prev, err := parseFilters(previous)
				if err != nil {
					return err
				}
				cmp, err := engine.Compare(cmd.Context(), q, prev)
				if err != nil {
					return err
				}
				return opts.write(cmd.OutOrStdout(), cmp)
			}

			res, err := engine.Run(cmd.Context(), q)
			if err != nil {
				return err
			}
			return opts.write(cmd.OutOrStdout(), res)
		},
	}
	opts.dataFlags(cmd, true)
	cmd.Flags().StringVar(&groupBy, "group-by", string(aggregate.ByEntity), "Grouping dimension")
	cmd.Flags().StringVar(&insightsPath, "insights", "", "YAML file of insight configs")
	cmd.Flags().StringSliceVar(&universe, "universe", nil, "Known group labels, so idle groups are listed")
	cmd.Flags().StringArrayVar(&previous, "previous", nil, "Comparison period filter as key=value (repeatable)")
	return cmd
}

func dimensionList() string {
	dims := aggregate.Dimensions()
	names := make([]string, len(dims))
	for i, d := range dims {
		names[i] = string(d)
	}
	return strings.Join(names, ", ")
}
