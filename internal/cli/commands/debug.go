package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/hyperapi/internal/app"
	"github.com/conduit-lang/hyperapi/internal/cli/ui"
	"github.com/conduit-lang/hyperapi/internal/metadata"
)

// loadMetadata builds the index without connecting to the database
func loadMetadata(ctx context.Context, def app.Definition, opts *globalOptions) (*app.App, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	return app.LoadMetadata(ctx, app.Options{Definition: def, Config: cfg})
}

// NewDebugResourcesCommand creates the debug:resources command
func NewDebugResourcesCommand(def app.Definition, opts *globalOptions) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "debug:resources [class]",
		Short: "List resources and their operations",
		Long: `List every resource with its operations, methods and URI templates.

Given a class, show the resource declarations and the metadata of each
property instead.`,
		Example: `  # List all operations
  hyperapi debug:resources

  # Show the properties of Book
  hyperapi debug:resources Book

  # Output in JSON format for tooling
  hyperapi debug:resources --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadMetadata(cmd.Context(), def, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			if len(args) == 1 {
				return describeResource(cmd.Context(), w, a, args[0], outputFormat, opts.noColor)
			}
			if outputFormat == "json" {
				return writeJSON(w, operationSummaries(a.Index))
			}
			listOperations(w, a.Index, opts.noColor)
			return nil
		},
	}

	cmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: json or table")
	return cmd
}

type operationSummary struct {
	Class       string   `json:"class"`
	ShortName   string   `json:"short_name"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Method      string   `json:"method"`
	UriTemplate string   `json:"uri_template"`
	Formats     []string `json:"formats"`
	Filters     []string `json:"filters,omitempty"`
}

func operationSummaries(idx *metadata.Index) []operationSummary {
	refs := idx.Operations()
	out := make([]operationSummary, 0, len(refs))
	for _, ref := range refs {
		op := ref.Operation
		method := op.Method
		if method == "" {
			method = op.Kind.Method()
		}
		out = append(out, operationSummary{
			Class:       ref.Class,
			ShortName:   op.ShortName,
			Name:        op.Name,
			Kind:        op.Kind.String(),
			Method:      method,
			UriTemplate: op.UriTemplate,
			Formats:     op.Formats.Names(),
			Filters:     op.Filters,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

func listOperations(w io.Writer, idx *metadata.Index, noColor bool) {
	summaries := operationSummaries(idx)
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No resources found.")
		return
	}

	bold := color.New(color.Bold)
	if noColor {
		bold.DisableColor()
	}
	bold.Fprintf(w, "RESOURCES (%d total, %d operations)\n\n", len(idx.Collections()), len(summaries))

	table := ui.NewTable(w, []string{"Class", "Short name", "Method", "URI template", "Operation", "Formats"}, &ui.TableOptions{NoColor: noColor})
	table.StyleColumn(2, ui.MethodColor)
	for _, s := range summaries {
		table.AddRow(s.Class, s.ShortName, s.Method, s.UriTemplate, s.Name, strings.Join(s.Formats, ","))
	}
	table.Render()
}

type propertySummary struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Identifier bool   `json:"identifier"`
	Readable   bool   `json:"readable"`
	Writable   bool   `json:"writable"`
	Required   bool   `json:"required"`
}

func describeResource(ctx context.Context, w io.Writer, a *app.App, class, outputFormat string, noColor bool) error {
	if !a.Index.IsResource(class) {
		classes := make([]string, 0)
		for _, coll := range a.Index.Collections() {
			classes = append(classes, coll.Class)
		}
		fmt.Fprint(w, ui.NotFoundError("resource", class, classes, "hyperapi debug:resources", noColor))
		return fmt.Errorf("resource class %q not found", class)
	}

	names, err := a.Names.Create(ctx, class, metadata.PropertyOptions{})
	if err != nil {
		return err
	}
	properties := make([]propertySummary, 0, len(names))
	for _, name := range names {
		p, err := a.Properties.Create(ctx, class, name, metadata.PropertyOptions{})
		if err != nil {
			return err
		}
		properties = append(properties, propertySummary{
			Name:       p.Name,
			Type:       typeString(p.Types),
			Identifier: p.IsIdentifier(),
			Readable:   p.IsReadable(),
			Writable:   p.IsWritable(),
			Required:   p.Required != nil && *p.Required,
		})
	}

	coll, err := a.Index.Collection(class)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return writeJSON(w, map[string]interface{}{
			"class":      class,
			"resources":  coll.Resources,
			"properties": properties,
		})
	}

	for _, res := range coll.Resources {
		ui.Header(w, res.ShortName, noColor)
		kv := ui.NewKeyValueTable(w, noColor)
		kv.AddRow("Class", class)
		if res.Description != "" {
			kv.AddRow("Description", res.Description)
		}
		kv.AddRow("Formats", strings.Join(res.Formats.Names(), ", "))
		kv.AddRow("Pagination", pagination(res.Pagination))
		kv.AddRow("Operations", strconv.Itoa(len(res.Operations)))
		kv.Render()
		fmt.Fprintln(w)
	}

	table := ui.NewTable(w, []string{"Property", "Type", "Identifier", "Readable", "Writable", "Required"}, &ui.TableOptions{NoColor: noColor})
	for _, p := range properties {
		table.AddRow(p.Name, p.Type, yesNo(p.Identifier), yesNo(p.Readable), yesNo(p.Writable), yesNo(p.Required))
	}
	table.Render()
	return nil
}

func typeString(types []metadata.Type) string {
	parts := make([]string, 0, len(types))
	for _, t := range types {
		s := t.Builtin
		if t.Class != "" {
			s = t.Class
		}
		if t.Collection {
			s += "[]"
		}
		if t.Nullable {
			s = "?" + s
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "|")
}

func pagination(p metadata.Pagination) string {
	if !p.IsEnabled() {
		return "disabled"
	}
	s := fmt.Sprintf("%d per page", p.ItemsPerPage)
	if p.MaximumItemsPerPage > 0 {
		s += fmt.Sprintf(" (max %d)", p.MaximumItemsPerPage)
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

// NewDebugFiltersCommand creates the debug:filters command
func NewDebugFiltersCommand(def app.Definition, opts *globalOptions) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "debug:filters [filter-id]",
		Short: "List the query parameters of collection filters",
		Long: `List the query parameters each collection operation accepts through
its filters, with the property, type and strategy behind them.`,
		Example: `  # List every filter parameter
  hyperapi debug:filters

  # Only the parameters of one filter
  hyperapi debug:filters book.search`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadMetadata(cmd.Context(), def, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			only := ""
			if len(args) == 1 {
				only = args[0]
				if !a.Filters.Has(only) {
					fmt.Fprint(w, ui.NotFoundError("filter", only, a.Filters.IDs(), "hyperapi debug:filters", opts.noColor))
					return fmt.Errorf("filter %q not found", only)
				}
			}

			rows, err := filterParameters(a, only)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return writeJSON(w, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(w, "No filters found.")
				return nil
			}
			table := ui.NewTable(w, []string{"Operation", "Filter", "Parameter", "Property", "Type", "Strategy", "Required"}, &ui.TableOptions{NoColor: opts.noColor})
			for _, r := range rows {
				table.AddRow(r.Operation, r.Filter, r.Parameter, r.Property, r.Type, r.Strategy, yesNo(r.Required))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: json or table")
	return cmd
}

type filterParameter struct {
	Operation string `json:"operation"`
	Filter    string `json:"filter"`
	Parameter string `json:"parameter"`
	Property  string `json:"property"`
	Type      string `json:"type"`
	Strategy  string `json:"strategy,omitempty"`
	Required  bool   `json:"required"`
}

// filterParameters describes the filters of every collection operation,
// restricted to the filter only when set
func filterParameters(a *app.App, only string) ([]filterParameter, error) {
	var out []filterParameter
	for _, ref := range a.Index.Operations() {
		op := ref.Operation
		if !op.IsCollection() {
			continue
		}
		for _, id := range op.Filters {
			if only != "" && id != only {
				continue
			}
			f, ok := a.Filters.Get(id)
			if !ok {
				return nil, fmt.Errorf("operation %s references unknown filter %q", op.Name, id)
			}
			descriptions := f.Description(ref.Class)
			params := make([]string, 0, len(descriptions))
			for p := range descriptions {
				params = append(params, p)
			}
			sort.Strings(params)
			for _, p := range params {
				d := descriptions[p]
				out = append(out, filterParameter{
					Operation: op.Name,
					Filter:    id,
					Parameter: p,
					Property:  d.Property,
					Type:      d.Type,
					Strategy:  d.Strategy,
					Required:  d.Required,
				})
			}
		}
	}
	return out, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
