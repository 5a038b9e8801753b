package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Context      string
	Problem      string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError renders a command failure with suggestions and help commands
//
// Example output:
//
//	✗ RESOURCE NOT FOUND: Boook
//
//	   Did you mean: Book?
//
//	   → See all resources: hyperapi debug:resources
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if opts.NoColor {
		red.DisableColor()
		yellow.DisableColor()
		cyan.DisableColor()
	}

	if opts.Context != "" {
		red.Fprintf(&b, "✗ %s: %s\n", strings.ToUpper(opts.Context), opts.Problem)
	} else {
		red.Fprintf(&b, "✗ %s\n", opts.Problem)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}
	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// NotFoundError reports an unknown name of kind ("resource", "filter")
// with the closest known names
func NotFoundError(kind, name string, known []string, listCommand string, noColor bool) string {
	opts := ErrorOptions{
		Context:     kind + " not found",
		Problem:     name,
		Suggestions: FindSimilar(name, known, nil),
		NoColor:     noColor,
	}
	if listCommand != "" {
		opts.HelpCommands = []string{fmt.Sprintf("See all %ss: %s", kind, listCommand)}
	}
	return FormatError(opts)
}
