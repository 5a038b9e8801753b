package commands

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/hyperapi/internal/app"
	"github.com/conduit-lang/hyperapi/internal/cli/config"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// globalOptions holds the persistent flags shared by every command
type globalOptions struct {
	configPath string
	noColor    bool
}

func (o *globalOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

// NewRootCommand creates the root command of a program serving def
func NewRootCommand(def app.Definition) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "hyperapi",
		Short: "Hypermedia API server",
		Long: color.CyanString(`hyperapi - metadata driven hypermedia APIs

Serves the registered resource classes as JSON-LD/Hydra, HAL, JSON:API and
plain JSON, with CRUD operations, filters and pagination.

Configuration is read from hyperapi.yaml in the working directory (or
--config) and HYPERAPI_* environment variables.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewServeCommand(def, opts))
	rootCmd.AddCommand(NewDebugResourcesCommand(def, opts))
	rootCmd.AddCommand(NewDebugFiltersCommand(def, opts))
	rootCmd.AddCommand(NewDBCreateCommand(def, opts))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			w := cmd.OutOrStdout()
			titleColor := color.New(color.FgCyan, color.Bold)

			titleColor.Fprint(w, "Version: ")
			fmt.Fprintln(w, Version)
			titleColor.Fprint(w, "Git commit: ")
			fmt.Fprintln(w, GitCommit)
			titleColor.Fprint(w, "Build date: ")
			fmt.Fprintln(w, BuildDate)
			titleColor.Fprint(w, "Go version: ")
			fmt.Fprintln(w, goVer)
		},
	}
}

// Execute runs the root command
func Execute(def app.Definition) error {
	rootCmd := NewRootCommand(def)
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
