package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/hyperapi/internal/app"
	"github.com/conduit-lang/hyperapi/internal/logging"
	"github.com/conduit-lang/hyperapi/internal/orm/database"
	"github.com/conduit-lang/hyperapi/internal/orm/migrate"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
	"github.com/conduit-lang/hyperapi/internal/orm/transaction"
)

// NewDBCreateCommand creates the db:create command
func NewDBCreateCommand(def app.Definition, opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "db:create",
		Short: "Create the tables of the registered resources",
		Long: `Create the tables, foreign keys and indexes backing the registered
resource schemas in the configured database.

Tables that already exist are left untouched. All statements run in a
single transaction.`,
		Example: `  # Create the tables
  hyperapi db:create

  # Print the DDL without connecting
  hyperapi db:create --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			dialect, err := migrate.DialectFor(cfg.Database.Driver)
			if err != nil {
				return err
			}
			schemas := def.Schemas
			if schemas == nil {
				schemas = schema.NewRegistry()
			}
			gen := migrate.NewGenerator(schemas, dialect)
			w := cmd.OutOrStdout()

			if dryRun {
				stmts, err := gen.Statements()
				if err != nil {
					return err
				}
				for _, s := range stmts {
					fmt.Fprintln(w, s.SQL)
				}
				return nil
			}

			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := database.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			runner := migrate.NewRunner(transaction.NewManager(db, transaction.WithLogger(logger)), gen, logger)
			stmts, err := runner.Create(cmd.Context())
			if err != nil {
				return err
			}

			tables := make(map[string]bool)
			for _, s := range stmts {
				tables[s.Table] = true
			}
			color.New(color.FgGreen, color.Bold).Fprintf(w, "✓ %d tables ready", len(tables))
			fmt.Fprintf(w, " (%s, %d statements)\n", dialect, len(stmts))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the statements instead of executing them")
	return cmd
}
