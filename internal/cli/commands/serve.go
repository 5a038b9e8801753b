package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/app"
	"github.com/conduit-lang/hyperapi/internal/logging"
	"github.com/conduit-lang/hyperapi/internal/web/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(def app.Definition, opts *globalOptions) *cobra.Command {
	var (
		host  string
		port  int
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the API over HTTP",
		Long: `Serve the API over HTTP, or HTTPS when server.tls names a certificate
and key.

Builds the resource metadata, connects to the configured database and
serves every operation until SIGINT or SIGTERM. In-flight requests are
given server.shutdown_timeout to complete.`,
		Example: `  # Serve with hyperapi.yaml from the working directory
  hyperapi serve

  # Override the listen address
  hyperapi serve --host 0.0.0.0 --port 9000

  # Expose server error messages in error documents
  hyperapi serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("debug") {
				cfg.Server.Debug = debug
			}

			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := app.New(cmd.Context(), app.Options{Definition: def, Config: cfg, Logger: logger})
			if err != nil {
				return err
			}

			serverCfg := server.DefaultConfig(a.Handler())
			serverCfg.Address = cfg.Server.Address()
			serverCfg.ReadTimeout = cfg.Server.ReadTimeout
			serverCfg.WriteTimeout = cfg.Server.WriteTimeout
			if cfg.Server.TLS.Enabled() {
				tlsCfg := cfg.Server.TLS
				serverCfg.TLS = &tlsCfg
			}
			srv, err := server.New(serverCfg)
			if err != nil {
				_ = a.Close()
				return err
			}

			shutdown := server.NewGracefulShutdown(srv, &server.ShutdownConfig{
				Timeout: cfg.Server.ShutdownTimeout,
				Logger:  logger,
			})
			shutdown.RegisterHook("app", func(context.Context) error {
				return a.Close()
			})

			w := cmd.OutOrStdout()
			color.New(color.FgGreen, color.Bold).Fprintf(w, "✓ %s\n", cfg.API.Title)
			fmt.Fprintf(w, "  %d resources, %d operations\n", len(a.Index.Collections()), len(a.Index.Operations()))
			color.New(color.FgCyan).Fprintf(w, "  Listening on %s://%s\n", srv.Scheme(), cfg.Server.Address())
			fmt.Fprintln(w, "  Press Ctrl+C to stop")

			if err := shutdown.Run(cmd.Context()); err != nil {
				logger.Error("server stopped", zap.Error(err))
				_ = shutdown.Shutdown()
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to listen on (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Expose server error messages (overrides server.debug)")

	return cmd
}
