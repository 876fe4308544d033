package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/headline-goat/janus/internal/server"
	"github.com/headline-goat/janus/internal/store"
)

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	var (
		flags engineFlags
		port  int
		token string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the janus HTTP API.

The server provides:
  - POST /api/analyze               evaluate JSON aggregates
  - POST /api/analyze/csv           evaluate an uploaded CSV
  - /api/experiments/<name>/...     record observations and evaluate them
  - GET  /health and GET /metrics

Engine flags set the defaults every request starts from. With --token,
writes need "Authorization: Bearer <token>".

Example:
  janus serve --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults, err := flags.config(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withStore(func(s *store.SQLiteStore) error {
				srv := server.New(s, port, defaults, logger)
				srv.RequireToken(token)

				out := cmd.OutOrStdout()
				fmt.Fprintln(out)
				fmt.Fprintf(out, "janus running on http://localhost:%d\n", port)
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Press Ctrl+C to stop")

				return srv.Start(ctx)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&port, "port", "p", getEnvIntOrDefault("JANUS_PORT", 8080), "port to listen on")
	cmd.Flags().StringVar(&token, "token", getEnvOrDefault("JANUS_API_TOKEN", ""), "bearer token required for writes")
	return cmd
}
