package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sciencefeed/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the queue consumers",
	Long: `Connects to Postgres, applies migrations, and runs the HTTP API and the
ingest.url and document.index consumers until interrupted. ENABLE_API and
ENABLE_WORKER select which halves run.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(ctx, cfg, deps, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}
