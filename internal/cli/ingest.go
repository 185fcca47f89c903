package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"sciencefeed/internal/app"
	"sciencefeed/internal/ingest"
)

var (
	ingestQuery string
	ingestN     int
	ingestAfter string

	backfillAfter int64
	backfillLimit int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [url...]",
	Short: "Ingest URLs or search results",
	Long: `Ingests the given URLs as one batch, or with --query the results of a
search provider query. The batch result is printed as JSON. When the batch
stops early its continuation can be passed back with --after.`,
	RunE: runIngest,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fill missing summaries, embeddings and images",
	Args:  cobra.NoArgs,
	RunE:  runBackfill,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestQuery, "query", "q", "", "search provider query to ingest results for")
	ingestCmd.Flags().IntVarP(&ingestN, "results", "n", 10, "number of search results to ingest")
	ingestCmd.Flags().StringVar(&ingestAfter, "after", "", "resume after this candidate URL")
	rootCmd.AddCommand(ingestCmd)

	backfillCmd.Flags().Int64Var(&backfillAfter, "after", 0, "resume after this article id")
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "maximum articles to visit (0 for all)")
	rootCmd.AddCommand(backfillCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestQuery == "" && len(args) == 0 {
		return errors.New("either urls or --query is required")
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		opts := ingest.BatchOptions{After: ingestAfter}

		var res *ingest.BatchResult
		var err error
		if ingestQuery != "" {
			res, err = a.Ingest.IngestQuery(ctx, ingestQuery, ingestN, opts)
		} else {
			candidates := make([]ingest.Candidate, 0, len(args))
			for _, u := range args {
				candidates = append(candidates, ingest.Candidate{URL: u})
			}
			res, err = a.Ingest.IngestBatch(ctx, candidates, opts)
		}

		if res != nil {
			if perr := printJSON(cmd, res); perr != nil {
				return perr
			}
		}
		if err != nil {
			return fmt.Errorf("ingest stopped: %w", err)
		}
		return nil
	})
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		res, err := a.Ingest.Backfill(ctx, backfillAfter, backfillLimit)
		if res != nil {
			if perr := printJSON(cmd, res); perr != nil {
				return perr
			}
		}
		if err != nil {
			return fmt.Errorf("backfill stopped: %w", err)
		}
		return nil
	})
}

// withApp runs fn against an App built on the database alone. Nothing is
// published from the command line.
func withApp(parent context.Context, fn func(context.Context, *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}

	deps, err := app.BootstrapStore(parent, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(parent, cfg, deps, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(parent, a)
}
