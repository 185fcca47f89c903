package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sciencefeed/internal/app"
	"sciencefeed/internal/retrieval"
)

var (
	searchTopK      int
	searchThreshold float64
	searchLimit     int
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search articles, documents and chunks",
	Long: `Ranks embedded articles, documents and chunks by cosine similarity to the
query. When nothing clears the threshold it falls back to a keyword match,
then to the most recent articles.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "semantic candidates to keep (0 uses settings)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity, exclusive (unset uses settings)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "fallback result count (0 uses settings)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	opts := &retrieval.SearchOptions{}
	if searchTopK > 0 {
		opts.TopK = &searchTopK
	}
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = &searchThreshold
	}
	if searchLimit > 0 {
		opts.Limit = &searchLimit
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		res, err := a.Retrieval.Search(ctx, args[0], opts)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if searchJSON {
			return printJSON(cmd, res)
		}
		return outputSearchTable(cmd, res)
	})
}

func outputSearchTable(cmd *cobra.Command, res *retrieval.Result) error {
	if len(res.Items) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Printf("Results (%s):\n\n", res.Tier)
	for i, item := range res.Items {
		cmd.Printf("  [%d] %s\n", i+1, item.Title)
		if item.URL != "" {
			cmd.Printf("      %s\n", item.URL)
		}
		if item.Text != "" {
			cmd.Printf("      %s\n", truncate(item.Text, 200))
		}
		cmd.Println()
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
