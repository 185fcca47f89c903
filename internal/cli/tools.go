package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sciencefeed/internal/app"
	"sciencefeed/internal/text"
)

var (
	chunkMaxSize int
	chunkOverlap int
	chunkJSON    bool

	extractJSON bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk [file]",
	Short: "Split text into overlapping chunks",
	Long: `Splits the file, or standard input when no file is given, into chunks on
word boundaries. Flags default to CHUNK_SIZE and CHUNK_OVERLAP.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChunk,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [url]",
	Short: "Follow a shortened link to its destination",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var extractCmd = &cobra.Command{
	Use:   "extract [url]",
	Short: "Extract title and snippet from a page",
	Long: `Fetches the page and reads its title and description. Blocked or not-found
pages fall back to the search provider when SEARCH_API_KEY is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	chunkCmd.Flags().IntVar(&chunkMaxSize, "max-chunk-size", 0, "maximum characters per chunk")
	chunkCmd.Flags().IntVar(&chunkOverlap, "overlap", -1, "characters shared between adjacent chunks")
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "output chunks as a JSON array")
	rootCmd.AddCommand(chunkCmd)

	rootCmd.AddCommand(resolveCmd)

	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "output metadata as JSON")
	rootCmd.AddCommand(extractCmd)
}

func runChunk(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	size, overlap := cfg.ChunkSize, cfg.ChunkOverlap
	if chunkMaxSize > 0 {
		size = chunkMaxSize
	}
	if chunkOverlap >= 0 {
		overlap = chunkOverlap
	}

	chunks := text.NewChunker(text.WithMaxChunkSize(size), text.WithOverlap(overlap)).Chunk(string(data))
	if chunkJSON {
		return printJSON(cmd, chunks)
	}
	for i, c := range chunks {
		if i > 0 {
			cmd.Println("---")
		}
		cmd.Println(c)
	}
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	r, err := app.LoadRules(cfg)
	if err != nil {
		return err
	}
	cmd.Println(app.NewResolver(cfg, r).Resolve(cmd.Context(), args[0]))
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	r, err := app.LoadRules(cfg)
	if err != nil {
		return err
	}
	s, err := app.NewSearcher(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	md, err := app.NewExtractor(cfg, r, s).Extract(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("extract failed: %w", err)
	}
	if extractJSON {
		return printJSON(cmd, md)
	}
	cmd.Printf("Title:   %s\n", md.Title)
	cmd.Printf("Snippet: %s\n", md.Snippet)
	cmd.Printf("Tier:    %s\n", md.Tier)
	return nil
}
