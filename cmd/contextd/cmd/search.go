package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/databao-dev/contextd/internal/search"
	"github.com/databao-dev/contextd/internal/store"
)

// newSearchCmd creates the search command: runs one retrieve() call
// against the embedded store (spec §4.5).
func newSearchCmd() *cobra.Command {
	var (
		offline    bool
		limit      int
		ragMode    string
		searchMode string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the project's indexed chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], offline, limit, ragMode, searchMode, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use the static embedding provider instead of Ollama")
	cmd.Flags().IntVar(&limit, "limit", search.DefaultLimit, "Maximum number of results")
	cmd.Flags().StringVar(&ragMode, "rag-mode", string(search.RAGModeRaw), "RAW_QUERY | QUERY_WITH_INSTRUCTION | REWRITE_QUERY")
	cmd.Flags().StringVar(&searchMode, "search-mode", string(search.SearchModeHybrid), "KEYWORD_SEARCH | VECTOR_SEARCH | HYBRID_SEARCH")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, offline bool, limit int, ragMode, searchMode string, jsonOutput bool) error {
	cfg, st, err := openStore(projectDir)
	if err != nil {
		return err
	}
	defer st.Close()

	provider := resolveProvider(cfg, offline)
	engine := search.NewEngine(st, store.NewShardRegistry(st), provider, nil, nil)

	results, err := engine.Retrieve(cmd.Context(), search.Query{
		Text:       query,
		Limit:      limit,
		RAGMode:    search.RAGMode(ragMode),
		SearchMode: search.SearchMode(searchMode),
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. [%s] %s\n", i+1, r.DatasourceSource, r.DisplayText)
	}
	return nil
}
