package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/model"
	"github.com/engramdb/engram/internal/store"
)

func init() {
	putCmd.Flags().Float64Var(&putImportance, "importance", 0.5, "Importance in [0,1]")
	putCmd.Flags().StringVar(&putCategory, "category", "", "Category (fact, other, core)")
	putCmd.Flags().BoolVar(&putForce, "force", false, "Bypass the attention gate")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum number of results")
	searchCmd.Flags().StringVarP(&searchStrategy, "strategy", "s", "", "Single strategy: vector, lexical, or graph")

	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "Report what would be pruned without deleting")
	sweepCmd.Flags().Float64Var(&sweepPrune, "prune-threshold", 0.05, "Decay score below which memories are pruned")
	sweepCmd.Flags().Float64Var(&sweepDedup, "dedup-threshold", 0.92, "Cosine similarity above which memories merge")
}

// openDB is a helper that opens the database for CLI commands.
func openDB() (*store.DB, error) {
	dbPath := os.Getenv("ENGRAM_DB")
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(dbPath)
}

// --- put command ---

var (
	putImportance float64
	putCategory   string
	putForce      bool
)

var putCmd = &cobra.Command{
	Use:   "put [content]",
	Short: "Store a memory",
	Long:  "Store a memory through the attention gate. Use --force to store content the gate would reject.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPut,
}

func runPut(cmd *cobra.Command, args []string) error {
	content := strings.Join(args, " ")

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	eng := engine.New(db)
	if !putForce && !engine.PassesGate(content, engine.RoleUser, eng.Gate) {
		fmt.Println("Not stored: content rejected by attention gate (use --force to override).")
		return nil
	}

	id, err := db.StoreMemory(store.StoreMemoryParams{
		Content:    content,
		Importance: putImportance,
		Category:   model.Category(putCategory),
		Source:     "cli",
	})
	if err != nil {
		return fmt.Errorf("store memory: %w", err)
	}
	fmt.Printf("Stored %s\n", id)
	return nil
}

// --- search command ---

var (
	searchLimit    int
	searchStrategy string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories",
	Long:  "Search memories with fused vector, lexical, and graph retrieval. Use --strategy to run one strategy alone.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	eng := engine.New(db)

	// Ollama detection is server-side only; the CLI embeds with TF-IDF.
	if emb, tfidfErr := engine.NewTFIDFEmbedder(db, 512); tfidfErr == nil {
		eng.SetEmbedder(emb)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := engine.FusionOpts{Limit: searchLimit, MinVectorSim: 0.3}

	var hits []engine.Hit
	switch searchStrategy {
	case "vector":
		hits = eng.SearchVector(ctx, query, opts)
	case "lexical":
		hits, err = eng.SearchLexical(query, opts)
	case "graph":
		hits, err = eng.SearchGraph(query, opts)
	case "":
		hits, err = eng.Search(ctx, query, opts)
	default:
		return fmt.Errorf("unknown strategy %q", searchStrategy)
	}
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	for i, h := range hits {
		content := h.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		fmt.Printf("%d. [%.3f] %s\n   %s\n\n", i+1, h.Score, h.ID, content)
	}
	return nil
}

// --- sweep command ---

var (
	sweepDryRun bool
	sweepPrune  float64
	sweepDedup  float64
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a maintenance sweep",
	Long:  "Prune decayed memories, merge near-duplicates, and flag contradictory pairs.",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	eng := engine.New(db)

	if sweepDryRun {
		decayed, err := eng.FindDecayed(sweepPrune)
		if err != nil {
			return fmt.Errorf("find decayed: %w", err)
		}
		clusters, err := eng.FindDuplicateClusters(sweepDedup)
		if err != nil {
			return fmt.Errorf("find duplicates: %w", err)
		}
		fmt.Printf("Would prune %d memories and merge %d duplicate clusters.\n", len(decayed), len(clusters))
		return nil
	}

	summary, err := eng.RunMaintenance(sweepPrune, sweepDedup)
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	fmt.Printf("Pruned %d, merged %d clusters (%d removed), flagged %d conflicts.\n",
		summary.Pruned, summary.ClustersMerged, summary.Deduplicated, summary.Conflicts)
	return nil
}

// --- extract command ---

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Show extraction pipeline status",
	RunE:  runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	counts, err := db.CountByExtractionStatus()
	if err != nil {
		return fmt.Errorf("extraction counts: %w", err)
	}

	fmt.Println("## Extraction")
	for _, status := range []model.ExtractionStatus{
		model.ExtractionPending,
		model.ExtractionComplete,
		model.ExtractionFailed,
		model.ExtractionSkipped,
	} {
		fmt.Printf("  %-10s %d\n", status, counts[status])
	}
	return nil
}

// --- stats command ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	stats, err := db.GetStats()
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	fmt.Println("## Engram")
	fmt.Printf("  db: %s\n", db.Path)
	fmt.Printf("  memories:  %d\n", stats.Memories)
	fmt.Printf("  entities:  %d\n", stats.Entities)
	fmt.Printf("  relations: %d\n", stats.Relations)
	fmt.Printf("  tags:      %d\n", stats.Tags)
	if len(stats.ByCategory) > 0 {
		fmt.Println("  by category:")
		for _, c := range []model.Category{model.CategoryCore, model.CategoryFact, model.CategoryOther} {
			if n, ok := stats.ByCategory[string(c)]; ok {
				fmt.Printf("    %-6s %d\n", c, n)
			}
		}
	}
	return nil
}
