package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram/internal/config"
	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/extract"
	"github.com/engramdb/engram/internal/llm"
	"github.com/engramdb/engram/internal/server"
	"github.com/engramdb/engram/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eng := engine.New(db)
	eng.Decay.HalfLifeDays = cfg.Decay.HalfLifeDays

	var worker *extract.Worker
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: LLM not configured (%v), extraction disabled\n", err)
	} else {
		worker = extract.NewWorker(db, llmClient)
		fmt.Fprintf(os.Stderr, "  llm: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	}

	configureEmbedder(eng, db, cfg)

	eng.StartSweepTimer(cfg.Decay.PruneThreshold, cfg.Dedup.Threshold)
	defer eng.Stop()

	if worker != nil {
		go runExtractionLoop(worker)
	}

	srv := server.New(db, eng, worker, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "engram serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

// configureEmbedder prefers a live Ollama embedding model and falls back
// to the corpus-local TF-IDF embedder.
func configureEmbedder(eng *engine.Engine, db *store.DB, cfg config.Config) {
	ollamaURL := cfg.LLM.OllamaURL
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	embeddingModel := cfg.LLM.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}

	if engine.ProbeOllama(ollamaURL, embeddingModel) {
		eng.SetEmbedder(engine.NewOllamaEmbedder(ollamaURL, embeddingModel, 768))
		fmt.Fprintf(os.Stderr, "  embedder: ollama (%s)\n", embeddingModel)
		return
	}

	emb, err := engine.NewTFIDFEmbedder(db, 512)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: tfidf embedder init failed: %v\n", err)
		return
	}
	eng.SetEmbedder(emb)
	fmt.Fprintf(os.Stderr, "  embedder: tfidf (fallback)\n")
}

// runExtractionLoop drains pending extractions every 30 seconds.
func runExtractionLoop(worker *extract.Worker) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if _, err := worker.RunOnce(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "extraction pass: %v\n", err)
		}
		cancel()
	}
}
