// Package engine implements the algorithmic core of engram: the attention
// gate, scoring and decay, retrieval fusion, deduplication, and conflict
// discovery. All store access goes through internal/store; the engine
// holds no state of its own beyond tuning parameters.
package engine

import (
	"log"
	"time"

	"github.com/engramdb/engram/internal/store"
)

// Engine orchestrates maintenance sweeps and retrieval over the store.
type Engine struct {
	DB       *store.DB
	Embedder Embedder
	Gate     GatePolicy
	Scoring  ScoreParams
	Decay    DecayParams
	stopCh   chan struct{}
}

// New creates an Engine with default tuning.
func New(db *store.DB) *Engine {
	return &Engine{
		DB:      db,
		Gate:    DefaultGatePolicy(),
		Scoring: DefaultScoreParams(),
		Decay:   DefaultDecayParams(),
		stopCh:  make(chan struct{}),
	}
}

// SetEmbedder configures the embedding provider.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
}

// SweepSummary reports exactly what a maintenance pass changed, so
// callers can log it without re-querying the store.
type SweepSummary struct {
	Pruned         int `json:"pruned"`
	ClustersMerged int `json:"clusters_merged"`
	Deduplicated   int `json:"deduplicated"`
	Conflicts      int `json:"conflicts"`
}

// RunMaintenance performs one full sweep: decay prune, dedup merge, and
// conflict discovery.
func (e *Engine) RunMaintenance(pruneThreshold, dedupThreshold float64) (SweepSummary, error) {
	var s SweepSummary

	pruned, err := e.Prune(pruneThreshold)
	if err != nil {
		return s, err
	}
	s.Pruned = pruned

	merged, deleted, err := e.RunDedupSweep(dedupThreshold)
	if err != nil {
		return s, err
	}
	s.ClustersMerged = merged
	s.Deduplicated = deleted

	conflicts, err := e.FindConflicts()
	if err != nil {
		return s, err
	}
	s.Conflicts = len(conflicts)
	return s, nil
}

// StartSweepTimer runs maintenance at startup and then daily. Cadence
// beyond that belongs to an external scheduler.
func (e *Engine) StartSweepTimer(pruneThreshold, dedupThreshold float64) {
	run := func() {
		if s, err := e.RunMaintenance(pruneThreshold, dedupThreshold); err != nil {
			log.Printf("maintenance sweep error: %v", err)
		} else if s.Pruned > 0 || s.Deduplicated > 0 || s.Conflicts > 0 {
			log.Printf("maintenance: pruned %d, merged %d clusters (%d removed), %d conflicts flagged",
				s.Pruned, s.ClustersMerged, s.Deduplicated, s.Conflicts)
		}
	}
	run()

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	close(e.stopCh)
}
