// Package extract runs the background relationship/tag extraction
// pipeline. It claims pending memories from the store, asks the language
// model for structured knowledge, and writes entities, relationships, and
// tags back through the store's operations, driving the per-memory
// extraction state machine.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/engramdb/engram/internal/llm"
	"github.com/engramdb/engram/internal/model"
	"github.com/engramdb/engram/internal/store"
)

// Worker processes pending extractions in batches.
type Worker struct {
	DB        *store.DB
	LLM       llm.Client
	BatchSize int
}

// NewWorker creates a Worker with the default batch size.
func NewWorker(db *store.DB, client llm.Client) *Worker {
	return &Worker{DB: db, LLM: client, BatchSize: 20}
}

// extraction is the JSON structure returned by the extraction LLM.
type extraction struct {
	Entities []struct {
		Name       string  `json:"name"`
		Type       string  `json:"type"`
		Role       string  `json:"role"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
	Relations []struct {
		From       string  `json:"from"`
		To         string  `json:"to"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"relations"`
	Tags []struct {
		Name       string  `json:"name"`
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	} `json:"tags"`
	Category string `json:"category"`
}

// RunOnce claims up to BatchSize pending memories and processes each.
// Returns how many reached a terminal state this pass.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	pending, err := w.DB.ListPendingExtractions(w.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	done := 0
	for _, m := range pending {
		status := w.processOne(ctx, m)
		increment := status == model.ExtractionFailed
		if err := w.DB.UpdateExtractionStatus(m.ID, status, increment); err != nil {
			log.Printf("extract: update status for %s: %v", m.ID, err)
			continue
		}
		if status.IsTerminal() {
			done++
		}
	}
	return done, nil
}

// RetryFailed flips failed extractions back to pending so the next pass
// picks them up. When to stop retrying is the scheduler's call, not ours.
func (w *Worker) RetryFailed() (int, error) {
	return w.DB.ResetFailedExtractions(w.BatchSize)
}

// processOne runs extraction for a single memory and returns the status
// it should transition to.
func (w *Worker) processOne(ctx context.Context, m model.Memory) model.ExtractionStatus {
	if w.LLM == nil {
		return model.ExtractionSkipped
	}

	resp, err := w.LLM.Complete(ctx, llm.ExtractionPrompt(m.Content, model.RelationshipTypes()))
	if err != nil {
		log.Printf("extract: llm for %s: %v", m.ID, err)
		return model.ExtractionFailed
	}

	ext, err := parseExtraction(resp.Content)
	if err != nil {
		log.Printf("extract: unparseable response for %s: %v", m.ID, err)
		return model.ExtractionSkipped
	}
	if len(ext.Entities) == 0 && len(ext.Tags) == 0 {
		return model.ExtractionSkipped
	}

	if err := w.persist(m, ext); err != nil {
		log.Printf("extract: persist for %s: %v", m.ID, err)
		return model.ExtractionFailed
	}
	return model.ExtractionComplete
}

// persist writes the extracted knowledge through the store operations.
func (w *Worker) persist(m model.Memory, ext *extraction) error {
	entityIDs := make(map[string]string)
	var mentions []store.Mention
	for _, e := range ext.Entities {
		id, err := w.DB.MergeEntity(store.MergeEntityParams{Name: e.Name, Type: e.Type})
		if err != nil {
			return fmt.Errorf("merge entity %q: %w", e.Name, err)
		}
		entityIDs[model.NormalizeName(e.Name)] = id
		mentions = append(mentions, store.Mention{EntityID: id, Role: e.Role, Confidence: e.Confidence})
	}
	if err := w.DB.CreateMentions(m.ID, mentions); err != nil {
		return fmt.Errorf("create mentions: %w", err)
	}

	for _, r := range ext.Relations {
		fromID, okFrom := entityIDs[model.NormalizeName(r.From)]
		toID, okTo := entityIDs[model.NormalizeName(r.To)]
		if !okFrom || !okTo {
			continue // relation references an entity the model never extracted
		}
		if err := w.DB.CreateEntityRelationship(fromID, r.Type, toID, r.Confidence); err != nil {
			return fmt.Errorf("create relationship: %w", err)
		}
	}

	for _, t := range ext.Tags {
		if err := w.DB.TagMemory(m.ID, t.Name, t.Category, t.Confidence); err != nil {
			return fmt.Errorf("tag memory: %w", err)
		}
	}

	if ext.Category == string(model.CategoryFact) {
		if err := w.DB.UpdateMemoryCategory(m.ID, model.CategoryFact); err != nil {
			return fmt.Errorf("update category: %w", err)
		}
	}
	return nil
}

// parseExtraction extracts the JSON object from the LLM response,
// tolerating markdown fences and surrounding prose.
func parseExtraction(content string) (*extraction, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var ext extraction
	if err := json.Unmarshal([]byte(content[start:end+1]), &ext); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	return &ext, nil
}
