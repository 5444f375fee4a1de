package engine

import (
	"log"
	"math"
	"time"

	"github.com/engramdb/engram/internal/model"
)

// DecayParams tunes the forgetting curve. Separate from the effective
// score: decay decides pruning, not ranking.
type DecayParams struct {
	HalfLifeDays       float64
	ImportanceExponent float64 // >1 makes low-importance memories decay harder
}

// DefaultDecayParams returns a 30-day base half-life with a neutral
// importance multiplier.
func DefaultDecayParams() DecayParams {
	return DecayParams{HalfLifeDays: 30, ImportanceExponent: 1.0}
}

// DecayScore computes importance^m × e^(−ageDays / halfLifeDays).
func DecayScore(importance, ageDays float64, p DecayParams) float64 {
	if p.HalfLifeDays <= 0 {
		p.HalfLifeDays = 30
	}
	m := p.ImportanceExponent
	if m <= 0 {
		m = 1
	}
	return math.Pow(importance, m) * math.Exp(-ageDays/p.HalfLifeDays)
}

// DecayedMemory pairs a memory with its computed decay score.
type DecayedMemory struct {
	Memory model.Memory `json:"memory"`
	Score  float64      `json:"score"`
}

// FindDecayed returns non-core memories whose decay score has fallen below
// the threshold. Core memories are never evaluated, regardless of age.
func (e *Engine) FindDecayed(threshold float64) ([]DecayedMemory, error) {
	memories, err := e.DB.ListNonCore()
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	var out []DecayedMemory
	for _, m := range memories {
		ageDays := float64(now-m.CreatedAt) / float64(24*time.Hour/time.Millisecond)
		score := DecayScore(m.Importance, ageDays, e.Decay)
		if score < threshold {
			out = append(out, DecayedMemory{Memory: m, Score: score})
		}
	}
	return out, nil
}

// Prune deletes memories below the decay threshold and returns the count
// removed, so callers can log a sweep summary without re-querying.
func (e *Engine) Prune(threshold float64) (int, error) {
	decayed, err := e.FindDecayed(threshold)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, d := range decayed {
		existed, err := e.DB.DeleteMemory(d.Memory.ID)
		if err != nil {
			log.Printf("prune: delete %s: %v", d.Memory.ID, err)
			continue
		}
		if existed {
			pruned++
		}
	}
	return pruned, nil
}
