package engine

import (
	"strings"

	"github.com/engramdb/engram/internal/model"
)

// conflictPairCap bounds conflict discovery cost per invocation.
const conflictPairCap = 50

// ConflictSide is one memory in a contradictory pair.
type ConflictSide struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Importance float64 `json:"importance"`
	CreatedAt  int64   `json:"created_at"`
}

// ConflictPair is a candidate contradiction for downstream resolution.
type ConflictPair struct {
	A      ConflictSide `json:"a"`
	B      ConflictSide `json:"b"`
	Entity string       `json:"entity"`
}

// negationTokens mark a statement as negated for the polarity heuristic.
var negationTokens = map[string]bool{
	"not": true, "no": true, "never": true, "none": true,
	"cannot": true, "can't": true, "doesn't": true, "don't": true,
	"isn't": true, "wasn't": true, "won't": true, "stopped": true,
	"former": true, "anymore": true,
}

// FindConflicts returns pairs of non-core memories that mention a shared
// entity and look semantically contradictory: topically similar (token
// Jaccard ≥ 0.3) with exactly one side negated. Upstream classifiers can
// replace this heuristic; the cap bounds cost either way.
func (e *Engine) FindConflicts() ([]ConflictPair, error) {
	rows, err := e.DB.Query(`
		SELECT a.memory_id, b.memory_id, en.name
		FROM mentions a
		JOIN mentions b ON a.entity_id = b.entity_id AND a.memory_id < b.memory_id
		JOIN entities en ON en.id = a.entity_id
		ORDER BY a.memory_id, b.memory_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type candidate struct {
		aID, bID, entity string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.aID, &c.bID, &c.entity); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pairs []ConflictPair
	seen := make(map[string]bool)
	for _, c := range candidates {
		if len(pairs) >= conflictPairCap {
			break
		}
		key := c.aID + "|" + c.bID
		if seen[key] {
			continue
		}
		seen[key] = true

		a, err := e.DB.GetMemory(c.aID)
		if err != nil {
			return nil, err
		}
		b, err := e.DB.GetMemory(c.bID)
		if err != nil {
			return nil, err
		}
		if a == nil || b == nil {
			continue
		}
		if a.Category == model.CategoryCore || b.Category == model.CategoryCore {
			continue
		}
		if !contradictory(a.Content, b.Content) {
			continue
		}

		pairs = append(pairs, ConflictPair{
			A:      ConflictSide{ID: a.ID, Content: a.Content, Importance: a.Importance, CreatedAt: a.CreatedAt},
			B:      ConflictSide{ID: b.ID, Content: b.Content, Importance: b.Importance, CreatedAt: b.CreatedAt},
			Entity: c.entity,
		})
	}
	return pairs, nil
}

// contradictory is the built-in polarity heuristic: same topic, opposite
// negation polarity.
func contradictory(a, b string) bool {
	tokA, negA := tokenSet(a)
	tokB, negB := tokenSet(b)
	if negA == negB {
		return false
	}
	return jaccard(tokA, tokB) >= 0.3
}

func tokenSet(text string) (map[string]bool, bool) {
	tokens := make(map[string]bool)
	negated := false
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,!?;:\"'()")
		if f == "" {
			continue
		}
		if negationTokens[f] {
			negated = true
			continue
		}
		tokens[f] = true
	}
	return tokens, negated
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if b[t] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
