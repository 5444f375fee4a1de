package store

import (
	"fmt"
	"strings"
)

// LexicalHit is a relevance-ranked full-text match.
type LexicalHit struct {
	ID      string
	Content string
	Score   float64
}

// escapeFTSQuery quotes every token so FTS5 reserved syntax (AND, OR,
// NEAR, *, ^, quotes, parens) is treated as literal text. Embedded double
// quotes are doubled per the FTS5 string rules.
func escapeFTSQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// SearchLexical runs relevance-ranked full-text search over memory
// content. Raw bm25 rank is returned negated so larger is better; callers
// normalize against the maximum.
func (db *DB) SearchLexical(query string, limit int) ([]LexicalHit, error) {
	if limit <= 0 {
		limit = 10
	}
	escaped := escapeFTSQuery(query)
	if escaped == "" {
		return nil, nil
	}

	rows, err := db.Query(`
		SELECT m.id, m.content, -bm25(memories_fts) AS score
		FROM memories_fts f
		JOIN memories m ON m.rowid = f.rowid
		WHERE memories_fts MATCH ?
		ORDER BY score DESC
		LIMIT ?
	`, escaped, limit)
	if err != nil {
		return nil, classify("lexical search", err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.ID, &h.Content, &h.Score); err != nil {
			return nil, fmt.Errorf("scan lexical hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// EntitySeed is a traversal starting point matched from query text.
type EntitySeed struct {
	EntityID string
	Name     string
}

// FindEntitySeeds returns entities whose normalized name or alias matches
// any of the given tokens.
func (db *DB) FindEntitySeeds(tokens []string) ([]EntitySeed, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	var conds []string
	var args []any
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		conds = append(conds, "normalized_name = ? OR aliases LIKE ?")
		args = append(args, tok, `%"`+tok+`"%`)
	}
	if len(conds) == 0 {
		return nil, nil
	}

	rows, err := db.Query(fmt.Sprintf(`
		SELECT id, name FROM entities WHERE %s ORDER BY normalized_name
	`, strings.Join(conds, " OR ")), args...)
	if err != nil {
		return nil, classify("find entity seeds", err)
	}
	defer rows.Close()

	var seeds []EntitySeed
	for rows.Next() {
		var s EntitySeed
		if err := rows.Scan(&s.EntityID, &s.Name); err != nil {
			return nil, fmt.Errorf("scan entity seed: %w", err)
		}
		seeds = append(seeds, s)
	}
	return seeds, rows.Err()
}

// Neighbor is an entity reachable along one relationship edge.
type Neighbor struct {
	EntityID   string
	Confidence float64
}

// EntityNeighbors returns entities connected to entityID along either
// direction of a typed relationship edge.
func (db *DB) EntityNeighbors(entityID string) ([]Neighbor, error) {
	rows, err := db.Query(`
		SELECT to_id, confidence FROM entity_relations WHERE from_id = ?
		UNION ALL
		SELECT from_id, confidence FROM entity_relations WHERE to_id = ?
	`, entityID, entityID)
	if err != nil {
		return nil, classify("entity neighbors", err)
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.EntityID, &n.Confidence); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MentioningMemory is a memory attached to an entity via a MENTIONS edge.
type MentioningMemory struct {
	MemoryID   string
	Content    string
	Confidence float64
}

// MemoriesMentioning returns memories carrying a MENTIONS edge to the
// given entity, with the edge confidence.
func (db *DB) MemoriesMentioning(entityID string) ([]MentioningMemory, error) {
	rows, err := db.Query(`
		SELECT m.id, m.content, mn.confidence
		FROM mentions mn
		JOIN memories m ON m.id = mn.memory_id
		WHERE mn.entity_id = ?
		ORDER BY m.id
	`, entityID)
	if err != nil {
		return nil, classify("memories mentioning", err)
	}
	defer rows.Close()

	var out []MentioningMemory
	for rows.Next() {
		var mm MentioningMemory
		if err := rows.Scan(&mm.MemoryID, &mm.Content, &mm.Confidence); err != nil {
			return nil, fmt.Errorf("scan mentioning memory: %w", err)
		}
		out = append(out, mm)
	}
	return out, rows.Err()
}
