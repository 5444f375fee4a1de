package store

import "fmt"

// Stats summarizes store contents for sweep reports and the stats command.
type Stats struct {
	Memories   int            `json:"memories"`
	Entities   int            `json:"entities"`
	Tags       int            `json:"tags"`
	Relations  int            `json:"relations"`
	ByCategory map[string]int `json:"by_category"`
	ByStatus   map[string]int `json:"by_status"`
}

// GetStats returns counts across the store.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{
		ByCategory: make(map[string]int),
		ByStatus:   make(map[string]int),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM memories", &s.Memories},
		{"SELECT COUNT(*) FROM entities", &s.Entities},
		{"SELECT COUNT(*) FROM tags", &s.Tags},
		{"SELECT COUNT(*) FROM entity_relations", &s.Relations},
	}
	for _, c := range counts {
		if err := db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, classify("stats", err)
		}
	}

	rows, err := db.Query("SELECT category, COUNT(*) FROM memories GROUP BY category")
	if err != nil {
		return nil, classify("stats: categories", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		s.ByCategory[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statusCounts, err := db.CountByExtractionStatus()
	if err != nil {
		return nil, err
	}
	for status, n := range statusCounts {
		s.ByStatus[string(status)] = n
	}
	return s, nil
}
