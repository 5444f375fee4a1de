package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// VectorRecord holds an embedding for a memory.
type VectorRecord struct {
	MemoryID   string
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

func saveVectorTx(tx *sql.Tx, memoryID string, embedding []float64, model string, now int64) error {
	blob := encodeEmbedding(embedding)
	_, err := tx.Exec(`
		INSERT INTO memory_vectors (memory_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET embedding = ?, model = ?, dimensions = ?, created_at = ?
	`, memoryID, blob, model, len(embedding), now,
		blob, model, len(embedding), now)
	if err != nil {
		return classify("save vector", err)
	}
	return nil
}

// SaveVector stores or replaces the embedding for a memory.
func (db *DB) SaveVector(memoryID string, embedding []float64, model string) error {
	now := time.Now().UnixMilli()
	blob := encodeEmbedding(embedding)
	_, err := db.Exec(`
		INSERT INTO memory_vectors (memory_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET embedding = ?, model = ?, dimensions = ?, created_at = ?
	`, memoryID, blob, model, len(embedding), now,
		blob, model, len(embedding), now)
	if err != nil {
		return classify("save vector", err)
	}
	return nil
}

// GetVector returns the embedding for a memory, or nil if not found.
func (db *DB) GetVector(memoryID string) (*VectorRecord, error) {
	var v VectorRecord
	var blob []byte
	err := db.QueryRow(`
		SELECT memory_id, embedding, model, dimensions, created_at
		FROM memory_vectors WHERE memory_id = ?
	`, memoryID).Scan(&v.MemoryID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get vector", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// NonCoreVectors returns vector records for every non-core memory, ordered
// by memory id for deterministic sweeps.
func (db *DB) NonCoreVectors() ([]VectorRecord, error) {
	rows, err := db.Query(`
		SELECT v.memory_id, v.embedding, v.model, v.dimensions, v.created_at
		FROM memory_vectors v
		JOIN memories m ON m.id = v.memory_id
		WHERE m.category != 'core'
		ORDER BY v.memory_id
	`)
	if err != nil {
		return nil, classify("non-core vectors", err)
	}
	defer rows.Close()
	return scanVectors(rows)
}

// AllVectors returns all stored vector records.
func (db *DB) AllVectors() ([]VectorRecord, error) {
	rows, err := db.Query(`
		SELECT memory_id, embedding, model, dimensions, created_at FROM memory_vectors
	`)
	if err != nil {
		return nil, classify("all vectors", err)
	}
	defer rows.Close()
	return scanVectors(rows)
}

func scanVectors(rows *sql.Rows) ([]VectorRecord, error) {
	var records []VectorRecord
	for rows.Next() {
		var v VectorRecord
		var blob []byte
		if err := rows.Scan(&v.MemoryID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		v.Embedding = decodeEmbedding(blob)
		records = append(records, v)
	}
	return records, rows.Err()
}

// SimilarResult is a near-neighbor hit from FindSimilar.
type SimilarResult struct {
	MemoryID string
	Score    float64
}

// FindSimilar returns memories whose embeddings score at or above minScore
// against the query vector, ranked descending. The scan is linear over the
// stored vectors — the same deliberate trade the rest of the store makes
// for an embedded, serverless backend.
func (db *DB) FindSimilar(query []float64, minScore float64, limit int) ([]SimilarResult, error) {
	if limit <= 0 {
		limit = 10
	}
	vectors, err := db.AllVectors()
	if err != nil {
		return nil, err
	}

	var hits []SimilarResult
	for _, v := range vectors {
		score := Cosine(query, v.Embedding)
		if score >= minScore {
			hits = append(hits, SimilarResult{MemoryID: v.MemoryID, Score: score})
		}
	}
	sortSimilar(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func sortSimilar(hits []SimilarResult) {
	// Insertion sort keeps ties stable by insertion (memory id) order.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Score > hits[j-1].Score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// Cosine computes the cosine similarity between two vectors.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
