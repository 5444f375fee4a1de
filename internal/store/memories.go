package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/engramdb/engram/internal/model"
)

// invalidatedImportance is the near-zero floor set by InvalidateMemory.
// The record stays queryable but sinks below every ranking threshold.
const invalidatedImportance = 0.01

// StoreMemoryParams is the input to StoreMemory. Importance, category,
// source, and status are persisted verbatim — gating happened upstream.
type StoreMemoryParams struct {
	Content    string
	Embedding  []float64
	Importance float64
	Category   model.Category
	Source     string
	AgentID    string
	SessionKey string
	Status     model.ExtractionStatus
	Model      string // embedding model name, required when Embedding is set
}

func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// StoreMemory creates a memory with retrieval count 0, last-retrieved
// unset, and extraction retries 0. Returns the new identifier.
func (db *DB) StoreMemory(p StoreMemoryParams) (string, error) {
	if strings.TrimSpace(p.Content) == "" {
		return "", &Error{Kind: KindInvalidInput, Op: "store memory", Err: fmt.Errorf("empty content")}
	}
	if p.Category == "" {
		p.Category = model.CategoryOther
	}
	if !p.Category.IsValid() {
		return "", &Error{Kind: KindInvalidInput, Op: "store memory", Err: fmt.Errorf("unknown category %q", p.Category)}
	}
	if p.Status == "" {
		p.Status = model.ExtractionPending
	}
	if !p.Status.IsValid() {
		return "", &Error{Kind: KindInvalidInput, Op: "store memory", Err: fmt.Errorf("unknown extraction status %q", p.Status)}
	}

	id := uuid.NewString()
	now := time.Now().UnixMilli()

	err := WithRetry(func() error {
		tx, err := db.Begin()
		if err != nil {
			return classify("store memory: begin", err)
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO memories (id, content, importance, category, source, extraction_status,
				extraction_retries, agent_id, session_key, retrieval_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, 0, NULLIF(?, ''), NULLIF(?, ''), 0, ?, ?)
		`, id, p.Content, clampImportance(p.Importance), p.Category, p.Source, p.Status,
			p.AgentID, p.SessionKey, now, now)
		if err != nil {
			return classify("store memory: insert", err)
		}

		if len(p.Embedding) > 0 {
			if err := saveVectorTx(tx, id, p.Embedding, p.Model, now); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return classify("store memory: commit", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetMemory returns a memory by id, or nil if not found.
func (db *DB) GetMemory(id string) (*model.Memory, error) {
	row := db.QueryRow(`
		SELECT id, content, importance, category, source, extraction_status, extraction_retries,
			agent_id, session_key, retrieval_count, last_retrieved, created_at, updated_at
		FROM memories WHERE id = ?
	`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get memory", err)
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*model.Memory, error) {
	var m model.Memory
	var source, agentID, sessionKey sql.NullString
	var lastRetrieved sql.NullInt64
	err := row.Scan(&m.ID, &m.Content, &m.Importance, &m.Category, &source,
		&m.ExtractionStatus, &m.ExtractionRetries, &agentID, &sessionKey,
		&m.RetrievalCount, &lastRetrieved, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Source = source.String
	m.AgentID = agentID.String
	m.SessionKey = sessionKey.String
	if lastRetrieved.Valid {
		m.LastRetrieved = &lastRetrieved.Int64
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]model.Memory, error) {
	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// DeleteMemory removes a memory, its edges, and its vector in a single
// transaction, decrementing the mention count of every entity it
// referenced. Returns whether a record existed.
func (db *DB) DeleteMemory(id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, ErrInvalidIdentifier
	}

	existed := false
	err := WithRetry(func() error {
		tx, err := db.Begin()
		if err != nil {
			return classify("delete memory: begin", err)
		}
		defer tx.Rollback()

		if err := deleteMemoryTx(tx, id, &existed); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return classify("delete memory: commit", err)
		}
		return nil
	})
	return existed, err
}

// deleteMemoryTx performs the atomic delete-with-mention-decrement inside
// an open transaction. Each referenced entity is decremented exactly once.
func deleteMemoryTx(tx *sql.Tx, id string, existed *bool) error {
	_, err := tx.Exec(`
		UPDATE entities SET mention_count = MAX(mention_count - 1, 0)
		WHERE id IN (SELECT entity_id FROM mentions WHERE memory_id = ?)
	`, id)
	if err != nil {
		return classify("delete memory: decrement mentions", err)
	}
	if _, err := tx.Exec("DELETE FROM mentions WHERE memory_id = ?", id); err != nil {
		return classify("delete memory: mentions", err)
	}
	if _, err := tx.Exec("DELETE FROM memory_tags WHERE memory_id = ?", id); err != nil {
		return classify("delete memory: tags", err)
	}
	if _, err := tx.Exec("DELETE FROM memory_vectors WHERE memory_id = ?", id); err != nil {
		return classify("delete memory: vector", err)
	}
	res, err := tx.Exec("DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return classify("delete memory", err)
	}
	n, _ := res.RowsAffected()
	if existed != nil {
		*existed = n > 0
	}
	return nil
}

// InvalidateMemory soft-deletes a memory by flooring its importance and
// refreshing the update timestamp. Returns whether a record existed.
func (db *DB) InvalidateMemory(id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, ErrInvalidIdentifier
	}
	res, err := db.Exec(`
		UPDATE memories SET importance = ?, updated_at = ? WHERE id = ?
	`, invalidatedImportance, time.Now().UnixMilli(), id)
	if err != nil {
		return false, classify("invalidate memory", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// PromoteToCore bulk-transitions memories to the core category.
// Returns the count actually changed; empty input is a no-op.
func (db *DB) PromoteToCore(ids []string) (int, error) {
	return db.setCategory(ids, model.CategoryCore, "promote to core")
}

// DemoteFromCore bulk-transitions core memories back to fact.
// Returns the count actually changed; empty input is a no-op.
func (db *DB) DemoteFromCore(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
		UPDATE memories SET category = ?, updated_at = ?
		WHERE category = 'core' AND id IN (%s)
	`, placeholders(len(ids)))
	args := append([]any{model.CategoryFact, time.Now().UnixMilli()}, toAnySlice(ids)...)
	res, err := db.Exec(query, args...)
	if err != nil {
		return 0, classify("demote from core", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (db *DB) setCategory(ids []string, cat model.Category, op string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
		UPDATE memories SET category = ?, updated_at = ?
		WHERE category != ? AND id IN (%s)
	`, placeholders(len(ids)))
	args := append([]any{cat, time.Now().UnixMilli(), cat}, toAnySlice(ids)...)
	res, err := db.Exec(query, args...)
	if err != nil {
		return 0, classify(op, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// UpdateMemoryCategory auto-classifies a memory, but only when its current
// category is "other" — an explicit fact/core classification is never
// overwritten.
func (db *DB) UpdateMemoryCategory(id string, cat model.Category) error {
	if !cat.IsValid() {
		return &Error{Kind: KindInvalidInput, Op: "update category", Err: fmt.Errorf("unknown category %q", cat)}
	}
	_, err := db.Exec(`
		UPDATE memories SET category = ?, updated_at = ?
		WHERE id = ? AND category = 'other'
	`, cat, time.Now().UnixMilli(), id)
	if err != nil {
		return classify("update category", err)
	}
	return nil
}

// RecordRetrievals bulk-increments retrieval counts and stamps
// last-retrieved for each id. Empty input performs no store call.
func (db *DB) RecordRetrievals(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE memories SET retrieval_count = retrieval_count + 1, last_retrieved = ?
		WHERE id IN (%s)
	`, placeholders(len(ids)))
	args := append([]any{time.Now().UnixMilli()}, toAnySlice(ids)...)
	if _, err := db.Exec(query, args...); err != nil {
		return classify("record retrievals", err)
	}
	return nil
}

// ListByCategory returns all memories in a category.
func (db *DB) ListByCategory(cat model.Category) ([]model.Memory, error) {
	rows, err := db.Query(`
		SELECT id, content, importance, category, source, extraction_status, extraction_retries,
			agent_id, session_key, retrieval_count, last_retrieved, created_at, updated_at
		FROM memories WHERE category = ? ORDER BY created_at
	`, cat)
	if err != nil {
		return nil, classify("list by category", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListNonCore returns every memory outside the core category, ordered by id
// so sweep passes are deterministic.
func (db *DB) ListNonCore() ([]model.Memory, error) {
	rows, err := db.Query(`
		SELECT id, content, importance, category, source, extraction_status, extraction_retries,
			agent_id, session_key, retrieval_count, last_retrieved, created_at, updated_at
		FROM memories WHERE category != 'core' ORDER BY id
	`)
	if err != nil {
		return nil, classify("list non-core", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// CountExisting returns how many of the given ids are present.
func (db *DB) CountExisting(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM memories WHERE id IN (%s)", placeholders(len(ids)))
	var n int
	if err := db.QueryRow(query, toAnySlice(ids)...).Scan(&n); err != nil {
		return 0, classify("count existing", err)
	}
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
