package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/engramdb/engram/internal/model"
)

// UpdateExtractionStatus moves a memory through the extraction state
// machine. The transition is validated against the current status inside
// the same transaction; incrementRetries bumps the retry counter in the
// same write.
func (db *DB) UpdateExtractionStatus(id string, status model.ExtractionStatus, incrementRetries bool) error {
	if !status.IsValid() {
		return &Error{Kind: KindInvalidInput, Op: "update extraction status", Err: fmt.Errorf("unknown status %q", status)}
	}

	return WithRetry(func() error {
		tx, err := db.Begin()
		if err != nil {
			return classify("update extraction status: begin", err)
		}
		defer tx.Rollback()

		var current model.ExtractionStatus
		err = tx.QueryRow("SELECT extraction_status FROM memories WHERE id = ?", id).Scan(&current)
		if err == sql.ErrNoRows {
			return &Error{Kind: KindNotFound, Op: "update extraction status", Err: fmt.Errorf("memory %s", id)}
		}
		if err != nil {
			return classify("update extraction status: read", err)
		}
		if !model.ValidTransition(current, status) {
			return &Error{Kind: KindInvalidInput, Op: "update extraction status",
				Err: fmt.Errorf("invalid transition %s -> %s", current, status)}
		}

		retryBump := 0
		if incrementRetries {
			retryBump = 1
		}
		_, err = tx.Exec(`
			UPDATE memories SET extraction_status = ?, extraction_retries = extraction_retries + ?, updated_at = ?
			WHERE id = ?
		`, status, retryBump, time.Now().UnixMilli(), id)
		if err != nil {
			return classify("update extraction status: write", err)
		}
		if err := tx.Commit(); err != nil {
			return classify("update extraction status: commit", err)
		}
		return nil
	})
}

// ExtractionRetries returns the retry count for a memory.
func (db *DB) ExtractionRetries(id string) (int, error) {
	var n int
	err := db.QueryRow("SELECT extraction_retries FROM memories WHERE id = ?", id).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, &Error{Kind: KindNotFound, Op: "extraction retries", Err: fmt.Errorf("memory %s", id)}
	}
	if err != nil {
		return 0, classify("extraction retries", err)
	}
	return n, nil
}

// CountByExtractionStatus returns the number of memories per status.
func (db *DB) CountByExtractionStatus() (map[model.ExtractionStatus]int, error) {
	rows, err := db.Query("SELECT extraction_status, COUNT(*) FROM memories GROUP BY extraction_status")
	if err != nil {
		return nil, classify("count by extraction status", err)
	}
	defer rows.Close()

	counts := make(map[model.ExtractionStatus]int)
	for rows.Next() {
		var status model.ExtractionStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListPendingExtractions returns up to limit memories awaiting extraction,
// oldest first, for a worker to claim.
func (db *DB) ListPendingExtractions(limit int) ([]model.Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, content, importance, category, source, extraction_status, extraction_retries,
			agent_id, session_key, retrieval_count, last_retrieved, created_at, updated_at
		FROM memories WHERE extraction_status = 'pending'
		ORDER BY created_at LIMIT ?
	`, limit)
	if err != nil {
		return nil, classify("list pending extractions", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ResetFailedExtractions flips up to limit failed memories back to pending
// so a worker can retry them. Returns the count reset. No max-retry cutoff
// is imposed here; callers decide when to give up.
func (db *DB) ResetFailedExtractions(limit int) (int, error) {
	if limit <= 0 {
		limit = 20
	}
	res, err := db.Exec(`
		UPDATE memories SET extraction_status = 'pending', updated_at = ?
		WHERE id IN (
			SELECT id FROM memories WHERE extraction_status = 'failed'
			ORDER BY updated_at LIMIT ?
		)
	`, time.Now().UnixMilli(), limit)
	if err != nil {
		return 0, classify("reset failed extractions", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
