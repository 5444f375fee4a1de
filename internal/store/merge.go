package store

import (
	"database/sql"
	"fmt"
	"log"
)

// MergeResult summarizes a cluster merge.
type MergeResult struct {
	Survivor string `json:"survivor"`
	Deleted  int    `json:"deleted"`
	Skipped  bool   `json:"skipped"`
}

// MergeMemoryCluster collapses a near-duplicate cluster into its
// highest-importance member. Every member's existence is re-validated
// inside the transaction — store state may have changed since the cluster
// was discovered. If any member is missing the merge is skipped wholesale
// with a warning; no partial merge is ever performed. MENTIONS and TAGGED
// edges of losing members transfer to the survivor, then losers are
// deleted, all in one transaction. Ties on importance keep the smallest
// id so the outcome is deterministic.
func (db *DB) MergeMemoryCluster(ids []string, importances []float64) (MergeResult, error) {
	if len(ids) != len(importances) {
		return MergeResult{}, &Error{Kind: KindInvalidInput, Op: "merge cluster",
			Err: fmt.Errorf("%d ids vs %d importances", len(ids), len(importances))}
	}
	if len(ids) == 0 {
		return MergeResult{}, &Error{Kind: KindInvalidInput, Op: "merge cluster", Err: fmt.Errorf("empty cluster")}
	}

	survivor := ids[0]
	best := importances[0]
	for i := 1; i < len(ids); i++ {
		if importances[i] > best || (importances[i] == best && ids[i] < survivor) {
			survivor = ids[i]
			best = importances[i]
		}
	}

	var result MergeResult
	err := WithRetry(func() error {
		tx, err := db.Begin()
		if err != nil {
			return classify("merge cluster: begin", err)
		}
		defer tx.Rollback()

		existing, err := countExistingTx(tx, ids)
		if err != nil {
			return err
		}
		if existing != len(ids) {
			log.Printf("merge cluster: skipping — %d of %d members no longer exist", len(ids)-existing, len(ids))
			result = MergeResult{Skipped: true}
			return nil
		}

		deleted := 0
		for _, id := range ids {
			if id == survivor {
				continue
			}
			if err := transferEdgesTx(tx, id, survivor); err != nil {
				return err
			}
			if err := deleteMemoryTx(tx, id, nil); err != nil {
				return err
			}
			deleted++
		}

		if err := tx.Commit(); err != nil {
			return classify("merge cluster: commit", err)
		}
		result = MergeResult{Survivor: survivor, Deleted: deleted}
		return nil
	})
	return result, err
}

func countExistingTx(tx *sql.Tx, ids []string) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM memories WHERE id IN (%s)", placeholders(len(ids)))
	var n int
	if err := tx.QueryRow(query, toAnySlice(ids)...).Scan(&n); err != nil {
		return 0, classify("merge cluster: validate", err)
	}
	return n, nil
}

// transferEdgesTx reassigns the loser's MENTIONS and TAGGED edges to the
// survivor. Where the survivor already carries an equivalent edge the
// loser's copy collapses, and the later loser-side delete decrements the
// mention count for exactly those collapsed edges — so moved edges keep
// their counts while duplicates shed theirs.
func transferEdgesTx(tx *sql.Tx, loser, survivor string) error {
	// Edges the survivor does not already have move over wholesale;
	// changing memory_id does not alter any entity's mention count.
	_, err := tx.Exec(`
		UPDATE mentions SET memory_id = ?
		WHERE memory_id = ?
		  AND entity_id NOT IN (SELECT entity_id FROM mentions WHERE memory_id = ?)
	`, survivor, loser, survivor)
	if err != nil {
		return classify("merge cluster: move mentions", err)
	}

	_, err = tx.Exec(`
		UPDATE memory_tags SET memory_id = ?
		WHERE memory_id = ?
		  AND tag_id NOT IN (SELECT tag_id FROM memory_tags WHERE memory_id = ?)
	`, survivor, loser, survivor)
	if err != nil {
		return classify("merge cluster: move tags", err)
	}
	return nil
}
