package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/engramdb/engram/internal/model"
)

// TagMemory attaches a TAGGED edge from a memory to a tag, creating the
// tag if needed. Idempotent on the normalized tag name.
func (db *DB) TagMemory(memoryID, tagName, tagCategory string, confidence float64) error {
	norm := model.NormalizeName(tagName)
	if norm == "" {
		return &Error{Kind: KindInvalidInput, Op: "tag memory", Err: fmt.Errorf("empty tag name")}
	}

	return WithRetry(func() error {
		tx, err := db.Begin()
		if err != nil {
			return classify("tag memory: begin", err)
		}
		defer tx.Rollback()

		var tagID string
		err = tx.QueryRow("SELECT id FROM tags WHERE name = ?", norm).Scan(&tagID)
		if err == sql.ErrNoRows {
			tagID = uuid.NewString()
			if _, err := tx.Exec(
				"INSERT INTO tags (id, name, category) VALUES (?, ?, NULLIF(?, ''))",
				tagID, norm, tagCategory,
			); err != nil {
				return classify("tag memory: create tag", err)
			}
		} else if err != nil {
			return classify("tag memory: lookup", err)
		}

		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO memory_tags (memory_id, tag_id, confidence) VALUES (?, ?, ?)
		`, memoryID, tagID, confidence); err != nil {
			return classify("tag memory: attach", err)
		}
		if err := tx.Commit(); err != nil {
			return classify("tag memory: commit", err)
		}
		return nil
	})
}

// OrphanTags returns tags with zero attachments. Like orphan entities,
// they are only deleted on demand.
func (db *DB) OrphanTags() ([]model.Tag, error) {
	rows, err := db.Query(`
		SELECT t.id, t.name, t.category FROM tags t
		WHERE NOT EXISTS (SELECT 1 FROM memory_tags mt WHERE mt.tag_id = t.id)
		ORDER BY t.name
	`)
	if err != nil {
		return nil, classify("orphan tags", err)
	}
	defer rows.Close()

	var out []model.Tag
	for rows.Next() {
		var t model.Tag
		var category sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &category); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		t.Category = category.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTag removes a tag. Tags still attached to memories are refused.
func (db *DB) DeleteTag(id string) error {
	var attached int
	if err := db.QueryRow("SELECT COUNT(*) FROM memory_tags WHERE tag_id = ?", id).Scan(&attached); err != nil {
		return classify("delete tag: count", err)
	}
	if attached > 0 {
		return &Error{Kind: KindInvalidInput, Op: "delete tag", Err: fmt.Errorf("tag %s has %d attachments", id, attached)}
	}
	if _, err := db.Exec("DELETE FROM tags WHERE id = ?", id); err != nil {
		return classify("delete tag", err)
	}
	return nil
}
