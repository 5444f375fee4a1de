package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/engramdb/engram/internal/model"
)

// MergeEntityParams describes an entity mention to merge.
type MergeEntityParams struct {
	Name        string
	Type        string
	Aliases     []string
	Description string
}

// MergeEntity creates an entity or merges into the existing one keyed by
// normalized name, so re-mentioning the same name is idempotent. New
// aliases are appended; an empty description never clobbers an existing
// one. Returns the entity id.
func (db *DB) MergeEntity(p MergeEntityParams) (string, error) {
	norm := model.NormalizeName(p.Name)
	if norm == "" {
		return "", &Error{Kind: KindInvalidInput, Op: "merge entity", Err: fmt.Errorf("empty name")}
	}
	if p.Type == "" {
		p.Type = "concept"
	}

	var id string
	err := WithRetry(func() error {
		tx, err := db.Begin()
		if err != nil {
			return classify("merge entity: begin", err)
		}
		defer tx.Rollback()

		var existingID string
		var aliasJSON sql.NullString
		var description sql.NullString
		err = tx.QueryRow(
			"SELECT id, aliases, description FROM entities WHERE normalized_name = ?", norm,
		).Scan(&existingID, &aliasJSON, &description)

		switch {
		case err == sql.ErrNoRows:
			id = uuid.NewString()
			_, err = tx.Exec(`
				INSERT INTO entities (id, name, normalized_name, entity_type, aliases, description, mention_count)
				VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), 0)
			`, id, p.Name, norm, p.Type, marshalAliases(p.Aliases), p.Description)
			if err != nil {
				return classify("merge entity: insert", err)
			}
		case err != nil:
			return classify("merge entity: lookup", err)
		default:
			id = existingID
			aliases := mergeAliases(unmarshalAliases(aliasJSON.String), p.Aliases)
			desc := description.String
			if desc == "" {
				desc = p.Description
			}
			_, err = tx.Exec(`
				UPDATE entities SET aliases = ?, description = NULLIF(?, '') WHERE id = ?
			`, marshalAliases(aliases), desc, id)
			if err != nil {
				return classify("merge entity: update", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return classify("merge entity: commit", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Mention is a Memory→Entity edge.
type Mention struct {
	EntityID   string
	Role       string
	Confidence float64
}

// CreateMentions attaches MENTIONS edges from a memory to entities,
// incrementing each entity's mention count once per new edge. Duplicate
// edges are ignored.
func (db *DB) CreateMentions(memoryID string, mentions []Mention) error {
	if len(mentions) == 0 {
		return nil
	}
	return WithRetry(func() error {
		tx, err := db.Begin()
		if err != nil {
			return classify("create mentions: begin", err)
		}
		defer tx.Rollback()

		for _, m := range mentions {
			res, err := tx.Exec(`
				INSERT OR IGNORE INTO mentions (memory_id, entity_id, role, confidence)
				VALUES (?, ?, NULLIF(?, ''), ?)
			`, memoryID, m.EntityID, m.Role, m.Confidence)
			if err != nil {
				return classify("create mentions: insert", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				if _, err := tx.Exec(
					"UPDATE entities SET mention_count = mention_count + 1 WHERE id = ?", m.EntityID,
				); err != nil {
					return classify("create mentions: increment", err)
				}
			}
		}
		if err := tx.Commit(); err != nil {
			return classify("create mentions: commit", err)
		}
		return nil
	})
}

// CreateEntityRelationship records a typed Entity→Entity edge. Types
// outside the validated whitelist are logged and not written.
func (db *DB) CreateEntityRelationship(fromID, relType, toID string, confidence float64) error {
	if !model.ValidRelationship(relType) {
		log.Printf("store: rejecting unrecognized relationship type %q (%s -> %s)", relType, fromID, toID)
		return nil
	}
	_, err := db.Exec(`
		INSERT OR IGNORE INTO entity_relations (from_id, rel_type, to_id, confidence)
		VALUES (?, ?, ?, ?)
	`, fromID, relType, toID, confidence)
	if err != nil {
		return classify("create entity relationship", err)
	}
	return nil
}

// GetEntityByName returns an entity by normalized name, or nil.
func (db *DB) GetEntityByName(name string) (*model.Entity, error) {
	row := db.QueryRow(`
		SELECT id, name, normalized_name, entity_type, aliases, description, mention_count
		FROM entities WHERE normalized_name = ?
	`, model.NormalizeName(name))
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get entity by name", err)
	}
	return e, nil
}

// OrphanEntities returns entities whose mention count has reached zero.
// They are not deleted automatically; a separate sweep removes them after
// a grace period.
func (db *DB) OrphanEntities() ([]model.Entity, error) {
	rows, err := db.Query(`
		SELECT id, name, normalized_name, entity_type, aliases, description, mention_count
		FROM entities WHERE mention_count = 0 ORDER BY normalized_name
	`)
	if err != nil {
		return nil, classify("orphan entities", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// DeleteEntity removes an entity and its relationship edges. Entities with
// live mentions are refused.
func (db *DB) DeleteEntity(id string) error {
	return WithRetry(func() error {
		tx, err := db.Begin()
		if err != nil {
			return classify("delete entity: begin", err)
		}
		defer tx.Rollback()

		var count int
		err = tx.QueryRow("SELECT mention_count FROM entities WHERE id = ?", id).Scan(&count)
		if err == sql.ErrNoRows {
			return &Error{Kind: KindNotFound, Op: "delete entity", Err: fmt.Errorf("entity %s", id)}
		}
		if err != nil {
			return classify("delete entity: read", err)
		}
		if count > 0 {
			return &Error{Kind: KindInvalidInput, Op: "delete entity", Err: fmt.Errorf("entity %s has %d live mentions", id, count)}
		}

		if _, err := tx.Exec("DELETE FROM entity_relations WHERE from_id = ? OR to_id = ?", id, id); err != nil {
			return classify("delete entity: relations", err)
		}
		if _, err := tx.Exec("DELETE FROM entities WHERE id = ?", id); err != nil {
			return classify("delete entity", err)
		}
		if err := tx.Commit(); err != nil {
			return classify("delete entity: commit", err)
		}
		return nil
	})
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var e model.Entity
	var aliases, description sql.NullString
	err := row.Scan(&e.ID, &e.Name, &e.NormalizedName, &e.Type, &aliases, &description, &e.MentionCount)
	if err != nil {
		return nil, err
	}
	e.Aliases = unmarshalAliases(aliases.String)
	e.Description = description.String
	return &e, nil
}

func marshalAliases(aliases []string) string {
	if len(aliases) == 0 {
		return ""
	}
	b, _ := json.Marshal(aliases)
	return string(b)
}

func unmarshalAliases(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func mergeAliases(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := existing
	for _, a := range existing {
		seen[model.NormalizeName(a)] = true
	}
	for _, a := range incoming {
		if norm := model.NormalizeName(a); norm != "" && !seen[norm] {
			seen[norm] = true
			out = append(out, a)
		}
	}
	return out
}
