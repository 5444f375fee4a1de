package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: retained text units with scoring metadata",
		SQL: `
CREATE TABLE memories (
    id                 TEXT PRIMARY KEY,
    content            TEXT NOT NULL,
    importance         REAL NOT NULL DEFAULT 0.5 CHECK (importance >= 0 AND importance <= 1),
    category           TEXT NOT NULL DEFAULT 'other' CHECK (category IN ('fact', 'other', 'core')),
    source             TEXT,
    extraction_status  TEXT NOT NULL DEFAULT 'pending' CHECK (extraction_status IN ('pending', 'complete', 'failed', 'skipped')),
    extraction_retries INTEGER NOT NULL DEFAULT 0,
    agent_id           TEXT,
    session_key        TEXT,
    retrieval_count    INTEGER NOT NULL DEFAULT 0,
    last_retrieved     INTEGER,
    created_at         INTEGER NOT NULL,
    updated_at         INTEGER NOT NULL
);

CREATE INDEX idx_memories_category   ON memories(category);
CREATE INDEX idx_memories_status     ON memories(extraction_status);
CREATE INDEX idx_memories_agent      ON memories(agent_id);
CREATE INDEX idx_memories_importance ON memories(importance DESC);
`,
	},
	{
		Version:     2,
		Description: "entities and tags: shared referents and labels",
		SQL: `
CREATE TABLE entities (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    normalized_name TEXT NOT NULL UNIQUE,
    entity_type     TEXT NOT NULL DEFAULT 'concept',
    aliases         TEXT,
    description     TEXT,
    mention_count   INTEGER NOT NULL DEFAULT 0 CHECK (mention_count >= 0)
);

CREATE TABLE tags (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL UNIQUE,
    category TEXT
);
`,
	},
	{
		Version:     3,
		Description: "edges: mentions, entity relations, memory tags",
		SQL: `
CREATE TABLE mentions (
    memory_id  TEXT NOT NULL REFERENCES memories(id),
    entity_id  TEXT NOT NULL REFERENCES entities(id),
    role       TEXT,
    confidence REAL NOT NULL DEFAULT 1.0,
    PRIMARY KEY (memory_id, entity_id)
);
CREATE INDEX idx_mentions_entity ON mentions(entity_id);

CREATE TABLE entity_relations (
    from_id    TEXT NOT NULL REFERENCES entities(id),
    rel_type   TEXT NOT NULL,
    to_id      TEXT NOT NULL REFERENCES entities(id),
    confidence REAL NOT NULL DEFAULT 1.0,
    PRIMARY KEY (from_id, rel_type, to_id)
);
CREATE INDEX idx_relations_to ON entity_relations(to_id);

CREATE TABLE memory_tags (
    memory_id  TEXT NOT NULL REFERENCES memories(id),
    tag_id     TEXT NOT NULL REFERENCES tags(id),
    confidence REAL NOT NULL DEFAULT 1.0,
    PRIMARY KEY (memory_id, tag_id)
);
CREATE INDEX idx_memory_tags_tag ON memory_tags(tag_id);
`,
	},
	{
		Version:     4,
		Description: "memory_vectors: embedding vectors for similarity search",
		SQL: `
CREATE TABLE memory_vectors (
    memory_id  TEXT PRIMARY KEY REFERENCES memories(id),
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     5,
		Description: "memories_fts: full-text index for lexical retrieval",
		SQL: `
CREATE VIRTUAL TABLE memories_fts USING fts5(
    content,
    content=memories,
    content_rowid=rowid
);

CREATE TRIGGER memories_ai AFTER INSERT ON memories BEGIN
    INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;
CREATE TRIGGER memories_ad AFTER DELETE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;
CREATE TRIGGER memories_au AFTER UPDATE OF content ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
    INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
