package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
	"github.com/OFFIS-RIT/soapkg/pkg/logger"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshot_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL,
    saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    soap_category TEXT NOT NULL,
    confidence REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    target_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    type TEXT NOT NULL,
    soap_category TEXT NOT NULL,
    confidence REAL NOT NULL,
    UNIQUE(source_id, target_id, type)
);

CREATE TABLE IF NOT EXISTS source_refs (
    owner_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    document_id TEXT NOT NULL,
    patient_id TEXT NOT NULL DEFAULT '',
    span_start INTEGER NOT NULL,
    span_end INTEGER NOT NULL,
    PRIMARY KEY (owner_id, position)
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_category ON entities(soap_category);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);
CREATE INDEX IF NOT EXISTS idx_source_refs_document ON source_refs(document_id);
CREATE INDEX IF NOT EXISTS idx_source_refs_patient ON source_refs(patient_id);
`

// SQLiteSnapshotStore writes the graph into relational tables so it can be
// queried with plain SQL after a run. Each Save replaces the stored graph
// in a single transaction.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

// NewSQLiteSnapshotStore opens (or creates) the database at path and
// creates the schema.
func NewSQLiteSnapshotStore(path string) (*SQLiteSnapshotStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteSnapshotStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteSnapshotStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database for ad-hoc queries.
func (s *SQLiteSnapshotStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteSnapshotStore) Save(ctx context.Context, snap common.GraphSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM source_refs",
		"DELETE FROM relationships",
		"DELETE FROM entities",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing graph tables: %w", err)
		}
	}

	entStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO entities (id, text, type, soap_category, confidence) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing entity insert: %w", err)
	}
	defer entStmt.Close()

	relStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO relationships (id, source_id, target_id, type, soap_category, confidence) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing relationship insert: %w", err)
	}
	defer relStmt.Close()

	refStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO source_refs (owner_id, position, document_id, patient_id, span_start, span_end) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing source ref insert: %w", err)
	}
	defer refStmt.Close()

	insertRefs := func(ownerID string, refs []common.SourceRef) error {
		for i, ref := range refs {
			if _, err := refStmt.ExecContext(ctx, ownerID, i, ref.DocumentID, ref.PatientID, ref.Span.Start, ref.Span.End); err != nil {
				return fmt.Errorf("inserting source ref of %s: %w", ownerID, err)
			}
		}
		return nil
	}

	for _, e := range snap.Entities {
		if _, err := entStmt.ExecContext(ctx, e.ID, e.Text, string(e.Type), string(e.SOAPCategory), e.Confidence); err != nil {
			return fmt.Errorf("inserting entity %s: %w", e.ID, err)
		}
		if err := insertRefs(e.ID, e.SourceRefs); err != nil {
			return err
		}
	}
	for _, r := range snap.Relationships {
		if _, err := relStmt.ExecContext(ctx, r.ID, r.SourceID, r.TargetID, string(r.Type), string(r.SOAPCategory), r.Confidence); err != nil {
			return fmt.Errorf("inserting relationship %s: %w", r.ID, err)
		}
		if err := insertRefs(r.ID, r.SourceRefs); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (id, version, saved_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version, saved_at = excluded.saved_at`,
		snap.Version,
	)
	if err != nil {
		return fmt.Errorf("writing snapshot metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	logger.Debug("[Store] Snapshot written to sqlite", "entities", len(snap.Entities), "relationships", len(snap.Relationships))
	return nil
}

func (s *SQLiteSnapshotStore) Load(ctx context.Context) (common.GraphSnapshot, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM snapshot_meta WHERE id = 1").Scan(&version)
	if err == sql.ErrNoRows {
		return common.GraphSnapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return common.GraphSnapshot{}, fmt.Errorf("reading snapshot metadata: %w", err)
	}

	refs, err := s.loadRefs(ctx)
	if err != nil {
		return common.GraphSnapshot{}, err
	}

	snap := common.GraphSnapshot{
		Version:       version,
		Entities:      []common.Entity{},
		Relationships: []common.Relationship{},
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, type, soap_category, confidence FROM entities ORDER BY id")
	if err != nil {
		return common.GraphSnapshot{}, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e common.Entity
		var typ, cat string
		if err := rows.Scan(&e.ID, &e.Text, &typ, &cat, &e.Confidence); err != nil {
			return common.GraphSnapshot{}, fmt.Errorf("scanning entity: %w", err)
		}
		e.Type = common.EntityType(typ)
		e.SOAPCategory = common.SOAPCategory(cat)
		e.SourceRefs = refs[e.ID]
		snap.Entities = append(snap.Entities, e)
	}
	if err := rows.Err(); err != nil {
		return common.GraphSnapshot{}, fmt.Errorf("iterating entities: %w", err)
	}

	relRows, err := s.db.QueryContext(ctx,
		"SELECT id, source_id, target_id, type, soap_category, confidence FROM relationships ORDER BY id")
	if err != nil {
		return common.GraphSnapshot{}, fmt.Errorf("querying relationships: %w", err)
	}
	defer relRows.Close()
	for relRows.Next() {
		var r common.Relationship
		var typ, cat string
		if err := relRows.Scan(&r.ID, &r.SourceID, &r.TargetID, &typ, &cat, &r.Confidence); err != nil {
			return common.GraphSnapshot{}, fmt.Errorf("scanning relationship: %w", err)
		}
		r.Type = common.RelationType(typ)
		r.SOAPCategory = common.SOAPCategory(cat)
		r.SourceRefs = refs[r.ID]
		snap.Relationships = append(snap.Relationships, r)
	}
	if err := relRows.Err(); err != nil {
		return common.GraphSnapshot{}, fmt.Errorf("iterating relationships: %w", err)
	}

	return snap, nil
}

func (s *SQLiteSnapshotStore) loadRefs(ctx context.Context) (map[string][]common.SourceRef, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT owner_id, document_id, patient_id, span_start, span_end FROM source_refs ORDER BY owner_id, position")
	if err != nil {
		return nil, fmt.Errorf("querying source refs: %w", err)
	}
	defer rows.Close()

	refs := make(map[string][]common.SourceRef)
	for rows.Next() {
		var owner string
		var ref common.SourceRef
		if err := rows.Scan(&owner, &ref.DocumentID, &ref.PatientID, &ref.Span.Start, &ref.Span.End); err != nil {
			return nil, fmt.Errorf("scanning source ref: %w", err)
		}
		refs[owner] = append(refs[owner], ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating source refs: %w", err)
	}
	return refs, nil
}
