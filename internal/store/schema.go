package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 1

const dimensionsSetting = "embedding_dimensions"

// Schema definitions
const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const settingsTable = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const documentsTable = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	mime TEXT NOT NULL DEFAULT '',
	size_bytes INTEGER NOT NULL DEFAULT 0,
	hash TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(hash);
`

// The foreign key is deferred so a rename can move the chunks before the
// document row within one transaction.
const chunksTable = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_name TEXT NOT NULL REFERENCES documents(name) DEFERRABLE INITIALLY DEFERRED,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	UNIQUE(document_name, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_name);
`

const historyTable = `
CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sources TEXT NOT NULL DEFAULT '',
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// createVectorTable creates a sqlite-vec virtual table keyed by keyColumn.
func createVectorTable(db *sql.DB, table, keyColumn string, dimensions int) error {
	query := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
			%s INTEGER PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, table, keyColumn, dimensions)

	_, err := db.Exec(query)
	return err
}

// initSchema initializes the database schema.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		log.Debug("Schema is up to date", "version", version)
		return nil
	}

	log.Debug("Migrating schema", "from", version, "to", currentSchemaVersion)

	if version < 1 {
		if err := migrateV1(db); err != nil {
			return fmt.Errorf("failed to migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema. Vector tables depend on the embedding
// dimension and are created by ensureVectorTables.
func migrateV1(db *sql.DB) error {
	log.Debug("Applying migration v1")

	tables := []string{settingsTable, documentsTable, chunksTable, historyTable}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

// ensureVectorTables pins the database to one embedding dimension. The first
// open records it; later opens must agree.
func ensureVectorTables(db *sql.DB, dimensions int) error {
	var stored string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", dimensionsSetting).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		log.Debug("Recording embedding dimensions", "dimensions", dimensions)
		if _, err := db.Exec("INSERT INTO settings (key, value) VALUES (?, ?)", dimensionsSetting, strconv.Itoa(dimensions)); err != nil {
			return fmt.Errorf("failed to record embedding dimensions: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read embedding dimensions: %w", err)
	default:
		existing, err := strconv.Atoi(stored)
		if err != nil {
			return fmt.Errorf("invalid stored embedding dimensions %q: %w", stored, err)
		}
		if existing != dimensions {
			return fmt.Errorf("%w: database was created with %d dimensions, embedder produces %d", ErrDimensionMismatch, existing, dimensions)
		}
	}

	if err := createVectorTable(db, "chunk_vectors", "chunk_id", dimensions); err != nil {
		return fmt.Errorf("failed to create chunk vector table: %w", err)
	}
	if err := createVectorTable(db, "history_vectors", "entry_id", dimensions); err != nil {
		return fmt.Errorf("failed to create history vector table: %w", err)
	}

	return nil
}
