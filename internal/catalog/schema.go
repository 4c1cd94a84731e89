package catalog

import (
	"database/sql"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS runs (
	       run_id           TEXT PRIMARY KEY,
	       started_at       INTEGER NOT NULL,
	       stopped_at       INTEGER,
	       interval_ms      INTEGER NOT NULL CHECK (interval_ms > 0),
	       fields           TEXT NOT NULL,
	       sources          TEXT NOT NULL,
	       ticks            INTEGER NOT NULL DEFAULT 0,
	       records          INTEGER NOT NULL DEFAULT 0,
	       partial_failures INTEGER NOT NULL DEFAULT 0,
	       stop_reason      TEXT
	   );
	   CREATE TABLE IF NOT EXISTS datasets (
	       id         INTEGER PRIMARY KEY AUTOINCREMENT,
	       run_id     TEXT NOT NULL REFERENCES runs(run_id),
	       path       TEXT NOT NULL,
	       format     TEXT NOT NULL CHECK (format IN ('csv', 'json')),
	       json_mode  TEXT NOT NULL DEFAULT '',
	       appended   INTEGER NOT NULL CHECK (appended IN (0, 1)),
	       opened_at  INTEGER NOT NULL,
	       closed_at  INTEGER,
	       records    INTEGER NOT NULL DEFAULT 0 CHECK (typeof(records) = 'integer'),
	       bytes      INTEGER NOT NULL DEFAULT 0 CHECK (typeof(bytes) = 'integer')
	   );
	   CREATE INDEX IF NOT EXISTS datasets_run ON datasets (run_id, opened_at);`

	insertRunSQL = `
    INSERT INTO runs (
        run_id, started_at, interval_ms, fields, sources
    ) VALUES (?, ?, ?, ?, ?)`

	finishRunSQL = `
    UPDATE runs
    SET stopped_at = ?, ticks = ?, records = ?, partial_failures = ?, stop_reason = ?
    WHERE run_id = ?`

	insertDatasetSQL = `
    INSERT INTO datasets (
        run_id, path, format, json_mode, appended, opened_at
    ) VALUES (?, ?, ?, ?, ?, ?)`

	closeDatasetSQL = `
    UPDATE datasets
    SET closed_at = ?, records = ?, bytes = ?
    WHERE id = ?`

	selectDatasetsSQL = `
    SELECT run_id, path, format, json_mode, appended, opened_at, closed_at, records, bytes
    FROM datasets
    WHERE run_id = ?
    ORDER BY opened_at, id`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	log.Debug().Msg("Creating catalog database...")

	if err := withTx(db, ErrSchemaInitFailed, log, createSchema); err != nil {
		return err
	}

	log.Info().
		Int("version", SchemaVersion).
		Msg("Catalog schema initialized")

	return nil
}

func createSchema(tx *sql.Tx) error {
	errFactory := errors.New()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for a new database
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
