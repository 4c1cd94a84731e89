package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/logger"
)

const backupTimeFormat = "20060102T150405Z"

// withTx runs fn in a transaction and commits it. The transaction is
// rolled back if fn or the commit fails.
func withTx(db *sql.DB, code errors.ErrorCode, log logger.Logger, fn func(tx *sql.Tx) error) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(code, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// ErrTxDone only means the commit itself already ended it
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Debug().Err(err).Msg("Failed to roll back catalog transaction")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errFactory.WithData(code, struct {
			Phase string
			Error string
		}{
			Phase: "commit_changes",
			Error: err.Error(),
		})
	}
	committed = true

	return nil
}

// backupDatabase copies the whole catalog to dir before it is rebuilt
func backupDatabase(db *sql.DB, dir string, version int, log logger.Logger) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup_dir",
			Path:  dir,
			Error: err.Error(),
		})
	}

	name := fmt.Sprintf("catalog_v%d_%s.db", version, time.Now().UTC().Format(backupTimeFormat))
	backupPath := filepath.Join(dir, name)

	// VACUUM INTO takes an expression, so the path can be bound. It must
	// run outside a transaction.
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup",
			Path:  backupPath,
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", backupPath).
		Int("version", version).
		Msg("Catalog backup created")

	return backupPath, nil
}

// ValidateAndUpdateSchema brings db to SchemaVersion. A new database gets
// the schema created; one of any other version is backed up to backupDir
// and rebuilt empty, since catalog rows are an index of files that still
// exist on disk.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return errors.New().Wrap(ErrSchemaValidationFailed, err)
	}

	log.Debug().
		Int("version", version).
		Int("want", SchemaVersion).
		Msg("Catalog schema version")

	switch version {
	case SchemaVersion:
		return nil
	case 0:
		return InitSchema(db, log)
	}

	if _, err := backupDatabase(db, backupDir, version, log); err != nil {
		return err
	}

	// Dropping and recreating share one transaction so an interrupted
	// rebuild leaves the old tables in place
	err = withTx(db, ErrSchemaMigrationFailed, log, func(tx *sql.Tx) error {
		if err := dropTables(tx); err != nil {
			return err
		}
		return createSchema(tx)
	})
	if err != nil {
		return err
	}

	log.Info().
		Int("from", version).
		Int("to", SchemaVersion).
		Msg("Catalog schema rebuilt")

	return nil
}

// dropTables removes every user table, including ones from releases that
// used other names. Newest first, so referencing tables go before the
// tables they reference.
func dropTables(tx *sql.Tx) error {
	errFactory := errors.New()

	rows, err := tx.Query(`
        SELECT name FROM sqlite_master
        WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
        ORDER BY rowid DESC
    `)
	if err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return errFactory.Wrap(ErrSchemaMigrationFailed, err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	for _, table := range tables {
		ident := `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + ident); err != nil {
			return errFactory.WithData(ErrSchemaMigrationFailed, struct {
				Phase string
				Table string
				Error string
			}{
				Phase: "drop_table",
				Table: table,
				Error: err.Error(),
			})
		}
	}

	return nil
}
