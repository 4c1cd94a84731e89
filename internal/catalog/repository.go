package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/dataset"
	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/logger"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	runID  string

	mu   sync.Mutex
	open map[string]int64 // dataset path -> row id
}

func newRepository(cfg Config, log logger.Logger) (*repository, error) {
	errFactory := errors.New()

	if strings.TrimSpace(cfg.DBPath) == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_foreign_keys=1"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	// A single connection serializes writers from rotation and shutdown
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	log.Info().
		Str("path", cfg.DBPath).
		Str("run_id", runID).
		Int("schema_version", SchemaVersion).
		Msg("Dataset catalog initialized")

	return &repository{
		db:     db,
		logger: log,
		cfg:    cfg,
		runID:  runID,
		open:   make(map[string]int64),
	}, nil
}

func (r *repository) RunID() string { return r.runID }

func (r *repository) StartRun(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, insertRunSQL,
		r.runID,
		run.StartedAt.Unix(),
		run.Interval.Milliseconds(),
		strings.Join(run.Fields, ","),
		strings.Join(run.Sources, ","),
	)
	if err != nil {
		return errors.New().Wrap(ErrTransactionFailed, err)
	}
	return nil
}

func (r *repository) FinishRun(ctx context.Context, s Summary) error {
	_, err := r.db.ExecContext(ctx, finishRunSQL,
		s.StoppedAt.Unix(),
		int64(s.Ticks),
		int64(s.Records),
		int64(s.PartialFailures),
		s.Reason,
		r.runID,
	)
	if err != nil {
		return errors.New().Wrap(ErrTransactionFailed, err)
	}
	return nil
}

func (r *repository) FileOpened(info dataset.FileInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(insertDatasetSQL,
		r.runID,
		info.Path,
		string(info.Format),
		string(info.JSONMode),
		int64(boolToInt(info.Appended)),
		info.OpenedAt.Unix(),
	)
	if err != nil {
		r.logger.Warn().Code(err).Str("path", info.Path).Msg("Failed to catalog dataset")
		return
	}

	id, err := res.LastInsertId()
	if err != nil {
		r.logger.Warn().Code(err).Str("path", info.Path).Msg("Failed to read catalog row id")
		return
	}
	r.open[info.Path] = id
}

func (r *repository) FileClosed(stats dataset.FileStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.open[stats.Path]
	if !ok {
		r.logger.Debug().Str("path", stats.Path).Msg("Closed dataset was never cataloged")
		return
	}
	delete(r.open, stats.Path)

	if _, err := r.db.Exec(closeDatasetSQL,
		stats.ClosedAt.Unix(),
		int64(stats.Records),
		stats.Bytes,
		id,
	); err != nil {
		r.logger.Warn().Code(err).Str("path", stats.Path).Msg("Failed to update cataloged dataset")
	}
}

func (r *repository) Datasets(ctx context.Context, runID string) ([]Entry, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, selectDatasetsSQL, runID)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			format   string
			mode     string
			appended int
			openedAt int64
			closedAt sql.NullInt64
		)
		if err := rows.Scan(&e.RunID, &e.Path, &format, &mode, &appended, &openedAt, &closedAt, &e.Records, &e.Bytes); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		e.Format = dataset.Format(format)
		e.JSONMode = dataset.JSONMode(mode)
		e.Appended = appended == 1
		e.OpenedAt = time.Unix(openedAt, 0).UTC()
		if closedAt.Valid {
			e.ClosedAt = time.Unix(closedAt.Int64, 0).UTC()
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return entries, nil
}

func (r *repository) Close() error {
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Dataset catalog closed")

	return nil
}
