package catalog_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/catalog"
	"codeberg.org/mutker/devtelemetry/internal/dataset"
	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/logger"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRecordsDatasets(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opened := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	c, err := catalog.New(catalog.Config{DBPath: filepath.Join(dir, "catalog.db")}, logger.Nop())
	require.NoError(t, err)

	_, err = uuid.Parse(c.RunID())
	require.NoError(t, err, "run ids are uuids")

	require.NoError(t, c.StartRun(ctx, catalog.Run{
		StartedAt: opened,
		Interval:  5 * time.Second,
		Fields:    []string{"timestamp", "battery_level"},
		Sources:   []string{"battery"},
	}))

	info := dataset.FileInfo{
		Path:     filepath.Join(dir, "telemetry_20240501T120000Z.csv"),
		Format:   dataset.FormatCSV,
		OpenedAt: opened,
	}
	c.FileOpened(info)
	c.FileClosed(dataset.FileStats{
		FileInfo: info,
		Records:  3,
		Bytes:    120,
		ClosedAt: opened.Add(15 * time.Second),
	})

	second := dataset.FileInfo{
		Path:     filepath.Join(dir, "telemetry_20240501T120015Z.csv"),
		Format:   dataset.FormatCSV,
		OpenedAt: opened.Add(15 * time.Second),
	}
	c.FileOpened(second)

	entries, err := c.Datasets(ctx, c.RunID())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, info.Path, entries[0].Path)
	assert.Equal(t, dataset.FormatCSV, entries[0].Format)
	assert.Equal(t, 3, entries[0].Records)
	assert.Equal(t, int64(120), entries[0].Bytes)
	assert.Equal(t, opened.Add(15*time.Second), entries[0].ClosedAt)

	assert.Equal(t, second.Path, entries[1].Path)
	assert.True(t, entries[1].ClosedAt.IsZero(), "file still open")

	require.NoError(t, c.FinishRun(ctx, catalog.Summary{
		StoppedAt: opened.Add(time.Minute),
		Ticks:     4,
		Records:   4,
		Reason:    "max_ticks",
	}))
	require.NoError(t, c.Close())
}

func TestCatalogKeepsRunsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	run := catalog.Run{StartedAt: time.Now(), Interval: time.Second, Fields: []string{"timestamp"}}

	first, err := catalog.New(catalog.Config{DBPath: path, RunID: "first"}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, first.StartRun(ctx, run))
	first.FileOpened(dataset.FileInfo{Path: "a.csv", Format: dataset.FormatCSV, OpenedAt: time.Now()})
	require.NoError(t, first.Close())

	second, err := catalog.New(catalog.Config{DBPath: path, RunID: "second"}, logger.Nop())
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, "second", second.RunID())

	entries, err := second.Datasets(ctx, "first")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCatalogBacksUpOnSchemaChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")
	backups := filepath.Join(dir, "backups")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'));
		CREATE TABLE datasets (legacy TEXT);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	c, err := catalog.New(catalog.Config{DBPath: path}, logger.Nop())
	require.NoError(t, err)
	defer c.Close()

	matches, err := filepath.Glob(filepath.Join(backups, "catalog_v99_*.db"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	backup, err := sql.Open("sqlite3", matches[0])
	require.NoError(t, err)
	defer backup.Close()
	var version int
	require.NoError(t, backup.QueryRow("SELECT version FROM schema_versions").Scan(&version))
	assert.Equal(t, 99, version, "backup keeps the old catalog")

	// The legacy datasets table was replaced
	ctx := context.Background()
	require.NoError(t, c.StartRun(ctx, catalog.Run{StartedAt: time.Now(), Interval: time.Second}))
	c.FileOpened(dataset.FileInfo{Path: filepath.Join(dir, "a.csv"), Format: dataset.FormatCSV, OpenedAt: time.Now()})
	entries, err := c.Datasets(ctx, c.RunID())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCatalogDisabled(t *testing.T) {
	c, err := catalog.New(catalog.Config{RunID: "run"}, logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, "run", c.RunID())
	c.FileOpened(dataset.FileInfo{Path: "x.csv"})
	entries, err := c.Datasets(context.Background(), "run")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, c.Close())
}

func TestCatalogRejectsUnusableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := catalog.New(catalog.Config{DBPath: filepath.Join(blocker, "catalog.db")}, logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, catalog.ErrStorageInit))
}
