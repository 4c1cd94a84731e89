package catalog

import "path/filepath"

const (
	defaultDirPerm = 0o755
	backupDirName  = "backups"
)

// Config controls the dataset catalog. An empty DBPath disables it.
type Config struct {
	DBPath string
	// BackupDir receives a copy of the database before a schema migration.
	// Defaults to a backups directory next to DBPath.
	BackupDir string
	// RunID identifies this collection run. Generated when empty.
	RunID string
}

func (c Config) Enabled() bool {
	return c.DBPath != ""
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), backupDirName)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
