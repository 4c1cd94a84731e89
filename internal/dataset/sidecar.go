package dataset

import (
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/telemetry"
	"gopkg.in/yaml.v3"
)

const sidecarSuffix = ".schema.yaml"

// sidecar is the schema declaration written next to every dataset file
type sidecar struct {
	Format    Format            `yaml:"format"`
	JSONMode  JSONMode          `yaml:"json_mode,omitempty"`
	NoData    string            `yaml:"no_data_marker"`
	CreatedAt time.Time         `yaml:"created_at"`
	Schema    *telemetry.Schema `yaml:"schema"`
}

func sidecarPath(path string) string {
	return path + sidecarSuffix
}

func readSidecar(path string) (*sidecar, error) {
	data, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return nil, err
	}

	var sc sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}

	return &sc, nil
}

// writeSidecar writes atomically so a crash never leaves a torn schema
func writeSidecar(path string, sc *sidecar) error {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return err
	}

	target := sidecarPath(path)
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), defaultFilePerm); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), target)
}

// matches reports whether an existing sidecar declares the same layout
func (sc *sidecar) matches(format Format, mode JSONMode, marker string, schema *telemetry.Schema) bool {
	if sc.Format != format || !schema.Equal(sc.Schema) {
		return false
	}
	if format == FormatJSON && sc.JSONMode != mode {
		return false
	}
	return format != FormatCSV || sc.NoData == marker
}
