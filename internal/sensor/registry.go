package sensor

import (
	"strings"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
)

// DefaultSources are sampled when no sources are configured
var DefaultSources = []string{SourceBattery, SourceSystem, SourceProcesses, SourceHost}

// BuildConfig carries the per-source settings taken from the collection
// config
type BuildConfig struct {
	BatteryPath string
	ProcessTopN int
	Seed        int64
}

// Build instantiates the named sources in the given order
func Build(names []string, cfg BuildConfig) ([]Source, error) {
	errFactory := errors.New()

	seen := make(map[string]bool, len(names))
	sources := make([]Source, 0, len(names))

	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case SourceBattery:
			sources = append(sources, NewBattery(cfg.BatteryPath))
		case SourceSystem:
			sources = append(sources, NewSystem())
		case SourceProcesses:
			sources = append(sources, NewProcesses(cfg.ProcessTopN))
		case SourceHost:
			sources = append(sources, NewHost())
		case SourceGPU:
			sources = append(sources, NewGPU())
		case SourceSimulated:
			seed := cfg.Seed
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			sources = append(sources, NewSimulated(seed))
		default:
			return nil, errFactory.WithData(ErrUnknownSource, name)
		}
	}

	return sources, nil
}

// IsKnown reports whether name is a buildable source
func IsKnown(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SourceBattery, SourceSystem, SourceProcesses, SourceHost, SourceGPU, SourceSimulated:
		return true
	default:
		return false
	}
}
