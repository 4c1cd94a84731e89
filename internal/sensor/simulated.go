package sensor

import (
	"context"
	"math/rand"
	"sync"

	"codeberg.org/mutker/devtelemetry/internal/telemetry"
)

const SourceSimulated = "simulated"

// Simulated produces synthetic readings for dry runs on machines without
// the real sensors: a battery draining by one percent per read and a
// temperature drifting around 25°C.
type Simulated struct {
	mu          sync.Mutex
	rng         *rand.Rand
	level       float64
	temperature float64
}

func NewSimulated(seed int64) *Simulated {
	return &Simulated{
		rng:         rand.New(rand.NewSource(seed)),
		level:       100,
		temperature: 25,
	}
}

func (*Simulated) Name() string { return SourceSimulated }

func (*Simulated) Fields() []telemetry.Field {
	return []telemetry.Field{
		{Name: telemetry.FieldBatteryLevel, Type: telemetry.TypeNumber},
		{Name: "temperature_c", Type: telemetry.TypeNumber},
	}
}

func (s *Simulated) Read(_ context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := s.level
	if s.level > 0 {
		s.level--
	} else {
		s.level = 100
	}

	s.temperature += s.rng.Float64() - 0.5

	return map[string]any{
		telemetry.FieldBatteryLevel: level,
		"temperature_c":             round2(s.temperature),
	}, nil
}
