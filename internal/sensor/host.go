package sensor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"codeberg.org/mutker/devtelemetry/internal/telemetry"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	SourceHost   = "host"
	FieldHWLabel = "hw_label"

	unknownCPU = "UnknownCPU"
)

// Host labels the recording machine by CPU model and installed RAM so
// datasets from different hardware can be told apart. The label is
// computed once.
type Host struct {
	mu    sync.Mutex
	label string
}

func NewHost() *Host {
	return &Host{}
}

func (*Host) Name() string { return SourceHost }

func (*Host) Fields() []telemetry.Field {
	return []telemetry.Field{{Name: FieldHWLabel, Type: telemetry.TypeText}}
}

func (h *Host) Read(ctx context.Context) (map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.label != "" {
		return map[string]any{FieldHWLabel: h.label}, nil
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}

	model := unknownCPU
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		model = infos[0].ModelName
	}

	h.label = hardwareLabel(model, vm.Total)

	return map[string]any{FieldHWLabel: h.label}, nil
}

func hardwareLabel(model string, totalBytes uint64) string {
	ram := int(math.Round(float64(totalBytes) / bytesPerGB))
	label := fmt.Sprintf("%s-RAM%dGB", strings.TrimSpace(model), ram)

	return strings.NewReplacer(" ", "_", "(R)", "", "(TM)", "").Replace(label)
}
