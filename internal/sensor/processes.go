package sensor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	SourceProcesses   = "processes"
	DefaultProcessTop = 10
)

type procStat struct {
	pid  int32
	name string
	cpu  float64
	mem  float64
}

// Processes reports the top N processes by CPU and by memory. CPU percent
// is measured between consecutive reads, so a process seen for the first
// time reports 0.
type Processes struct {
	n int

	mu    sync.Mutex
	procs map[int32]*process.Process
}

func NewProcesses(n int) *Processes {
	if n <= 0 {
		n = DefaultProcessTop
	}

	p := &Processes{n: n, procs: make(map[int32]*process.Process)}

	ctx, cancel := context.WithTimeout(context.Background(), defaultReadTimeout)
	defer cancel()
	_, _ = p.collect(ctx)

	return p
}

func (*Processes) Name() string { return SourceProcesses }

func (p *Processes) Fields() []telemetry.Field {
	fields := make([]telemetry.Field, 0, p.n*6)
	for i := 1; i <= p.n; i++ {
		for _, kind := range []string{"cpu", "mem"} {
			prefix := fmt.Sprintf("top_%s_%d_", kind, i)
			fields = append(fields,
				telemetry.Field{Name: prefix + "pid", Type: telemetry.TypeNumber},
				telemetry.Field{Name: prefix + "name", Type: telemetry.TypeText},
				telemetry.Field{Name: prefix + "value", Type: telemetry.TypeNumber},
			)
		}
	}
	return fields
}

func (p *Processes) Read(ctx context.Context) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats, err := p.collect(ctx)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, p.n*6)
	rankInto(values, "cpu", topN(stats, p.n, func(s procStat) float64 { return s.cpu }))
	rankInto(values, "mem", topN(stats, p.n, func(s procStat) float64 { return s.mem }))

	return values, nil
}

func (p *Processes) collect(ctx context.Context) ([]procStat, error) {
	list, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.New().Wrap(ErrSensorUnavailable, err)
	}

	seen := make(map[int32]*process.Process, len(list))
	stats := make([]procStat, 0, len(list))

	for _, fresh := range list {
		proc, ok := p.procs[fresh.Pid]
		if !ok {
			proc = fresh
		}

		// Processes exit between listing and querying; skip them
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cpuPct, err := proc.PercentWithContext(ctx, 0)
		if err != nil {
			continue
		}
		memPct, err := proc.MemoryPercentWithContext(ctx)
		if err != nil {
			continue
		}

		seen[proc.Pid] = proc
		stats = append(stats, procStat{
			pid:  proc.Pid,
			name: name,
			cpu:  round2(cpuPct),
			mem:  round2(float64(memPct)),
		})
	}
	p.procs = seen

	return stats, nil
}

// topN returns the n highest entries by key, ties broken by pid
func topN(stats []procStat, n int, key func(procStat) float64) []procStat {
	sorted := make([]procStat, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool {
		ki, kj := key(sorted[i]), key(sorted[j])
		if ki != kj {
			return ki > kj
		}
		return sorted[i].pid < sorted[j].pid
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func rankInto(values map[string]any, kind string, ranked []procStat) {
	for i, s := range ranked {
		prefix := fmt.Sprintf("top_%s_%d_", kind, i+1)
		values[prefix+"pid"] = s.pid
		values[prefix+"name"] = s.name
		if kind == "cpu" {
			values[prefix+"value"] = s.cpu
		} else {
			values[prefix+"value"] = s.mem
		}
	}
}
