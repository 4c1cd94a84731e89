package sensor

import (
	"context"
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

const (
	SourceSystem = "system"

	bytesPerKB = 1024
	bytesPerGB = 1024 * 1024 * 1024
)

// ioCounters are cumulative byte counters sampled at one instant
type ioCounters struct {
	diskRead, diskWrite uint64
	netSent, netRecv    uint64
	diskOK, netOK       bool
	at                  time.Time
}

// systemStats abstracts the host queries so rates can be tested
type systemStats interface {
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (percent float64, usedBytes uint64, err error)
	DiskIO(ctx context.Context) (read, write uint64, err error)
	NetIO(ctx context.Context) (sent, recv uint64, err error)
}

// System reports CPU, memory, disk and network load. Disk and network are
// reported as KB/s over the time since the previous read.
type System struct {
	stats systemStats
	now   func() time.Time

	mu   sync.Mutex
	prev ioCounters
}

func NewSystem() *System {
	return newSystem(gopsutilStats{}, time.Now)
}

func newSystem(stats systemStats, now func() time.Time) *System {
	s := &System{stats: stats, now: now}

	// Prime the counters so the first tick reports rates, not totals
	ctx, cancel := context.WithTimeout(context.Background(), defaultReadTimeout)
	defer cancel()
	_, _ = stats.CPUPercent(ctx)
	s.prev = s.sample(ctx)

	return s
}

func (*System) Name() string { return SourceSystem }

func (*System) Fields() []telemetry.Field {
	return []telemetry.Field{
		{Name: "cpu_percent", Type: telemetry.TypeNumber},
		{Name: "ram_percent", Type: telemetry.TypeNumber},
		{Name: "ram_used_gb", Type: telemetry.TypeNumber},
		{Name: "disk_read_kb_s", Type: telemetry.TypeNumber},
		{Name: "disk_write_kb_s", Type: telemetry.TypeNumber},
		{Name: "net_sent_kb_s", Type: telemetry.TypeNumber},
		{Name: "net_recv_kb_s", Type: telemetry.TypeNumber},
	}
}

func (s *System) Read(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]any, 7)
	failed := 0

	if pct, err := s.stats.CPUPercent(ctx); err == nil {
		values["cpu_percent"] = round2(pct)
	} else {
		failed++
	}

	if pct, used, err := s.stats.Memory(ctx); err == nil {
		values["ram_percent"] = round2(pct)
		values["ram_used_gb"] = round2(float64(used) / bytesPerGB)
	} else {
		failed++
	}

	cur := s.sample(ctx)
	elapsed := cur.at.Sub(s.prev.at).Seconds()

	if cur.diskOK && s.prev.diskOK && elapsed > 0 {
		values["disk_read_kb_s"] = rate(s.prev.diskRead, cur.diskRead, elapsed)
		values["disk_write_kb_s"] = rate(s.prev.diskWrite, cur.diskWrite, elapsed)
	}
	if cur.netOK && s.prev.netOK && elapsed > 0 {
		values["net_sent_kb_s"] = rate(s.prev.netSent, cur.netSent, elapsed)
		values["net_recv_kb_s"] = rate(s.prev.netRecv, cur.netRecv, elapsed)
	}
	if !cur.diskOK {
		failed++
	}
	if !cur.netOK {
		failed++
	}
	s.prev = cur

	if failed == 4 {
		return nil, errors.New().WithMessage(ErrSensorUnavailable, "all system queries failed")
	}

	return values, nil
}

func (s *System) sample(ctx context.Context) ioCounters {
	c := ioCounters{at: s.now()}

	if r, w, err := s.stats.DiskIO(ctx); err == nil {
		c.diskRead, c.diskWrite, c.diskOK = r, w, true
	}
	if sent, recv, err := s.stats.NetIO(ctx); err == nil {
		c.netSent, c.netRecv, c.netOK = sent, recv, true
	}

	return c
}

// rate returns KB/s, or nil after a counter reset
func rate(prev, cur uint64, seconds float64) any {
	if cur < prev {
		return nil
	}
	return round2(float64(cur-prev) / bytesPerKB / seconds)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

type gopsutilStats struct{}

func (gopsutilStats) CPUPercent(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, errors.New().WithMessage(ErrSensorUnavailable, "no cpu counters")
	}
	return pcts[0], nil
}

func (gopsutilStats) Memory(ctx context.Context) (float64, uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return vm.UsedPercent, vm.Used, nil
}

func (gopsutilStats) DiskIO(ctx context.Context) (uint64, uint64, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	var read, write uint64
	for _, c := range counters {
		read += c.ReadBytes
		write += c.WriteBytes
	}
	return read, write, nil
}

func (gopsutilStats) NetIO(ctx context.Context) (uint64, uint64, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, 0, err
	}
	if len(counters) == 0 {
		return 0, 0, errors.New().WithMessage(ErrSensorUnavailable, "no network counters")
	}
	return counters[0].BytesSent, counters[0].BytesRecv, nil
}
