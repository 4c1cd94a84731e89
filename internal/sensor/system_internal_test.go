package sensor

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	cpu              float64
	memPct           float64
	memUsed          uint64
	diskRead, diskWr uint64
	netSent, netRecv uint64
	diskErr          error
}

func (f *fakeStats) CPUPercent(context.Context) (float64, error) { return f.cpu, nil }

func (f *fakeStats) Memory(context.Context) (float64, uint64, error) {
	return f.memPct, f.memUsed, nil
}

func (f *fakeStats) DiskIO(context.Context) (uint64, uint64, error) {
	return f.diskRead, f.diskWr, f.diskErr
}

func (f *fakeStats) NetIO(context.Context) (uint64, uint64, error) {
	return f.netSent, f.netRecv, nil
}

func TestSystemRates(t *testing.T) {
	stats := &fakeStats{cpu: 12.346, memPct: 50, memUsed: 8 * bytesPerGB}
	clock := time.Unix(1000, 0)
	now := func() time.Time { return clock }

	sys := newSystem(stats, now)

	stats.diskRead = 10 * bytesPerKB
	stats.diskWr = 20 * bytesPerKB
	stats.netSent = 5 * bytesPerKB
	stats.netRecv = 1 * bytesPerKB
	clock = clock.Add(5 * time.Second)

	values, err := sys.Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12.35, values["cpu_percent"])
	assert.Equal(t, 50.0, values["ram_percent"])
	assert.Equal(t, 8.0, values["ram_used_gb"])
	assert.Equal(t, 2.0, values["disk_read_kb_s"])
	assert.Equal(t, 4.0, values["disk_write_kb_s"])
	assert.Equal(t, 1.0, values["net_sent_kb_s"])
	assert.Equal(t, 0.2, values["net_recv_kb_s"])
}

func TestSystemCounterResetAndDiskFailure(t *testing.T) {
	stats := &fakeStats{diskRead: 100 * bytesPerKB, netSent: 100 * bytesPerKB}
	clock := time.Unix(1000, 0)
	sys := newSystem(stats, func() time.Time { return clock })

	stats.netSent = 0
	stats.diskErr = stderrors.New("no disks")
	clock = clock.Add(time.Second)

	values, err := sys.Read(context.Background())
	require.NoError(t, err)

	assert.Nil(t, values["net_sent_kb_s"])
	assert.NotContains(t, values, "disk_read_kb_s")
	assert.Contains(t, values, "cpu_percent")
}

func TestTopN(t *testing.T) {
	stats := []procStat{
		{pid: 3, name: "c", cpu: 5, mem: 1},
		{pid: 1, name: "a", cpu: 50, mem: 2},
		{pid: 2, name: "b", cpu: 5, mem: 30},
	}

	byCPU := topN(stats, 2, func(s procStat) float64 { return s.cpu })
	require.Len(t, byCPU, 2)
	assert.Equal(t, int32(1), byCPU[0].pid)
	assert.Equal(t, int32(2), byCPU[1].pid)

	values := map[string]any{}
	rankInto(values, "mem", topN(stats, 5, func(s procStat) float64 { return s.mem }))
	assert.Equal(t, "b", values["top_mem_1_name"])
	assert.Equal(t, 30.0, values["top_mem_1_value"])
	assert.Equal(t, int32(3), values["top_mem_3_pid"])
	assert.NotContains(t, values, "top_mem_4_pid")
}

func TestHardwareLabel(t *testing.T) {
	label := hardwareLabel("Intel(R) Core(TM) i7-8550U CPU @ 1.80GHz", 16*bytesPerGB-1024)
	assert.Equal(t, "Intel_Core_i7-8550U_CPU_@_1.80GHz-RAM16GB", label)
}

func TestProcessesFieldLayout(t *testing.T) {
	p := &Processes{n: 2}
	fields := p.Fields()

	require.Len(t, fields, 12)
	assert.Equal(t, "top_cpu_1_pid", fields[0].Name)
	assert.Equal(t, "top_mem_1_value", fields[5].Name)
	assert.Equal(t, "top_mem_2_value", fields[11].Name)
}
