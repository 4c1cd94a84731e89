package sensor

import (
	"context"
	"sync"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	SourceGPU = "gpu"

	milliWattsToWatts = 1000
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// GPU reads the first NVIDIA GPU through NVML. NVML is initialized on the
// first read so hosts without a driver only fail this source.
type GPU struct {
	mu          sync.Mutex
	initialized bool
	device      nvml.Device
}

func NewGPU() *GPU {
	return &GPU{}
}

func (*GPU) Name() string { return SourceGPU }

func (*GPU) Fields() []telemetry.Field {
	return []telemetry.Field{
		{Name: "gpu_temperature_c", Type: telemetry.TypeNumber},
		{Name: "gpu_fan_speed_percent", Type: telemetry.TypeNumber},
		{Name: "gpu_power_w", Type: telemetry.TypeNumber},
		{Name: "gpu_utilization_percent", Type: telemetry.TypeNumber},
	}
}

func (g *GPU) initialize() error {
	errFactory := errors.New()
	if g.initialized {
		return nil
	}

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return errFactory.Wrap(ErrGPUInitFailed, newNVMLError(ret))
	}

	device, ret := nvml.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		_ = nvml.Shutdown()
		return errFactory.Wrap(ErrGPUDeviceFailed, newNVMLError(ret))
	}

	g.device = device
	g.initialized = true

	return nil
}

func (g *GPU) Read(_ context.Context) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.initialize(); err != nil {
		return nil, err
	}

	values := make(map[string]any, 4)
	ok := 0

	if temp, ret := g.device.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		values["gpu_temperature_c"] = temp
		ok++
	}
	if speed, ret := g.device.GetFanSpeed(); ret == nvml.SUCCESS {
		values["gpu_fan_speed_percent"] = speed
		ok++
	}
	if power, ret := g.device.GetPowerUsage(); ret == nvml.SUCCESS {
		values["gpu_power_w"] = round2(float64(power) / milliWattsToWatts)
		ok++
	}
	if util, ret := g.device.GetUtilizationRates(); ret == nvml.SUCCESS {
		values["gpu_utilization_percent"] = util.Gpu
		ok++
	}

	if ok == 0 {
		return nil, errors.New().New(ErrGPUQueryFailed)
	}

	return values, nil
}

// Close shuts NVML down if it was initialized
func (g *GPU) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.initialized {
		return nil
	}
	g.initialized = false

	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return errors.New().Wrap(ErrGPUShutdownFailed, newNVMLError(ret))
	}
	return nil
}
