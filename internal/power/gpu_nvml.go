//go:build linux && cgo && !nonvml

package power

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

type nvmlGPU struct {
	dev nvml.Device
}

// OpenGPU initializes NVML and opens device 0.
func OpenGPU() (GPUSource, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml init: %s", nvml.ErrorString(ret))
	}
	dev, ret := nvml.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		nvml.Shutdown()
		return nil, fmt.Errorf("nvml device 0: %s", nvml.ErrorString(ret))
	}
	return &nvmlGPU{dev: dev}, nil
}

func (g *nvmlGPU) PowerMilliwatts() (uint32, error) {
	mw, ret := g.dev.GetPowerUsage()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml power usage: %s", nvml.ErrorString(ret))
	}
	return mw, nil
}

func (g *nvmlGPU) Close() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml shutdown: %s", nvml.ErrorString(ret))
	}
	return nil
}
