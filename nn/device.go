package nn

import (
	"fmt"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"

	"github.com/openfluke/dynsparse/gpu"
)

// Device names where a network's masking kernels run
type Device string

const (
	DeviceCPU Device = "cpu"
	DeviceGPU Device = "gpu"
)

// DeviceInfo describes the host a network is placed on
type DeviceInfo struct {
	Name          string
	PhysicalCores int
	LogicalCores  int
	AVX2          bool
	AVX512        bool
}

func (d *DeviceInfo) String() string {
	return fmt.Sprintf("%s (%d cores / %d threads, avx2=%v avx512=%v)",
		d.Name, d.PhysicalCores, d.LogicalCores, d.AVX2, d.AVX512)
}

func cpuInfo() *DeviceInfo {
	return &DeviceInfo{
		Name:          cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		AVX2:          cpuid.CPU.Supports(cpuid.AVX2),
		AVX512:        cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ),
	}
}

// To places the network on "cpu" or "gpu". GPU placement only succeeds when
// a WebGPU adapter can be initialized; the network is left unchanged otherwise.
func (n *Network) To(device string) error {
	switch Device(device) {
	case DeviceCPU:
		n.device = DeviceCPU
		n.deviceInfo = cpuInfo()
		return nil
	case DeviceGPU:
		if err := gpu.EnsureGPU(); err != nil {
			return errors.Wrap(ErrNoGPU, err.Error())
		}
		n.device = DeviceGPU
		n.deviceInfo = nil
		return nil
	}
	return errors.Wrapf(ErrUnknownDevice, "%q", device)
}

// Device returns where the network is currently placed
func (n *Network) Device() Device {
	return n.device
}

// DeviceInfo returns host details for CPU placement, nil otherwise
func (n *Network) DeviceInfo() *DeviceInfo {
	if n.device != DeviceCPU {
		return nil
	}
	if n.deviceInfo == nil {
		n.deviceInfo = cpuInfo()
	}
	return n.deviceInfo
}

// ApplyMask multiplies values elementwise by mask (true = 1, false = 0) in place,
// on the network's device.
func (n *Network) ApplyMask(values []float32, mask []bool) error {
	if len(values) != len(mask) {
		return &ShapeError{Layer: -1, Expected: len(values), Got: len(mask)}
	}

	if n.device == DeviceGPU {
		bits := make([]float32, len(mask))
		for i, m := range mask {
			if m {
				bits[i] = 1
			}
		}
		out, err := gpu.MultiplyMask(values, bits)
		if err != nil {
			return errors.Wrap(err, "gpu mask multiply")
		}
		copy(values, out)
		return nil
	}

	for i, m := range mask {
		if !m {
			values[i] = 0
		}
	}
	return nil
}
