package utils

import (
	"fmt"
	"strings"

	"github.com/notargets/gocca"
)

// DeviceProps maps a backend name to OCCA device properties. Strings that
// already look like JSON are passed through.
func DeviceProps(backend string) (string, error) {
	if strings.HasPrefix(strings.TrimSpace(backend), "{") {
		return backend, nil
	}
	switch strings.ToLower(backend) {
	case "serial":
		return `{"mode": "Serial"}`, nil
	case "openmp":
		return `{"mode": "OpenMP"}`, nil
	case "cuda":
		return `{"mode": "CUDA", "device_id": 0}`, nil
	case "opencl":
		return `{"mode": "OpenCL", "platform_id": 0, "device_id": 0}`, nil
	}
	return "", fmt.Errorf("unknown device backend %q", backend)
}

// CreateDevice opens the named backend
func CreateDevice(backend string) (*gocca.OCCADevice, error) {
	props, err := DeviceProps(backend)
	if err != nil {
		return nil, err
	}
	device, err := gocca.NewDevice(props)
	if err != nil {
		return nil, fmt.Errorf("creating %s device: %w", backend, err)
	}
	return device, nil
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	for _, backend := range []string{"openmp", "cuda", "serial"} {
		device, err := CreateDevice(backend)
		if err == nil {
			fmt.Printf("Created %s Device\n", device.Mode())
			return device
		}
	}
	panic("Failed to create any Device")
}
