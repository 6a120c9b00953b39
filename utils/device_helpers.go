package utils

import (
	"strings"

	"github.com/notargets/gocca"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// selectors maps device shorthands to OCCA property strings
var selectors = map[string]string{
	"serial": `{"mode": "Serial"}`,
	"openmp": `{"mode": "OpenMP"}`,
	"cuda":   `{"mode": "CUDA", "device_id": 0}`,
	"hip":    `{"mode": "HIP", "device_id": 0}`,
	"opencl": `{"mode": "OpenCL", "platform_id": 0, "device_id": 0}`,
}

// DeviceProps expands a shorthand ("serial", "openmp", "cuda", ...) into
// OCCA device properties. Anything else is passed through as JSON.
func DeviceProps(selector string) string {
	if props, ok := selectors[strings.ToLower(strings.TrimSpace(selector))]; ok {
		return props
	}
	return selector
}

// NewDevice creates the device named by a shorthand or JSON selector
func NewDevice(selector string) (*gocca.OCCADevice, error) {
	props := DeviceProps(selector)
	device, err := gocca.NewDevice(props)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create device %s", props)
	}
	klog.V(1).Infof("created %s device", device.Mode())
	return device, nil
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	// OpenMP, then CUDA, then fall back to Serial
	for _, name := range []string{"openmp", "cuda", "serial"} {
		device, err := NewDevice(name)
		if err == nil {
			return device
		}
		klog.V(2).Infof("test device %s unavailable: %v", name, err)
	}

	// Should not reach here
	panic("Failed to create any Device")
}
