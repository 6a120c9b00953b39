package runner

import (
	"time"
	"unsafe"

	"github.com/notargets/gocca"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/notargets/MeshKernel/element"
	"github.com/notargets/MeshKernel/runner/builder"
	"github.com/notargets/MeshKernel/utils"
)

type linkKey struct {
	src, dst element.Kind
}

// Runner is one runtime instance bound to one device. All buffers, links and
// kernels it creates belong to it and die with Free.
type Runner struct {
	*builder.Builder
	Device *gocca.OCCADevice
	Config Config

	ownsDevice bool
	buffers    map[string]*Buffer
	elements   [element.NumKinds]*elementBuffers
	links      map[linkKey]*deviceLink
	kernels    []*Kernel
	reducers   map[string]*gocca.OCCAKernel

	paramsType   string
	params       *Buffer
	counters     counters
	reduceEvents []Event
}

// NewRunner creates a runtime instance on an existing device. The caller
// keeps ownership of the device.
func NewRunner(device *gocca.OCCADevice, cfg Config) (*Runner, error) {
	if device == nil {
		return nil, errors.Wrap(ErrInvalid, "nil device")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	floatType, _ := cfg.floatType()
	wgs, err := cfg.workgroupSize(device.Mode())
	if err != nil {
		return nil, err
	}
	toolkit, err := cfg.toolkit()
	if err != nil {
		return nil, err
	}

	kr := &Runner{
		Builder: builder.NewBuilder(builder.Config{
			FloatType:     floatType,
			WorkgroupSize: wgs,
			Toolkit:       toolkit,
		}),
		Device:   device,
		Config:   cfg,
		buffers:  make(map[string]*Buffer),
		links:    make(map[linkKey]*deviceLink),
		reducers: make(map[string]*gocca.OCCAKernel),
	}
	klog.V(1).Infof("runner on %s device, workgroup size %d, real_t %s", device.Mode(), wgs, floatType)
	return kr, nil
}

// Open creates the device named by cfg.Device and a runtime instance owning it
func Open(cfg Config) (*Runner, error) {
	cfg = cfg.withDefaults()
	device, err := utils.NewDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	kr, err := NewRunner(device, cfg)
	if err != nil {
		device.Free()
		return nil, err
	}
	kr.ownsDevice = true
	return kr, nil
}

// Mode returns the backend mode of the device
func (kr *Runner) Mode() string {
	return kr.Device.Mode()
}

// SetParams defines the parameter struct shared by every kernel compiled
// afterwards and uploads its value. typedef must define params_t.
func (kr *Runner) SetParams(typedef string, ptr unsafe.Pointer, bytes int) error {
	if bytes <= 0 || ptr == nil {
		return errors.Wrapf(ErrInvalid, "params of %d bytes", bytes)
	}
	if kr.params == nil || kr.params.Bytes() != int64(bytes) {
		if kr.params != nil {
			kr.FreeBuffer(kr.params)
		}
		b, err := kr.NewBuffer("params", element.Untyped, builder.Item(builder.INT32, 1), 1, (bytes+3)/4, ReadOnly)
		if err != nil {
			return err
		}
		kr.params = b
		for _, k := range kr.kernels {
			k.unbind()
		}
	}
	copy(kr.params.host, unsafe.Slice((*byte)(ptr), bytes))
	kr.paramsType = typedef
	return kr.Upload(kr.params)
}

// paramsBuffer returns the params buffer, allocating a placeholder when no
// parameters were set
func (kr *Runner) paramsBuffer() (*Buffer, error) {
	if kr.params != nil {
		return kr.params, nil
	}
	var zero int32
	if err := kr.SetParams("", unsafe.Pointer(&zero), 4); err != nil {
		return nil, err
	}
	return kr.params, nil
}

// KernelTime returns the accumulated device time of a kernel and its high
// degree companion
func (kr *Runner) KernelTime(k *Kernel) time.Duration {
	var total time.Duration
	for ; k != nil; k = k.high {
		for _, e := range k.events {
			total += e.Elapsed()
		}
	}
	return total
}

// ReductionTime returns the accumulated device time of all reductions
func (kr *Runner) ReductionTime() time.Duration {
	var total time.Duration
	for _, e := range kr.reduceEvents {
		total += e.Elapsed()
	}
	return total
}

// Free releases all resources
func (kr *Runner) Free() {
	for _, k := range kr.kernels {
		k.free()
	}
	kr.kernels = nil
	for _, kernel := range kr.reducers {
		kernel.Free()
	}
	kr.reducers = nil
	for _, b := range kr.buffers {
		kr.release(b)
	}
	kr.buffers = nil
	kr.links = nil
	if kr.ownsDevice {
		kr.Device.Free()
	}
	klog.V(1).Infof("runner freed: %s", kr.counters.stats(0))
}
