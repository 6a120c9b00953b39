package runner

import (
	"time"

	"github.com/notargets/gocca"
	"github.com/pkg/errors"

	"github.com/notargets/MeshKernel/element"
	"github.com/notargets/MeshKernel/runner/builder"
)

// Event records the host side timestamps of one device launch
type Event struct {
	Submit time.Time
	Start  time.Time
	End    time.Time
}

// Elapsed is the time from submission to completion
func (e Event) Elapsed() time.Duration { return e.End.Sub(e.Submit) }

// Kernel is a compiled mesh kernel covering [offset, offset+count) of its
// target kind, chained to the kernel covering the high degree suffix
type Kernel struct {
	Name   string
	Target element.Kind

	kr         *Runner
	source     string
	kernel     *gocca.OCCAKernel
	parameters []builder.KernelParameter
	buffers    []*Buffer // link tables then bound buffers, in parameter order
	params     *Buffer
	args       []interface{}
	offset     int
	count      int
	high       *Kernel
	copyTo     []*Buffer
	copyBack   []*Buffer
	events     []Event
}

// Source returns the generated device source
func (k *Kernel) Source() string { return k.source }

// High returns the kernel covering the high degree suffix, nil when no
// bound link overflows
func (k *Kernel) High() *Kernel { return k.high }

// Range returns the first entity and the entity count the kernel covers
func (k *Kernel) Range() (offset, count int) { return k.offset, k.count }

// Events returns the recorded launches of this kernel alone
func (k *Kernel) Events() []Event { return k.events }

func (k *Kernel) unbind() {
	for ; k != nil; k = k.high {
		k.args = nil
	}
}

func (k *Kernel) free() {
	for ; k != nil; k = k.high {
		if k.kernel != nil {
			k.kernel.Free()
			k.kernel = nil
		}
		k.args = nil
	}
}

// bind builds the argument list once; it is reused by later launches
func (k *Kernel) bind() error {
	for _, b := range k.buffers {
		if b.freed {
			k.args = nil
			break
		}
	}
	if k.args != nil {
		return nil
	}
	if k.params == nil || k.params.freed {
		params, err := k.kr.paramsBuffer()
		if err != nil {
			return err
		}
		k.params = params
	}
	args, err := k.buildKernelArguments()
	if err != nil {
		return err
	}
	k.args = args
	return nil
}

// launch runs one range and records its event
func (k *Kernel) launch() (time.Duration, error) {
	if k.count == 0 {
		return 0, nil
	}
	if k.kernel == nil {
		return 0, errors.Wrapf(ErrInvalid, "kernel %s was freed", k.Name)
	}
	if err := k.bind(); err != nil {
		return 0, err
	}
	e := Event{Submit: time.Now()}
	k.kr.Device.Finish()
	e.Start = time.Now()
	if err := k.kernel.RunWithArgs(k.args...); err != nil {
		return 0, errors.Wrapf(ErrEnqueue, "kernel %s: %v", k.Name, err)
	}
	k.kr.Device.Finish()
	e.End = time.Now()
	k.events = append(k.events, e)
	return e.Elapsed(), nil
}

// Launch uploads the CopyTo buffers, runs the kernel over its whole target
// population, then downloads the CopyBack buffers. It returns the device
// time of the launch.
func (kr *Runner) Launch(k *Kernel) (time.Duration, error) {
	if k == nil || k.kr != kr {
		return 0, errors.Wrap(ErrInvalid, "kernel not owned by this runner")
	}
	if err := kr.executeCopyActions(k.copyTo, CopyTo); err != nil {
		return 0, errors.WithMessagef(err, "pre-kernel copy for %s failed", k.Name)
	}
	var total time.Duration
	for part := k; part != nil; part = part.high {
		d, err := part.launch()
		if err != nil {
			return total, err
		}
		total += d
	}
	if err := kr.executeCopyActions(k.copyBack, CopyBack); err != nil {
		return total, errors.WithMessagef(err, "post-kernel copy for %s failed", k.Name)
	}
	return total, nil
}

// FreeKernel releases a compiled kernel and its high degree companion
func (kr *Runner) FreeKernel(k *Kernel) {
	for i, kk := range kr.kernels {
		if kk == k {
			kr.kernels = append(kr.kernels[:i], kr.kernels[i+1:]...)
			k.free()
			return
		}
	}
}
