package runner

import (
	"time"

	"github.com/notargets/gocca"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/MeshKernel/runner/builder"
)

// ReductionSuffix names the partial result companion of a reduced buffer
const ReductionSuffix = "_red"

// Reduce computes min, max or sum over every scalar of a float buffer. The
// device reduces within each workgroup and the host finishes over the
// partial results.
func (kr *Runner) Reduce(b *Buffer, op builder.ReduceOp) (float64, time.Duration, error) {
	if err := kr.checkBuffer(b); err != nil {
		return 0, 0, err
	}
	if !op.Valid() {
		return 0, 0, errors.Wrapf(ErrInvalid, "reduction operator %d", int(op))
	}
	dt := b.Item.Scalar
	if !dt.IsFloat() || !b.Item.IsScalar() || b.ItemsPerLine != 1 || b.Lines == 0 {
		return 0, 0, errors.Wrapf(ErrPrecondition, "cannot reduce %s: need a non empty scalar float buffer", b)
	}

	n := b.Lines
	blocks := (n + kr.WorkgroupSize - 1) / kr.WorkgroupSize
	red, err := kr.reductionBuffer(b, blocks)
	if err != nil {
		return 0, 0, err
	}
	kernel, err := kr.reducer(op, dt)
	if err != nil {
		return 0, 0, err
	}

	e := Event{Submit: time.Now()}
	kr.Device.Finish()
	e.Start = time.Now()
	if err := kernel.RunWithArgs(int32(n), b.mem, red.mem); err != nil {
		return 0, 0, errors.Wrapf(ErrEnqueue, "%s of %s: %v", op, b.Name, err)
	}
	kr.Device.Finish()
	e.End = time.Now()
	kr.reduceEvents = append(kr.reduceEvents, e)

	kr.downloadPrefix(red, int64(blocks*dt.Size()))
	partial := make([]float64, blocks)
	if dt == builder.Float64 {
		copy(partial, red.Float64s())
	} else {
		for i, v := range red.Float32s()[:blocks] {
			partial[i] = float64(v)
		}
	}

	var result float64
	switch op {
	case builder.OpMin:
		result = floats.Min(partial)
	case builder.OpMax:
		result = floats.Max(partial)
	default:
		result = floats.Sum(partial)
	}
	return result, e.Elapsed(), nil
}

// reductionBuffer returns the companion of b holding at least blocks partial
// results, reallocating it when b grew
func (kr *Runner) reductionBuffer(b *Buffer, blocks int) (*Buffer, error) {
	if b.reduction != nil && b.reduction.Lines >= blocks {
		return b.reduction, nil
	}
	if b.reduction != nil {
		kr.FreeBuffer(b.reduction)
		b.reduction = nil
	}
	red, err := kr.NewBuffer(b.Name+ReductionSuffix, b.Kind, b.Item, 1, blocks, WriteOnly)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to allocate reduction buffer of %s", b.Name)
	}
	b.reduction = red
	return red, nil
}

// reducer returns the reduction kernel for op over dt, building it once
func (kr *Runner) reducer(op builder.ReduceOp, dt builder.DataType) (*gocca.OCCAKernel, error) {
	name := builder.ReductionKernelName(op, dt)
	if kernel, ok := kr.reducers[name]; ok {
		return kernel, nil
	}
	source, err := kr.GenerateReduction(op, dt)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "%v", err)
	}
	kr.saveSource(name, source)
	kernel, err := kr.buildKernel(source, name)
	if err != nil {
		return nil, err
	}
	kr.reducers[name] = kernel
	return kernel, nil
}
