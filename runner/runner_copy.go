package runner

import (
	"unsafe"

	"github.com/pkg/errors"
)

// ============================================================================
// Public API for copying data from device to host
// ============================================================================

// CopyBufferToHost drains the queue and returns the full device extent of a
// buffer as a fresh slice. T must be the scalar type of the buffer.
func CopyBufferToHost[T any](kr *Runner, name string) ([]T, error) {
	b, err := typedBuffer[T](kr, name)
	if err != nil {
		return nil, err
	}
	return CopyLinesToHost[T](kr, name, 0, b.Lines)
}

// CopyLinesToHost returns lines [first, first+n) of a buffer read straight
// from the device. The host mirror is left untouched.
func CopyLinesToHost[T any](kr *Runner, name string, first, n int) ([]T, error) {
	b, err := typedBuffer[T](kr, name)
	if err != nil {
		return nil, err
	}
	if first < 0 || n < 0 || first+n > b.Lines {
		return nil, errors.Wrapf(ErrInvalid, "buffer %s: lines [%d,%d) out of range [0,%d)",
			name, first, first+n, b.Lines)
	}

	var sample T
	perLine := b.LineBytes() / int(unsafe.Sizeof(sample))
	result := make([]T, n*perLine)
	if n == 0 || b.mem == nil {
		return result, nil
	}

	kr.Device.Finish()
	bytes := int64(n * b.LineBytes())
	b.mem.CopyToWithOffset(
		unsafe.Pointer(&result[0]),
		bytes,
		int64(first*b.LineBytes()),
	)
	kr.counters.transferred += bytes
	return result, nil
}

func typedBuffer[T any](kr *Runner, name string) (*Buffer, error) {
	b, exists := kr.buffers[name]
	if !exists {
		return nil, errors.Wrapf(ErrInvalid, "buffer %s not found", name)
	}
	var sample T
	requestedType, ok := GetDataTypeFromSample(sample)
	if !ok || requestedType != b.Item.Scalar {
		return nil, errors.Wrapf(ErrInvalid, "type mismatch: buffer %s holds %v, requested %T",
			name, b.Item.Scalar, sample)
	}
	return b, nil
}
