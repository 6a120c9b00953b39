package runner

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/notargets/MeshKernel/runner/builder"
)

// hostBytes views a typed host slice as raw bytes
func hostBytes(data interface{}) ([]byte, builder.DataType, error) {
	switch v := data.(type) {
	case []int32:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(v))), len(v)*4), builder.INT32, nil
	case []int64:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(v))), len(v)*8), builder.INT64, nil
	case []float32:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(v))), len(v)*4), builder.Float32, nil
	case []float64:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(v))), len(v)*8), builder.Float64, nil
	}
	return nil, 0, errors.Wrapf(ErrInvalid, "unsupported host type %T", data)
}

// block returns the host bytes of lines [first, first+n) after checking the
// typed slice against the buffer
func (b *Buffer) block(first int, data interface{}) (host, raw []byte, err error) {
	if b.freed {
		return nil, nil, errors.Wrapf(ErrInvalid, "buffer %s is freed", b.Name)
	}
	raw, dt, err := hostBytes(data)
	if err != nil {
		return nil, nil, err
	}
	if dt != b.Item.Scalar {
		return nil, nil, errors.Wrapf(ErrInvalid, "buffer %s holds %s, got %s", b.Name, b.Item.Scalar, dt)
	}
	lb := b.LineBytes()
	if len(raw) == 0 || len(raw)%lb != 0 {
		return nil, nil, errors.Wrapf(ErrInvalid, "buffer %s: %d bytes is not a whole number of %d byte lines",
			b.Name, len(raw), lb)
	}
	n := len(raw) / lb
	if first < 0 || first+n > b.Lines {
		return nil, nil, errors.Wrapf(ErrInvalid, "buffer %s: lines [%d,%d) out of range [0,%d)",
			b.Name, first, first+n, b.Lines)
	}
	return b.host[first*lb : (first+n)*lb], raw, nil
}

// SetLine copies one full line into the host mirror
func (b *Buffer) SetLine(i int, data interface{}) error {
	return b.SetBlock(i, data)
}

// GetLine copies one full line out of the host mirror
func (b *Buffer) GetLine(i int, dst interface{}) error {
	return b.GetBlock(i, dst)
}

// SetBlock copies whole lines starting at first into the host mirror
func (b *Buffer) SetBlock(first int, data interface{}) error {
	host, raw, err := b.block(first, data)
	if err != nil {
		return err
	}
	copy(host, raw)
	return nil
}

// GetBlock fills dst with whole lines starting at first
func (b *Buffer) GetBlock(first int, dst interface{}) error {
	host, raw, err := b.block(first, dst)
	if err != nil {
		return err
	}
	copy(raw, host)
	return nil
}

// Int32s views the host mirror of an int32 buffer, nil for other types
func (b *Buffer) Int32s() []int32 {
	if b.Item.Scalar != builder.INT32 || len(b.host) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b.host[0])), len(b.host)/4)
}

// Int64s views the host mirror of an int64 buffer, nil for other types
func (b *Buffer) Int64s() []int64 {
	if b.Item.Scalar != builder.INT64 || len(b.host) == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&b.host[0])), len(b.host)/8)
}

// Float32s views the host mirror of a float32 buffer, nil for other types
func (b *Buffer) Float32s() []float32 {
	if b.Item.Scalar != builder.Float32 || len(b.host) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.host[0])), len(b.host)/4)
}

// Float64s views the host mirror of a float64 buffer, nil for other types
func (b *Buffer) Float64s() []float64 {
	if b.Item.Scalar != builder.Float64 || len(b.host) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b.host[0])), len(b.host)/8)
}

// Fill sets every scalar of a float buffer's host mirror to v
func (b *Buffer) Fill(v float64) error {
	switch b.Item.Scalar {
	case builder.Float64:
		for i, s := 0, b.Float64s(); i < len(s); i++ {
			s[i] = v
		}
	case builder.Float32:
		for i, s := 0, b.Float32s(); i < len(s); i++ {
			s[i] = float32(v)
		}
	default:
		return errors.Wrapf(ErrInvalid, "buffer %s is not a float buffer", b.Name)
	}
	return nil
}
