package runner

import (
	"fmt"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/notargets/gocca"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/notargets/MeshKernel/element"
	"github.com/notargets/MeshKernel/runner/builder"
)

// AccessMode is the device side access of a buffer
type AccessMode int

const (
	ReadWrite AccessMode = iota
	ReadOnly
	WriteOnly
)

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "ro"
	case WriteOnly:
		return "wo"
	}
	return "rw"
}

// Buffer is a host mirror plus device memory holding Lines lines of
// ItemsPerLine items each
type Buffer struct {
	Name         string
	Kind         element.Kind
	Item         builder.ItemType
	ItemsPerLine int
	Lines        int
	Access       AccessMode

	host      []byte
	mem       *gocca.OCCAMemory
	reduction *Buffer
	freed     bool
}

// LineBytes returns the size of one line in bytes
func (b *Buffer) LineBytes() int { return b.Item.Size() * b.ItemsPerLine }

// Bytes returns the full byte extent
func (b *Buffer) Bytes() int64 { return int64(b.LineBytes()) * int64(b.Lines) }

// Host returns the raw host mirror
func (b *Buffer) Host() []byte { return b.host }

// Memory returns the device half
func (b *Buffer) Memory() *gocca.OCCAMemory { return b.mem }

func (b *Buffer) String() string {
	return fmt.Sprintf("%s(%s, %d x %d %s, %s)", b.Name, b.Kind, b.Lines, b.ItemsPerLine, b.Item, b.Access)
}

type counters struct {
	committed   int64
	peak        int64
	transferred int64
	buffers     int
	kernels     int
}

func (c counters) stats(kernels int) Stats {
	return Stats{
		Committed:   c.committed,
		Peak:        c.peak,
		Transferred: c.transferred,
		Buffers:     c.buffers,
		Kernels:     kernels,
	}
}

// Stats is a snapshot of the memory and transfer counters
type Stats struct {
	Committed   int64
	Peak        int64
	Transferred int64
	Buffers     int
	Kernels     int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d buffers, %s committed (peak %s), %s transferred, %d kernels",
		s.Buffers, humanize.IBytes(uint64(s.Committed)), humanize.IBytes(uint64(s.Peak)),
		humanize.IBytes(uint64(s.Transferred)), s.Kernels)
}

// Stats returns the current counters
func (kr *Runner) Stats() Stats {
	return kr.counters.stats(len(kr.kernels))
}

// NewBuffer allocates a host mirror and device memory. Names are unique
// within a runner and become kernel variable names.
func (kr *Runner) NewBuffer(name string, kind element.Kind, item builder.ItemType,
	itemsPerLine, lines int, access AccessMode) (*Buffer, error) {
	if _, exists := kr.buffers[name]; exists {
		return nil, errors.Wrapf(ErrInvalid, "buffer %s already exists", name)
	}
	if name == "" || !kind.Valid() {
		return nil, errors.Wrapf(ErrInvalid, "buffer %q of kind %v", name, kind)
	}
	if err := item.Validate(); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "buffer %s: %v", name, err)
	}
	if itemsPerLine < 1 || lines < 0 {
		return nil, errors.Wrapf(ErrInvalid, "buffer %s: %d items per line, %d lines", name, itemsPerLine, lines)
	}

	b := &Buffer{
		Name:         name,
		Kind:         kind,
		Item:         item,
		ItemsPerLine: itemsPerLine,
		Lines:        lines,
		Access:       access,
	}
	bytes := b.Bytes()
	if limit := kr.Config.MemoryLimit; limit > 0 && kr.counters.committed+bytes > limit {
		return nil, errors.Wrapf(ErrAlloc, "buffer %s: %s requested, %s already committed, limit %s",
			name, humanize.IBytes(uint64(bytes)), humanize.IBytes(uint64(kr.counters.committed)),
			humanize.IBytes(uint64(limit)))
	}
	if bytes > 0 {
		b.host = make([]byte, bytes)
		b.mem = kr.Device.Malloc(bytes, unsafe.Pointer(&b.host[0]), nil)
		if b.mem == nil {
			return nil, errors.Wrapf(ErrAlloc, "buffer %s: device refused %s, %s already committed",
				name, humanize.IBytes(uint64(bytes)), humanize.IBytes(uint64(kr.counters.committed)))
		}
	}

	kr.buffers[name] = b
	kr.counters.buffers++
	kr.counters.committed += bytes
	if kr.counters.committed > kr.counters.peak {
		kr.counters.peak = kr.counters.committed
	}
	klog.V(1).Infof("allocated %s, %s", b, humanize.IBytes(uint64(bytes)))
	return b, nil
}

// FreeBuffer releases both halves of a buffer and its reduction companion
func (kr *Runner) FreeBuffer(b *Buffer) {
	if b == nil || b.freed {
		return
	}
	if kr.buffers[b.Name] != b {
		klog.Warningf("freeing buffer %s not owned by this runner", b.Name)
		return
	}
	if b.reduction != nil {
		kr.FreeBuffer(b.reduction)
		b.reduction = nil
	}
	kr.release(b)
	delete(kr.buffers, b.Name)
}

func (kr *Runner) release(b *Buffer) {
	if b.freed {
		return
	}
	if b.mem != nil {
		b.mem.Free()
		b.mem = nil
	}
	kr.counters.committed -= b.Bytes()
	kr.counters.buffers--
	b.host = nil
	b.freed = true
}

func (kr *Runner) checkBuffer(b *Buffer) error {
	if b == nil || b.freed || kr.buffers[b.Name] != b {
		return errors.Wrap(ErrInvalid, "unknown or freed buffer")
	}
	return nil
}

// Upload copies the full host mirror to the device
func (kr *Runner) Upload(b *Buffer) error {
	if err := kr.checkBuffer(b); err != nil {
		return err
	}
	if b.mem == nil {
		return nil
	}
	b.mem.CopyFrom(unsafe.Pointer(&b.host[0]), b.Bytes())
	kr.counters.transferred += b.Bytes()
	return nil
}

// Download drains the queue and copies the full device extent to the host
func (kr *Runner) Download(b *Buffer) error {
	if err := kr.checkBuffer(b); err != nil {
		return err
	}
	if b.mem == nil {
		return nil
	}
	kr.Device.Finish()
	b.mem.CopyTo(unsafe.Pointer(&b.host[0]), b.Bytes())
	kr.counters.transferred += b.Bytes()
	return nil
}

// downloadPrefix copies the first n bytes of the device extent to the host
func (kr *Runner) downloadPrefix(b *Buffer, n int64) {
	kr.Device.Finish()
	b.mem.CopyTo(unsafe.Pointer(&b.host[0]), n)
	kr.counters.transferred += n
}

// Buffer returns a live buffer by name
func (kr *Runner) Buffer(name string) (*Buffer, bool) {
	b, ok := kr.buffers[name]
	return b, ok
}
