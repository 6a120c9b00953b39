// runner/kernel_copy.go
package runner

import (
	"github.com/pkg/errors"
)

// ActionFlags selects the transfers around a launch
type ActionFlags int

const (
	NoAction ActionFlags = 0
	// Copy from host to device before kernel execution
	CopyTo ActionFlags = 1 << iota
	// Copy from device to host after kernel execution
	CopyBack
	// Bidirectional copy (CopyTo | CopyBack)
	Copy = CopyTo | CopyBack
)

// Has reports whether every flag of f is set
func (a ActionFlags) Has(f ActionFlags) bool { return f != 0 && a&f == f }

// executeCopyActions performs the transfers of action on each buffer in
// order. Downloads drain the queue first.
func (kr *Runner) executeCopyActions(bufs []*Buffer, action ActionFlags) error {
	for _, b := range bufs {
		if action.Has(CopyTo) {
			if err := kr.Upload(b); err != nil {
				return errors.WithMessagef(err, "upload of %s", b.Name)
			}
		}
		if action.Has(CopyBack) {
			if err := kr.Download(b); err != nil {
				return errors.WithMessagef(err, "download of %s", b.Name)
			}
		}
	}
	return nil
}

// Sync performs action on the named buffers
func (kr *Runner) Sync(action ActionFlags, names ...string) error {
	bufs := make([]*Buffer, 0, len(names))
	for _, name := range names {
		b, ok := kr.buffers[name]
		if !ok {
			return errors.Wrapf(ErrInvalid, "unknown buffer %s", name)
		}
		bufs = append(bufs, b)
	}
	return kr.executeCopyActions(bufs, action)
}
