package runner

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAlloc reports a failed or refused host/device allocation
	ErrAlloc = errors.New("allocation failed")
	// ErrInvalid reports an unknown buffer, kind, operator or malformed input
	ErrInvalid = errors.New("invalid argument")
	// ErrBuild reports generated source that failed to compile
	ErrBuild = errors.New("kernel build failed")
	// ErrBind reports a kernel argument that could not be bound
	ErrBind = errors.New("kernel argument binding failed")
	// ErrWorkgroup reports an unusable workgroup size
	ErrWorkgroup = errors.New("workgroup size unavailable")
	// ErrEnqueue reports a failed kernel launch
	ErrEnqueue = errors.New("kernel enqueue failed")
	// ErrPrecondition reports a request whose structure the runtime cannot serve
	ErrPrecondition = errors.New("structural precondition failed")
)

// BuildError carries the backend diagnostic and the source that failed
type BuildError struct {
	Kernel     string
	Diagnostic string
	Source     string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrBuild, e.Kernel, e.Diagnostic)
}

func (e *BuildError) Unwrap() error { return ErrBuild }
