package runner

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/notargets/MeshKernel/runner/builder"
)

// KernelArgument represents one argument of a compiled kernel
type KernelArgument struct {
	Name     string
	Type     string
	Category string  // link, array, params or scalar
	Buffer   *Buffer // nil for scalars
}

func (a KernelArgument) String() string {
	if a.Buffer == nil {
		return fmt.Sprintf("%s %s", a.Type, a.Name)
	}
	return fmt.Sprintf("%s %s <- %s", a.Type, a.Name, a.Buffer.Name)
}

// Arguments returns the arguments of the kernel in call order
func (k *Kernel) Arguments() []KernelArgument {
	args := make([]KernelArgument, 0, len(k.parameters))
	next := 0
	for _, p := range k.parameters {
		a := KernelArgument{Name: p.Name, Type: p.Type, Category: p.Category}
		switch p.Category {
		case builder.CategoryLink, builder.CategoryArray:
			a.Buffer = k.buffers[next]
			next++
		case builder.CategoryParams:
			a.Buffer = k.params
		}
		args = append(args, a)
	}
	return args
}

// buildKernelArguments converts the arguments into the values passed to
// the device
func (k *Kernel) buildKernelArguments() ([]interface{}, error) {
	values := make([]interface{}, 0, len(k.parameters))
	for _, a := range k.Arguments() {
		switch a.Category {
		case builder.CategoryScalar:
			switch a.Name {
			case builder.RangeCountName:
				values = append(values, int32(k.count))
			case builder.RangeOffsetName:
				values = append(values, int32(k.offset))
			default:
				return nil, errors.Wrapf(ErrBind, "kernel %s: unknown scalar %s", k.Name, a.Name)
			}
		default:
			b := a.Buffer
			if b == nil {
				return nil, errors.Wrapf(ErrBind, "kernel %s: nothing bound to %s", k.Name, a.Name)
			}
			if b.freed {
				return nil, errors.Wrapf(ErrPrecondition, "kernel %s: buffer %s was freed, recompile",
					k.Name, b.Name)
			}
			if b.mem == nil {
				return nil, errors.Wrapf(ErrBind, "kernel %s: buffer %s has no device memory", k.Name, b.Name)
			}
			values = append(values, b.mem)
		}
	}
	return values, nil
}
