package builder

import (
	"fmt"
	"strings"
)

// Kernel parameter categories
const (
	CategoryLink   = "link"
	CategoryArray  = "array"
	CategoryParams = "params"
	CategoryScalar = "scalar"
)

// Names of the trailing parameters shared by every mesh kernel
const (
	ParamsName      = "prm"
	RangeCountName  = "range_count"
	RangeOffsetName = "range_offset"
)

// KernelParameter is one entry of a generated kernel signature
type KernelParameter struct {
	Type     string
	Name     string
	IsConst  bool
	Category string
	Link     *LinkDesc // CategoryLink
	Part     string    // table suffix for CategoryLink
	Arg      *ArgDesc  // CategoryArray
}

// Parameters returns the kernel parameters in call order: link tables, then
// buffers, then the parameter struct and the iteration range
func (ks *KernelSource) Parameters() []KernelParameter {
	var params []KernelParameter

	for _, l := range ks.Links {
		for _, part := range l.Parts() {
			params = append(params, KernelParameter{
				Type:     "int*",
				Name:     l.Name + part,
				IsConst:  true,
				Category: CategoryLink,
				Link:     l,
				Part:     part,
			})
		}
	}

	for _, a := range ks.Args {
		params = append(params, KernelParameter{
			Type:     a.Item.CType() + "*",
			Name:     a.Param(),
			IsConst:  !a.Access.Has(Write),
			Category: CategoryArray,
			Arg:      a,
		})
	}

	params = append(params,
		KernelParameter{Type: "params_t*", Name: ParamsName, IsConst: true, Category: CategoryParams},
		KernelParameter{Type: "int", Name: RangeCountName, IsConst: true, Category: CategoryScalar},
		KernelParameter{Type: "int", Name: RangeOffsetName, IsConst: true, Category: CategoryScalar},
	)
	return params
}

// GenerateKernelSignature generates the parameter list of a mesh kernel
func (kb *Builder) GenerateKernelSignature(ks *KernelSource) string {
	params := ks.Parameters()
	parts := make([]string, 0, len(params))
	for _, p := range params {
		constStr := ""
		if p.IsConst {
			constStr = "const "
		}
		parts = append(parts, fmt.Sprintf("%s%s %s", constStr, p.Type, p.Name))
	}
	return strings.Join(parts, ",\n\t")
}

// GenerateKernelDeclaration generates a complete kernel function declaration
func (kb *Builder) GenerateKernelDeclaration(ks *KernelSource) string {
	return fmt.Sprintf("@kernel void %s(\n\t%s\n)", ks.Name, kb.GenerateKernelSignature(ks))
}
