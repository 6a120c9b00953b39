package builder

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ReduceOp selects the reduction operator
type ReduceOp int

const (
	OpMin ReduceOp = iota
	OpMax
	OpSum
)

func (op ReduceOp) String() string {
	switch op {
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	case OpSum:
		return "sum"
	}
	return fmt.Sprintf("ReduceOp(%d)", int(op))
}

func (op ReduceOp) Valid() bool { return op >= OpMin && op <= OpSum }

// identity returns the neutral element of op as a device literal
func (op ReduceOp) identity(dt DataType) string {
	suffix := ""
	if dt == Float32 {
		suffix = "f"
	}
	switch op {
	case OpMin:
		return fmt.Sprintf("(1.0%s / 0.0%s)", suffix, suffix)
	case OpMax:
		return fmt.Sprintf("(-1.0%s / 0.0%s)", suffix, suffix)
	}
	return "0.0" + suffix
}

func (op ReduceOp) combine(a, b string) string {
	switch op {
	case OpMin:
		return fmt.Sprintf("(%s < %s ? %s : %s)", a, b, a, b)
	case OpMax:
		return fmt.Sprintf("(%s > %s ? %s : %s)", a, b, a, b)
	}
	return a + " + " + b
}

// ReductionKernelName returns the kernel name for op over scalars of dt
func ReductionKernelName(op ReduceOp, dt DataType) string {
	return fmt.Sprintf("reduce_%s_%s", op, dt.CType())
}

// GenerateReduction returns the source of a workgroup tree reduction. Each
// workgroup writes one partial result to out[blk]; the host finishes the
// reduction over the first (n + WGS - 1) / WGS entries.
func (kb *Builder) GenerateReduction(op ReduceOp, dt DataType) (string, error) {
	if !op.Valid() {
		return "", errors.Errorf("invalid reduction operator %d", int(op))
	}
	if !dt.IsFloat() {
		return "", errors.Errorf("reductions need a float or double buffer, got %s", dt)
	}
	var sb strings.Builder
	t := dt.CType()
	id := op.identity(dt)

	sb.WriteString(fmt.Sprintf("#define WGS %d\n\n", kb.WorkgroupSize))
	sb.WriteString(fmt.Sprintf("@kernel void %s(const int n, const %s *in, %s *out) {\n",
		ReductionKernelName(op, dt), t, t))
	sb.WriteString("\tfor (int blk = 0; blk < (n + WGS - 1) / WGS; ++blk; @outer) {\n")
	sb.WriteString(fmt.Sprintf("\t\t@shared %s part[WGS];\n", t))
	sb.WriteString("\t\tfor (int t = 0; t < WGS; ++t; @inner) {\n")
	sb.WriteString("\t\t\tconst int i = blk * WGS + t;\n")
	sb.WriteString(fmt.Sprintf("\t\t\tpart[t] = (i < n) ? in[i] : %s;\n", id))
	sb.WriteString("\t\t}\n")
	sb.WriteString("\t\tfor (int step = WGS / 2; step > 0; step /= 2) {\n")
	sb.WriteString("\t\t\tfor (int t = 0; t < WGS; ++t; @inner) {\n")
	sb.WriteString(fmt.Sprintf("\t\t\t\tif (t < step) part[t] = %s;\n", op.combine("part[t]", "part[t + step]")))
	sb.WriteString("\t\t\t}\n")
	sb.WriteString("\t\t}\n")
	sb.WriteString("\t\tfor (int t = 0; t < WGS; ++t; @inner) {\n")
	sb.WriteString("\t\t\tif (t == 0) out[blk] = part[0];\n")
	sb.WriteString("\t\t}\n")
	sb.WriteString("\t}\n")
	sb.WriteString("}\n")
	return sb.String(), nil
}
