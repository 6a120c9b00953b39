package builder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/notargets/MeshKernel/element"
	"github.com/notargets/MeshKernel/topology"
)

// DataType represents the scalar type of a buffer item
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

// Size returns the size of the scalar in bytes
func (dt DataType) Size() int {
	switch dt {
	case Float32, INT32:
		return 4
	case Float64, INT64:
		return 8
	}
	return 0
}

// CType returns the device language name of the scalar
func (dt DataType) CType() string {
	switch dt {
	case Float32:
		return "float"
	case Float64:
		return "double"
	case INT32:
		return "int"
	case INT64:
		return "long"
	}
	return "void"
}

func (dt DataType) IsFloat() bool { return dt == Float32 || dt == Float64 }

func (dt DataType) Valid() bool { return dt >= Float32 && dt <= INT64 }

func (dt DataType) String() string { return dt.CType() }

// ItemType is a scalar type times a vector width of 1, 2, 4, 8 or 16
type ItemType struct {
	Scalar DataType
	Width  int
}

// Item builds an item type
func Item(dt DataType, width int) ItemType {
	return ItemType{Scalar: dt, Width: width}
}

// Size returns the size of one item in bytes
func (it ItemType) Size() int { return it.Scalar.Size() * it.Width }

func (it ItemType) IsScalar() bool { return it.Width == 1 }

// CType returns the device type name; vectors are generated structs
// named after their scalar and width, e.g. double_v4
func (it ItemType) CType() string {
	if it.Width == 1 {
		return it.Scalar.CType()
	}
	return fmt.Sprintf("%s_v%d", it.Scalar.CType(), it.Width)
}

func (it ItemType) String() string { return it.CType() }

// Validate checks the scalar and the vector width
func (it ItemType) Validate() error {
	if !it.Scalar.Valid() {
		return errors.Errorf("invalid scalar type %d", int(it.Scalar))
	}
	switch it.Width {
	case 1, 2, 4, 8, 16:
		return nil
	}
	return errors.Errorf("vector width must be 1, 2, 4, 8 or 16, got %d", it.Width)
}

func (it ItemType) typedef() string {
	return fmt.Sprintf("typedef struct { %s s[%d]; } %s;\n", it.Scalar.CType(), it.Width, it.CType())
}

// Config holds configuration for creating a Builder
type Config struct {
	FloatType     DataType
	WorkgroupSize int
	Toolkit       string // numeric toolkit text prepended to every kernel
}

// Builder generates device source for mesh kernels and reductions
type Builder struct {
	FloatType     DataType
	WorkgroupSize int
	Toolkit       string
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) *Builder {
	floatType := cfg.FloatType
	if floatType == 0 {
		floatType = Float64
	}
	if !floatType.IsFloat() {
		panic(fmt.Sprintf("float type must be Float32 or Float64, got %v", floatType))
	}
	wgs := cfg.WorkgroupSize
	if wgs == 0 {
		wgs = 64
	}
	if wgs < 1 || wgs&(wgs-1) != 0 {
		panic(fmt.Sprintf("workgroup size must be a power of two, got %d", wgs))
	}
	return &Builder{
		FloatType:     floatType,
		WorkgroupSize: wgs,
		Toolkit:       cfg.Toolkit,
	}
}

// KernelSource is everything needed to generate one mesh kernel. Links and
// Args are in parameter order.
type KernelSource struct {
	Name       string
	Target     element.Kind
	AuxToolkit string
	ParamsType string // C definition of params_t, a placeholder struct when empty
	Links      []*LinkDesc
	Args       []*ArgDesc
	Body       string
}

// Validate checks names and access rules of the descriptors
func (ks *KernelSource) Validate() error {
	if !isIdent(ks.Name) {
		return errors.Errorf("invalid kernel name %q", ks.Name)
	}
	if !ks.Target.IsMesh() {
		return errors.Errorf("kernel %s: invalid target kind %v", ks.Name, ks.Target)
	}
	linkNames := make(map[string]string)
	for _, l := range ks.Links {
		for _, id := range l.identifiers() {
			linkNames[id] = l.Name
		}
	}
	seen := make(map[string]bool)
	for _, a := range ks.Args {
		if err := a.Validate(); err != nil {
			return errors.WithMessagef(err, "kernel %s", ks.Name)
		}
		if seen[a.Var] || seen[a.Param()] {
			return errors.Errorf("kernel %s: variable %s bound twice", ks.Name, a.Var)
		}
		for _, id := range []string{a.Var, a.Param()} {
			if l, ok := linkNames[id]; ok {
				return errors.Errorf("kernel %s: variable %s collides with link %s", ks.Name, id, l)
			}
		}
		seen[a.Var], seen[a.Param()] = true, true
	}
	return nil
}

// section writes one stage of a generated kernel
type section func(kb *Builder, ks *KernelSource, sb *strings.Builder)

// kernelSections is the assembly order of a mesh kernel
var kernelSections = []section{
	(*Builder).writePreamble,
	(*Builder).writeAuxToolkit,
	(*Builder).writeParamsType,
	(*Builder).writeSignature,
	(*Builder).writeLoopOpen,
	(*Builder).writeVars,
	(*Builder).writeReads,
	(*Builder).writeBody,
	(*Builder).writeWrites,
	(*Builder).writeLoopClose,
}

// GenerateKernel assembles the complete device source of a mesh kernel
func (kb *Builder) GenerateKernel(ks *KernelSource) string {
	var sb strings.Builder
	for _, s := range kernelSections {
		s(kb, ks, &sb)
	}
	return sb.String()
}

// GeneratePreamble returns the workgroup define, precision typedef, vector
// item typedefs and the toolkit
func (kb *Builder) GeneratePreamble(items []ItemType) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("#define WGS %d\n", kb.WorkgroupSize))
	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", kb.FloatType.CType()))

	vectors := make(map[string]ItemType)
	for _, it := range items {
		if !it.IsScalar() {
			vectors[it.CType()] = it
		}
	}
	names := make([]string, 0, len(vectors))
	for name := range vectors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(vectors[name].typedef())
	}
	sb.WriteString("\n")

	if kb.Toolkit != "" {
		sb.WriteString(kb.Toolkit)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (kb *Builder) writePreamble(ks *KernelSource, sb *strings.Builder) {
	items := make([]ItemType, 0, len(ks.Args))
	for _, a := range ks.Args {
		items = append(items, a.Item)
	}
	sb.WriteString(kb.GeneratePreamble(items))
}

func (kb *Builder) writeAuxToolkit(ks *KernelSource, sb *strings.Builder) {
	if ks.AuxToolkit != "" {
		sb.WriteString(ks.AuxToolkit)
		sb.WriteString("\n")
	}
}

func (kb *Builder) writeParamsType(ks *KernelSource, sb *strings.Builder) {
	if ks.ParamsType != "" {
		sb.WriteString(ks.ParamsType)
	} else {
		sb.WriteString("typedef struct { int unused; } params_t;")
	}
	sb.WriteString("\n\n")
}

func (kb *Builder) writeSignature(ks *KernelSource, sb *strings.Builder) {
	sb.WriteString(kb.GenerateKernelDeclaration(ks))
	sb.WriteString(" {\n")
}

func (kb *Builder) writeLoopOpen(ks *KernelSource, sb *strings.Builder) {
	sb.WriteString("\tfor (int blk = 0; blk < (range_count + WGS - 1) / WGS; ++blk; @outer) {\n")
	sb.WriteString("\t\tfor (int it = 0; it < WGS; ++it; @inner) {\n")
	sb.WriteString("\t\t\tconst int idx = blk * WGS + it;\n")
	sb.WriteString("\t\t\tif (idx < range_count) {\n")
	sb.WriteString("\t\t\t\tconst int i = idx + range_offset;\n")
}

func (kb *Builder) writeLoopClose(ks *KernelSource, sb *strings.Builder) {
	sb.WriteString("\t\t\t}\n")
	sb.WriteString("\t\t}\n")
	sb.WriteString("\t}\n")
	sb.WriteString("}\n")
}

const indent = "\t\t\t\t"

func line(sb *strings.Builder, format string, args ...interface{}) {
	sb.WriteString(indent)
	sb.WriteString(fmt.Sprintf(format, args...))
	sb.WriteString("\n")
}

// writeVars declares one local per link slot array and one per buffer,
// sized by the slots of its link
func (kb *Builder) writeVars(ks *KernelSource, sb *strings.Builder) {
	for _, l := range ks.Links {
		if l.Type == topology.Uplink {
			line(sb, "const int %s_n = %s_deg[i];", l.Name, l.Name)
		}
		if l.High {
			line(sb, "const int %s_poff = %s_hdr[3 * (i - range_offset) + 1];", l.Name, l.Name)
		}
		line(sb, "int %s[%d];", l.Name, l.MaxDegree)
		if l.Voyeur {
			line(sb, "int %s_loc[%d];", l.Name, l.MaxDegree)
		}
	}
	for _, a := range ks.Args {
		decl := a.Item.CType() + " " + a.Var
		if a.Link != nil {
			decl += fmt.Sprintf("[%d]", a.Link.MaxDegree)
		}
		if a.ItemsPerLine > 1 {
			decl += fmt.Sprintf("[%d]", a.ItemsPerLine)
		}
		line(sb, "%s;", decl)
	}
}

// writeReads emits the read prologue: link slots first, then buffer values
func (kb *Builder) writeReads(ks *KernelSource, sb *strings.Builder) {
	for _, l := range ks.Links {
		kb.writeLinkReads(l, sb)
	}
	for _, a := range ks.Args {
		if !a.Access.Has(Read) && !a.IsTag {
			continue
		}
		kb.writeArgRead(a, sb)
	}
}

func (kb *Builder) writeLinkReads(l *LinkDesc, sb *strings.Builder) {
	for s := 0; s < l.MaxDegree; s++ {
		switch {
		case l.Type != topology.Uplink:
			line(sb, "%s[%d] = %s_tab[i * %d + %d];", l.Name, s, l.Name, l.Width, s)
		case s < l.Width:
			line(sb, "%s[%d] = (%d < %s_n) ? %s_tab[i * %d + %d] : -1;",
				l.Name, s, s, l.Name, l.Name, l.Width, s)
		default:
			line(sb, "%s[%d] = (%d < %s_n) ? %s_pool[%s_poff + %d] : -1;",
				l.Name, s, s, l.Name, l.Name, l.Name, s-l.Width)
		}
	}
	if !l.Encoded {
		return
	}
	line(sb, "for (int s = 0; s < %d; ++s) {", l.MaxDegree)
	if l.Voyeur {
		line(sb, "\t%s_loc[s] = %s[s] & %d;", l.Name, l.Name, topology.LocalMask)
	}
	line(sb, "\t%s[s] = %s[s] >> %d;", l.Name, l.Name, topology.CodeShift)
	line(sb, "}")
}

func (kb *Builder) writeArgRead(a *ArgDesc, sb *strings.Builder) {
	p := a.Param()
	if a.Link == nil {
		if a.ItemsPerLine == 1 {
			line(sb, "%s = %s[i];", a.Var, p)
			return
		}
		line(sb, "for (int c = 0; c < %d; ++c) %s[c] = %s[i * %d + c];", a.ItemsPerLine, a.Var, p, a.ItemsPerLine)
		return
	}
	l := a.Link
	line(sb, "for (int s = 0; s < %d; ++s) {", l.MaxDegree)
	read, zero := fmt.Sprintf("%s[s] = %s[%s[s]];", a.Var, p, l.Name), zeroItem(a.Var+"[s]", a.Item)
	if a.ItemsPerLine > 1 {
		loop := fmt.Sprintf("for (int c = 0; c < %d; ++c) ", a.ItemsPerLine)
		read = loop + fmt.Sprintf("%s[s][c] = %s[%s[s] * %d + c];", a.Var, p, l.Name, a.ItemsPerLine)
		zero = loop + zeroItem(a.Var+"[s][c]", a.Item)
	}
	if !l.Encoded {
		line(sb, "\t%s", read)
		line(sb, "}")
		return
	}
	// slots past the degree and missing neighbours read as zero
	line(sb, "\tif (%s[s] >= 0) {", l.Name)
	line(sb, "\t\t%s", read)
	line(sb, "\t} else {")
	line(sb, "\t\t%s", zero)
	line(sb, "\t}")
	line(sb, "}")
}

// zeroItem returns the statement clearing one item; vectors are cleared
// member by member
func zeroItem(lhs string, it ItemType) string {
	if it.IsScalar() {
		return lhs + " = 0;"
	}
	return fmt.Sprintf("for (int e = 0; e < %d; ++e) %s.s[e] = 0;", it.Width, lhs)
}

func (kb *Builder) writeBody(ks *KernelSource, sb *strings.Builder) {
	line(sb, "{")
	for _, l := range strings.Split(strings.TrimRight(ks.Body, "\n"), "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		line(sb, "\t%s", l)
	}
	line(sb, "}")
}

// writeWrites emits the write epilogue; only direct buffers are writable
func (kb *Builder) writeWrites(ks *KernelSource, sb *strings.Builder) {
	for _, a := range ks.Args {
		if !a.Access.Has(Write) || a.Link != nil {
			continue
		}
		p := a.Param()
		if a.ItemsPerLine == 1 {
			line(sb, "%s[i] = %s;", p, a.Var)
			continue
		}
		line(sb, "for (int c = 0; c < %d; ++c) %s[i * %d + c] = %s[c];", a.ItemsPerLine, p, a.ItemsPerLine, a.Var)
	}
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
