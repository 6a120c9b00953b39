package builder

import (
	"github.com/pkg/errors"

	"github.com/notargets/MeshKernel/element"
	"github.com/notargets/MeshKernel/topology"
)

// Access flags of a kernel argument
type Access uint8

const (
	Read Access = 1 << iota
	Write
	Tag    // also read the per-entity tag through the same link
	Voyeur // expose the local slot of every link entry as <link>_loc
)

func (a Access) Has(f Access) bool { return a&f != 0 }

func (a Access) String() string {
	s := ""
	for _, f := range []struct {
		flag Access
		name string
	}{{Read, "r"}, {Write, "w"}, {Tag, "t"}, {Voyeur, "v"}} {
		if a.Has(f.flag) {
			s += f.name
		}
	}
	if s == "" {
		return "-"
	}
	return s
}

// LinkDesc describes how a kernel reads one adjacency table
type LinkDesc struct {
	Name      string
	Type      topology.LinkType
	Width     int  // entries per row of the base table
	MaxDegree int  // slots read per entity
	Encoded   bool // entries are occurrence codes
	High      bool // reads the overflow header and pool
	Voyeur    bool
}

// Link table suffixes of the device parameters
const (
	TableSuffix  = "_tab"
	DegreeSuffix = "_deg"
	HeaderSuffix = "_hdr"
	PoolSuffix   = "_pool"
)

// identifiers returns every name the generated kernel derives from the link
func (l *LinkDesc) identifiers() []string {
	names := []string{l.Name, l.Name + "_n", l.Name + "_poff", l.Name + "_loc"}
	for _, part := range l.Parts() {
		names = append(names, l.Name+part)
	}
	return names
}

// Parts returns the suffixes of the device tables the link reads, in
// parameter order
func (l *LinkDesc) Parts() []string {
	parts := []string{TableSuffix}
	if l.Type == topology.Uplink {
		parts = append(parts, DegreeSuffix)
	}
	if l.High {
		parts = append(parts, HeaderSuffix, PoolSuffix)
	}
	return parts
}

// ArgDesc describes one buffer bound to a kernel
type ArgDesc struct {
	Var          string // local variable name in the kernel body
	Kind         element.Kind
	Item         ItemType
	ItemsPerLine int
	Access       Access
	Link         *LinkDesc // nil when the buffer is indexed by the target entity
	IsTag        bool      // tag companion of another argument
}

// Param returns the name of the device parameter
func (a *ArgDesc) Param() string { return a.Var + "_d" }

// reservedNames are the identifiers the generator declares itself
var reservedNames = map[string]bool{
	"i": true, "idx": true, "blk": true, "it": true, "s": true, "c": true, "e": true,
	ParamsName: true, RangeCountName: true, RangeOffsetName: true,
	"WGS": true, "real_t": true, "params_t": true,
	"int": true, "float": true, "double": true, "long": true, "char": true, "void": true,
	"const": true, "struct": true, "typedef": true, "for": true, "if": true, "else": true,
	"while": true, "do": true, "return": true, "break": true, "continue": true,
}

// Validate checks the structural rules of an argument
func (a *ArgDesc) Validate() error {
	if !isIdent(a.Var) {
		return errors.Errorf("invalid variable name %q", a.Var)
	}
	if reservedNames[a.Var] {
		return errors.Errorf("variable name %q is reserved by the generated kernel", a.Var)
	}
	if err := a.Item.Validate(); err != nil {
		return errors.WithMessagef(err, "variable %s", a.Var)
	}
	if a.ItemsPerLine < 1 {
		return errors.Errorf("variable %s: items per line must be positive, got %d", a.Var, a.ItemsPerLine)
	}
	if !a.Access.Has(Read | Write) {
		return errors.Errorf("variable %s is neither read nor written", a.Var)
	}
	if a.Access.Has(Write) && a.Link != nil {
		return errors.Errorf("variable %s is written through link %s, only target entities are writable",
			a.Var, a.Link.Name)
	}
	if a.Access.Has(Voyeur) && (a.Link == nil || !a.Link.Encoded) {
		return errors.Errorf("variable %s: local slots need a neighbour or uplink", a.Var)
	}
	return nil
}
