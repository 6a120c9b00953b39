// Package topology discovers mesh sub-entities and builds the adjacency
// tables consumed by generated kernels. Everything here runs on the host.
package topology

import (
	"fmt"

	"github.com/notargets/MeshKernel/element"
)

const (
	// CodeShift is the number of low bits reserved for the local slot in an
	// occurrence code
	CodeShift = 4
	// LocalMask extracts the local slot from an occurrence code
	LocalMask = 1<<CodeShift - 1
	// NoEntry marks unused table slots and missing neighbours
	NoEntry int32 = -1
)

// Signature is the order independent key of a sub-entity: its global vertex
// indices sorted ascending.
type Signature struct {
	V [4]int32
	N uint8
}

// NewSignature normalizes a vertex tuple of length 1 to 4. It panics on any
// other length; mesh entities are checked by CheckEntities before they get here.
func NewSignature(verts ...int32) Signature {
	var s Signature
	if len(verts) == 0 || len(verts) > len(s.V) {
		panic(fmt.Sprintf("signature length %d out of range", len(verts)))
	}
	s.N = uint8(len(verts))
	copy(s.V[:], verts)
	// insertion sort, at most four entries
	for i := 1; i < int(s.N); i++ {
		for j := i; j > 0 && s.V[j] < s.V[j-1]; j-- {
			s.V[j], s.V[j-1] = s.V[j-1], s.V[j]
		}
	}
	return s
}

// SignatureOf builds the signature of the local tuple of an element
func SignatureOf(elem []int32, local []int) Signature {
	var buf [4]int32
	for i, l := range local {
		buf[i] = elem[l]
	}
	return NewSignature(buf[:len(local)]...)
}

func (s Signature) Len() int { return int(s.N) }

func (s Signature) String() string {
	return fmt.Sprint(s.V[:s.N])
}

// Occurrence records where a sub-entity was seen: the owning element and the
// local slot inside that element.
type Occurrence struct {
	Kind    element.Kind
	Element int32
	Local   uint8
}

// Code packs the element index and local slot as (element << 4) | local
func (o Occurrence) Code() int32 {
	return o.Element<<CodeShift | int32(o.Local)
}

// Less orders occurrences by kind, element and slot
func (o Occurrence) Less(p Occurrence) bool {
	if o.Kind != p.Kind {
		return o.Kind < p.Kind
	}
	if o.Element != p.Element {
		return o.Element < p.Element
	}
	return o.Local < p.Local
}

// DecodeCode splits an occurrence code into element index and local slot
func DecodeCode(code int32) (elem int32, local int) {
	return code >> CodeShift, int(code & LocalMask)
}
