package element

import "fmt"

type Dimensionality uint8

const (
	D0 Dimensionality = iota
	D1
	D2
	D3
)

// Kind is the closed set of mesh entity categories handled by the runtime.
// Untyped tags raw buffers that are not attached to a mesh population.
type Kind uint8

const (
	Untyped Kind = iota
	Vertex
	Edge
	Triangle
	Quad
	Tet
	Pyramid
	Prism
	Hex
	NumKinds
)

// Kinds lists every mesh kind in dimension order, Untyped excluded
var Kinds = []Kind{Vertex, Edge, Triangle, Quad, Tet, Pyramid, Prism, Hex}

// MaxVertices is the largest vertex count of any kind (hexahedron)
const MaxVertices = 8

// reference holds the static facts of a kind
type reference struct {
	name  string
	dim   Dimensionality
	nvert int
	edges [][2]int
	faces [][]int
}

// Local numbering follows the usual finite element convention: bottom face
// first, counter clockwise, then the top face or the apex.
var catalog = [NumKinds]reference{
	Untyped: {name: "raw"},
	Vertex:  {name: "vertex", dim: D0, nvert: 1},
	Edge:    {name: "edge", dim: D1, nvert: 2},
	Triangle: {
		name: "triangle", dim: D2, nvert: 3,
		edges: [][2]int{{0, 1}, {1, 2}, {2, 0}},
	},
	Quad: {
		name: "quad", dim: D2, nvert: 4,
		edges: [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	},
	Tet: {
		name: "tet", dim: D3, nvert: 4,
		edges: [][2]int{{0, 1}, {1, 2}, {2, 0}, {0, 3}, {1, 3}, {2, 3}},
		faces: [][]int{{1, 2, 3}, {2, 0, 3}, {3, 0, 1}, {0, 2, 1}},
	},
	Pyramid: {
		name: "pyramid", dim: D3, nvert: 5,
		edges: [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}, {0, 4}, {1, 4}, {2, 4}, {3, 4}},
		faces: [][]int{{0, 1, 4}, {1, 2, 4}, {2, 3, 4}, {3, 0, 4}, {0, 3, 2, 1}},
	},
	Prism: {
		name: "prism", dim: D3, nvert: 6,
		edges: [][2]int{{0, 1}, {1, 2}, {2, 0}, {3, 4}, {4, 5}, {5, 3}, {0, 3}, {1, 4}, {2, 5}},
		faces: [][]int{{0, 2, 1}, {3, 4, 5}, {0, 1, 4, 3}, {1, 2, 5, 4}, {2, 0, 3, 5}},
	},
	Hex: {
		name: "hex", dim: D3, nvert: 8,
		edges: [][2]int{
			{0, 1}, {1, 2}, {2, 3}, {3, 0},
			{4, 5}, {5, 6}, {6, 7}, {7, 4},
			{0, 4}, {1, 5}, {2, 6}, {3, 7},
		},
		faces: [][]int{
			{0, 3, 2, 1}, {4, 5, 6, 7}, {0, 1, 5, 4},
			{1, 2, 6, 5}, {2, 3, 7, 6}, {3, 0, 4, 7},
		},
	},
}

// Valid reports whether k names a member of the enumeration
func (k Kind) Valid() bool { return k < NumKinds }

// IsMesh reports whether k is a mesh entity kind (not Untyped)
func (k Kind) IsMesh() bool { return k > Untyped && k < NumKinds }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return catalog[k].name
}

// NumVertices returns the number of defining vertices
func (k Kind) NumVertices() int {
	if !k.Valid() {
		return 0
	}
	return catalog[k].nvert
}

// Dimension returns the topological dimension
func (k Kind) Dimension() Dimensionality {
	if !k.Valid() {
		return D0
	}
	return catalog[k].dim
}

// Edges returns the local edge list as pairs of local vertex indices
func (k Kind) Edges() [][2]int {
	if !k.Valid() {
		return nil
	}
	if k == Edge {
		return [][2]int{{0, 1}}
	}
	return catalog[k].edges
}

// Faces returns the local faces (triangles and quads) of a volume kind. A
// surface kind is its own single face.
func (k Kind) Faces() [][]int {
	switch k.Dimension() {
	case D3:
		return catalog[k].faces
	case D2:
		return [][]int{identity(k.NumVertices())}
	}
	return nil
}

// Facets returns the codimension one sub-entities: faces of a volume, edges
// of a surface, vertices of an edge.
func (k Kind) Facets() [][]int {
	switch k.Dimension() {
	case D3:
		return catalog[k].faces
	case D2:
		edges := k.Edges()
		out := make([][]int, len(edges))
		for i, e := range edges {
			out[i] = []int{e[0], e[1]}
		}
		return out
	case D1:
		return [][]int{{0}, {1}}
	}
	return nil
}

// SubEntities returns, for each local sub-entity of kind sub, its tuple of
// local vertex indices. The slot index in the result is the local item index
// used by occurrence codes.
func (k Kind) SubEntities(sub Kind) [][]int {
	if !k.IsMesh() || !sub.IsMesh() || sub.Dimension() > k.Dimension() {
		return nil
	}
	if sub == k {
		return [][]int{identity(k.NumVertices())}
	}
	switch sub {
	case Vertex:
		out := make([][]int, k.NumVertices())
		for i := range out {
			out[i] = []int{i}
		}
		return out
	case Edge:
		edges := k.Edges()
		out := make([][]int, len(edges))
		for i, e := range edges {
			out[i] = []int{e[0], e[1]}
		}
		return out
	case Triangle, Quad:
		if k.Dimension() != D3 {
			return nil
		}
		var out [][]int
		for _, f := range catalog[k].faces {
			if len(f) == sub.NumVertices() {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

// FaceKind returns Triangle or Quad depending on the vertex count of a face
func FaceKind(nvert int) Kind {
	if nvert == 4 {
		return Quad
	}
	return Triangle
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
