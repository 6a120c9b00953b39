package topology

import (
	"github.com/pkg/errors"

	"github.com/notargets/MeshKernel/element"
)

var (
	// ErrMissingEntity reports a sub-entity that has no entry in the
	// destination population, usually because edges or faces were not
	// extracted before asking for a downlink
	ErrMissingEntity = errors.New("sub-entity not found in destination population")
	// ErrInvalidLink reports a kind pair that has no adjacency
	ErrInvalidLink = errors.New("no adjacency between kinds")
	// ErrInvalidEntity reports an entity with the wrong vertex count or a
	// vertex index outside the vertex population
	ErrInvalidEntity = errors.New("invalid entity connectivity")
)

// Mesh is the bulk array view the indexer works from. Entity returns the
// global vertex indices of element i of kind k; for vertices it is {i}.
type Mesh interface {
	Population(k element.Kind) int
	Entity(k element.Kind, i int) []int32
	Tag(k element.Kind, i int) int32
}

// Connectivity is a plain in-memory Mesh
type Connectivity struct {
	NumVertices int
	Elements    map[element.Kind][][]int32
	Tags        map[element.Kind][]int32
}

// NewConnectivity creates an empty mesh over nv vertices
func NewConnectivity(nv int) *Connectivity {
	return &Connectivity{
		NumVertices: nv,
		Elements:    make(map[element.Kind][][]int32),
		Tags:        make(map[element.Kind][]int32),
	}
}

// Add appends one element of kind k and returns its index. The tuple is
// stored as given; BuildLink and the extractors reject malformed entities.
func (c *Connectivity) Add(k element.Kind, tag int32, verts ...int32) int {
	c.Elements[k] = append(c.Elements[k], append([]int32(nil), verts...))
	c.Tags[k] = append(c.Tags[k], tag)
	return len(c.Elements[k]) - 1
}

func (c *Connectivity) Population(k element.Kind) int {
	if k == element.Vertex {
		return c.NumVertices
	}
	return len(c.Elements[k])
}

func (c *Connectivity) Entity(k element.Kind, i int) []int32 {
	if k == element.Vertex {
		return []int32{int32(i)}
	}
	return c.Elements[k][i]
}

func (c *Connectivity) Tag(k element.Kind, i int) int32 {
	if tags := c.Tags[k]; i < len(tags) {
		return tags[i]
	}
	return 0
}

// Replace swaps the population of kind k for the given entities
func (c *Connectivity) Replace(k element.Kind, entities []Entity) {
	c.Elements[k] = make([][]int32, len(entities))
	c.Tags[k] = make([]int32, len(entities))
	for i, e := range entities {
		c.Elements[k][i] = e.Verts
		c.Tags[k][i] = e.Tag
	}
}

// CheckEntities verifies that every entity of kind k carries the vertex count
// of its kind and only references vertices of the vertex population. An empty
// vertex population only bounds indices from below.
func CheckEntities(m Mesh, k element.Kind) error {
	if k == element.Vertex {
		return nil
	}
	nv := m.Population(element.Vertex)
	for i := 0; i < m.Population(k); i++ {
		verts := m.Entity(k, i)
		if len(verts) != k.NumVertices() {
			return errors.Wrapf(ErrInvalidEntity, "%s %d has %d vertices, want %d",
				k, i, len(verts), k.NumVertices())
		}
		for _, v := range verts {
			if v < 0 || (nv > 0 && int(v) >= nv) {
				return errors.Wrapf(ErrInvalidEntity, "%s %d references vertex %d outside [0, %d)", k, i, v, nv)
			}
		}
	}
	return nil
}
