package topology

import (
	"slices"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/notargets/MeshKernel/element"
)

// Entity is one extracted sub-entity: its vertices in the local order of the
// owning element, and its tag. New entities carry tag 0.
type Entity struct {
	Verts []int32
	Tag   int32
}

// ExtractEdges returns the complete edge population of the mesh. Edges already
// present keep their position and tag and come first; each missing edge is
// emitted once, by the smallest (kind, element, slot) occurrence.
func ExtractEdges(m Mesh) ([]Entity, error) {
	out, err := extract(m, element.Edge)
	if err != nil {
		return nil, err
	}
	return out[element.Edge], nil
}

// ExtractFaces returns the complete triangle and quad populations, with the
// same ownership rule as ExtractEdges
func ExtractFaces(m Mesh) (tris, quads []Entity, err error) {
	out, err := extract(m, element.Triangle, element.Quad)
	if err != nil {
		return nil, nil, err
	}
	return out[element.Triangle], out[element.Quad], nil
}

func extract(m Mesh, targets ...element.Kind) (map[element.Kind][]Entity, error) {
	dim := targets[0].Dimension()
	var sources []element.Kind
	for _, k := range element.Kinds {
		if k.Dimension() > dim && m.Population(k) > 0 {
			sources = append(sources, k)
		}
	}

	capacity, sigLen := 0, 0
	for _, t := range targets {
		capacity += m.Population(t)
		sigLen = max(sigLen, t.NumVertices())
		for _, k := range sources {
			capacity += m.Population(k) * len(k.SubEntities(t))
		}
	}
	for _, k := range slices.Concat(sources, targets) {
		if err := CheckEntities(m, k); err != nil {
			return nil, err
		}
	}
	out := make(map[element.Kind][]Entity, len(targets))
	if capacity == 0 {
		return out, nil
	}
	table, err := NewIncidenceTable(capacity, sigLen)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to allocate extraction table")
	}

	// entities already present are kept first, in order
	for _, t := range targets {
		for i := 0; i < m.Population(t); i++ {
			verts := m.Entity(t, i)
			if err := table.Insert(NewSignature(verts...), Occurrence{Kind: t, Element: int32(i)}); err != nil {
				return nil, err
			}
			out[t] = append(out[t], Entity{Verts: append([]int32(nil), verts...), Tag: m.Tag(t, i)})
		}
	}
	for _, k := range sources {
		for i := 0; i < m.Population(k); i++ {
			elem := m.Entity(k, i)
			for _, t := range targets {
				for s, local := range k.SubEntities(t) {
					if err := table.Insert(SignatureOf(elem, local), Occurrence{Kind: k, Element: int32(i), Local: uint8(s)}); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	var occs []Occurrence
	for _, k := range sources {
		for i := 0; i < m.Population(k); i++ {
			elem := m.Entity(k, i)
			for _, t := range targets {
				for s, local := range k.SubEntities(t) {
					self := Occurrence{Kind: k, Element: int32(i), Local: uint8(s)}
					occs = table.Collect(SignatureOf(elem, local), occs[:0])
					if owner(occs, t) != self {
						continue
					}
					verts := make([]int32, len(local))
					for n, l := range local {
						verts[n] = elem[l]
					}
					out[t] = append(out[t], Entity{Verts: verts})
				}
			}
		}
	}
	table.logStats("extract")
	for _, t := range targets {
		klog.V(1).Infof("extracted %d %s entities (%d present before)", len(out[t]), t, m.Population(t))
	}
	return out, nil
}

// owner picks the occurrence responsible for emitting a sub-entity. A
// pre-existing entity of kind t owns itself, otherwise the smallest occurrence
// wins.
func owner(occs []Occurrence, t element.Kind) Occurrence {
	best := occs[0]
	for _, o := range occs {
		if o.Kind == t {
			return o
		}
		if o.Less(best) {
			best = o
		}
	}
	return best
}
