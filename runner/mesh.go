package runner

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/notargets/MeshKernel/element"
	"github.com/notargets/MeshKernel/runner/builder"
	"github.com/notargets/MeshKernel/topology"
)

// elementBuffers are the buffers owned by one kind population: vertex
// coordinates or element connectivity, and the per entity tags
type elementBuffers struct {
	conn *Buffer
	tags *Buffer
}

// TagSuffix names the tag buffer of a kind, e.g. tet_ref
const TagSuffix = "_ref"

// SetPopulation (re)allocates the buffers of a kind for n entities. Links
// touching the kind are dropped and rebuilt on demand.
func (kr *Runner) SetPopulation(kind element.Kind, n int) error {
	if !kind.IsMesh() || n < 0 {
		return errors.Wrapf(ErrInvalid, "population %d of kind %v", n, kind)
	}
	kr.dropLinks(kind)
	if eb := kr.elements[kind]; eb != nil {
		kr.FreeBuffer(eb.conn)
		kr.FreeBuffer(eb.tags)
		kr.elements[kind] = nil
	}

	item, perLine := builder.Item(builder.INT32, 1), kind.NumVertices()
	if kind == element.Vertex {
		item, perLine = builder.Item(builder.Float64, 4), 1
	}
	conn, err := kr.NewBuffer(kind.String(), kind, item, perLine, n, ReadOnly)
	if err != nil {
		return errors.WithMessagef(err, "failed to set %s population", kind)
	}
	tags, err := kr.NewBuffer(kind.String()+TagSuffix, kind, builder.Item(builder.INT32, 1), 1, n, ReadOnly)
	if err != nil {
		kr.FreeBuffer(conn)
		return errors.WithMessagef(err, "failed to set %s population", kind)
	}
	kr.elements[kind] = &elementBuffers{conn: conn, tags: tags}
	return nil
}

// Population returns the number of entities of a kind, 0 when unset
func (kr *Runner) Population(kind element.Kind) int {
	if !kind.IsMesh() || kr.elements[kind] == nil {
		return 0
	}
	return kr.elements[kind].conn.Lines
}

// ElementBuffer returns the coordinate or connectivity buffer of a kind
func (kr *Runner) ElementBuffer(kind element.Kind) *Buffer {
	if !kind.IsMesh() || kr.elements[kind] == nil {
		return nil
	}
	return kr.elements[kind].conn
}

// TagBuffer returns the tag buffer of a kind
func (kr *Runner) TagBuffer(kind element.Kind) *Buffer {
	if !kind.IsMesh() || kr.elements[kind] == nil {
		return nil
	}
	return kr.elements[kind].tags
}

func (kr *Runner) population(kind element.Kind) (*elementBuffers, error) {
	if !kind.IsMesh() || kr.elements[kind] == nil {
		return nil, errors.Wrapf(ErrInvalid, "no %v population", kind)
	}
	return kr.elements[kind], nil
}

// SetVertex stores the coordinates and tag of vertex i on the host
func (kr *Runner) SetVertex(i int, xyz [3]float64, tag int32) error {
	eb, err := kr.population(element.Vertex)
	if err != nil {
		return err
	}
	if err := eb.conn.SetLine(i, []float64{xyz[0], xyz[1], xyz[2], 0}); err != nil {
		return err
	}
	return eb.tags.SetLine(i, []int32{tag})
}

// GetVertex reads the coordinates and tag of vertex i from the host mirror
func (kr *Runner) GetVertex(i int) (xyz [3]float64, tag int32, err error) {
	eb, err := kr.population(element.Vertex)
	if err != nil {
		return
	}
	v := make([]float64, 4)
	t := make([]int32, 1)
	if err = eb.conn.GetLine(i, v); err != nil {
		return
	}
	if err = eb.tags.GetLine(i, t); err != nil {
		return
	}
	copy(xyz[:], v)
	return xyz, t[0], nil
}

// SetElement stores the connectivity and tag of element i of a kind
func (kr *Runner) SetElement(kind element.Kind, i int, verts []int32, tag int32) error {
	if kind == element.Vertex {
		return errors.Wrap(ErrInvalid, "vertices are set with SetVertex")
	}
	eb, err := kr.population(kind)
	if err != nil {
		return err
	}
	nv := kr.Population(element.Vertex)
	for _, v := range verts {
		if v < 0 || (nv > 0 && int(v) >= nv) {
			return errors.Wrapf(ErrInvalid, "%s %d: vertex %d out of range [0,%d)", kind, i, v, nv)
		}
	}
	if err := eb.conn.SetLine(i, verts); err != nil {
		return err
	}
	return eb.tags.SetLine(i, []int32{tag})
}

// GetElement reads the connectivity and tag of element i of a kind
func (kr *Runner) GetElement(kind element.Kind, i int) ([]int32, int32, error) {
	if kind == element.Vertex {
		return nil, 0, errors.Wrap(ErrInvalid, "vertices are read with GetVertex")
	}
	eb, err := kr.population(kind)
	if err != nil {
		return nil, 0, err
	}
	verts := make([]int32, kind.NumVertices())
	tag := make([]int32, 1)
	if err := eb.conn.GetLine(i, verts); err != nil {
		return nil, 0, err
	}
	if err := eb.tags.GetLine(i, tag); err != nil {
		return nil, 0, err
	}
	return verts, tag[0], nil
}

// UploadMesh uploads every population buffer
func (kr *Runner) UploadMesh() error {
	for _, eb := range kr.elements {
		if eb == nil {
			continue
		}
		if err := kr.Upload(eb.conn); err != nil {
			return err
		}
		if err := kr.Upload(eb.tags); err != nil {
			return err
		}
	}
	return nil
}

// hostMesh is the topology view of the host mirrors
type hostMesh struct {
	r *Runner
}

func (kr *Runner) mesh() topology.Mesh { return hostMesh{r: kr} }

func (m hostMesh) Population(k element.Kind) int { return m.r.Population(k) }

func (m hostMesh) Entity(k element.Kind, i int) []int32 {
	if k == element.Vertex {
		return []int32{int32(i)}
	}
	nv := k.NumVertices()
	return m.r.elements[k].conn.Int32s()[i*nv : (i+1)*nv]
}

func (m hostMesh) Tag(k element.Kind, i int) int32 {
	return m.r.elements[k].tags.Int32s()[i]
}

// replacePopulation swaps the population of a kind for extracted entities
// and uploads it
func (kr *Runner) replacePopulation(kind element.Kind, entities []topology.Entity) error {
	if err := kr.SetPopulation(kind, len(entities)); err != nil {
		return err
	}
	for i, e := range entities {
		if err := kr.SetElement(kind, i, e.Verts, e.Tag); err != nil {
			return err
		}
	}
	eb := kr.elements[kind]
	if err := kr.Upload(eb.conn); err != nil {
		return err
	}
	return kr.Upload(eb.tags)
}

// ExtractEdges completes the edge population from every higher dimensional
// kind and returns the new edge count
func (kr *Runner) ExtractEdges() (int, error) {
	edges, err := topology.ExtractEdges(kr.mesh())
	if err != nil {
		return 0, errors.WithMessage(err, "failed to extract edges")
	}
	if err := kr.replacePopulation(element.Edge, edges); err != nil {
		return 0, err
	}
	klog.V(1).Infof("edge population is now %d", len(edges))
	return len(edges), nil
}

// ExtractFaces completes the triangle and quad populations from the volume
// kinds and returns the new counts
func (kr *Runner) ExtractFaces() (tris, quads int, err error) {
	t, q, err := topology.ExtractFaces(kr.mesh())
	if err != nil {
		return 0, 0, errors.WithMessage(err, "failed to extract faces")
	}
	if err := kr.replacePopulation(element.Triangle, t); err != nil {
		return 0, 0, err
	}
	if err := kr.replacePopulation(element.Quad, q); err != nil {
		return 0, 0, err
	}
	klog.V(1).Infof("face population is now %d triangles, %d quads", len(t), len(q))
	return len(t), len(q), nil
}
