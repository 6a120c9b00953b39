package topology

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"

	"github.com/notargets/MeshKernel/element"
)

// LinkType is derived from the relative dimension of the two kinds
type LinkType uint8

const (
	Downlink  LinkType = iota // element to the lower dimensional entities bounding it
	Neighbour                 // element to the element across each facet
	Uplink                    // entity to the higher dimensional elements around it (ball/shell)
)

func (lt LinkType) String() string {
	switch lt {
	case Downlink:
		return "downlink"
	case Neighbour:
		return "neighbour"
	case Uplink:
		return "uplink"
	}
	return fmt.Sprintf("LinkType(%d)", uint8(lt))
}

// DefaultMaxBaseWidth is the widest base row of an uplink, matching the
// widest device vector type
const DefaultMaxBaseWidth = 16

// Options tunes link construction
type Options struct {
	MaxBaseWidth int
}

func (o Options) maxBaseWidth() int {
	if o.MaxBaseWidth <= 0 {
		return DefaultMaxBaseWidth
	}
	return o.MaxBaseWidth
}

// Overflow stores the incidences of high degree entities that do not fit in
// their base row. Header holds (entity, pool offset, overflow count) for each
// entity of the high suffix, in entity order.
type Overflow struct {
	Header    []int32
	Pool      []int32
	MaxDegree int // largest degree in the high suffix
}

// Link is one adjacency table between two kinds
type Link struct {
	Src, Dst   element.Kind
	Type       LinkType
	Population int // number of source entities (rows)
	Width      int // entries per row of Table
	Table      []int32
	Encoded    bool // entries are occurrence codes rather than plain indices

	// uplink only
	Degrees   []int32
	MaxDegree int
	Split     int // first entity whose degree exceeds Width, Population if none
	Overflow  *Overflow
}

// Name is the identifier used for the link tables in generated code
func (l *Link) Name() string {
	return LinkName(l.Src, l.Dst)
}

// LinkName returns the identifier of the link between two kinds
func LinkName(src, dst element.Kind) string {
	return fmt.Sprintf("%s2%s", src, dst)
}

// Degree returns the number of valid entries of row i
func (l *Link) Degree(i int) int {
	if l.Type == Uplink {
		return int(l.Degrees[i])
	}
	return l.Width
}

// Incident reconstructs the full entry list of row i from the base table and
// the overflow pool
func (l *Link) Incident(i int) []int32 {
	deg := l.Degree(i)
	n := deg
	if n > l.Width {
		n = l.Width
	}
	out := append([]int32(nil), l.Table[i*l.Width:i*l.Width+n]...)
	if l.Overflow != nil && i >= l.Split {
		h := l.Overflow.Header[3*(i-l.Split):]
		off, cnt := h[1], h[2]
		out = append(out, l.Overflow.Pool[off:off+cnt]...)
	}
	return out
}

// Classify derives the link type from the dimensions of the two kinds
func Classify(src, dst element.Kind) (LinkType, error) {
	if !src.IsMesh() || !dst.IsMesh() {
		return 0, errors.Wrapf(ErrInvalidLink, "%s to %s", src, dst)
	}
	switch ds, dd := src.Dimension(), dst.Dimension(); {
	case ds > dd:
		return Downlink, nil
	case ds == dd:
		return Neighbour, nil
	default:
		return Uplink, nil
	}
}

// BuildLink constructs the adjacency table from src to dst
func BuildLink(m Mesh, src, dst element.Kind, opts Options) (*Link, error) {
	lt, err := Classify(src, dst)
	if err != nil {
		return nil, err
	}
	if m.Population(src) == 0 {
		return nil, errors.Wrapf(ErrMissingEntity, "empty source population %s", src)
	}
	for _, k := range []element.Kind{src, dst} {
		if err = CheckEntities(m, k); err != nil {
			return nil, errors.WithMessagef(err, "failed to build %s %s", lt, LinkName(src, dst))
		}
	}
	var link *Link
	switch lt {
	case Downlink:
		link, err = buildDownlink(m, src, dst)
	case Neighbour:
		link, err = buildNeighbour(m, src, dst)
	default:
		link, err = buildUplink(m, src, dst, opts)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to build %s %s", lt, LinkName(src, dst))
	}
	klog.V(1).Infof("built %s %s: %d rows, width %d", lt, link.Name(), link.Population, link.Width)
	return link, nil
}

func buildDownlink(m Mesh, src, dst element.Kind) (*Link, error) {
	subs := src.SubEntities(dst)
	if len(subs) == 0 || src == dst {
		return nil, errors.Wrapf(ErrInvalidLink, "%s has no %s", src, dst)
	}
	pop, width := m.Population(src), len(subs)
	link := &Link{
		Src: src, Dst: dst, Type: Downlink,
		Population: pop, Width: width, MaxDegree: width, Split: pop,
		Table: make([]int32, pop*width),
	}
	if dst == element.Vertex {
		for i := 0; i < pop; i++ {
			copy(link.Table[i*width:], m.Entity(src, i))
		}
		return link, nil
	}
	dstPop := m.Population(dst)
	if dstPop == 0 {
		return nil, errors.Wrapf(ErrMissingEntity, "no %s entities, extract them first", dst)
	}
	table, err := NewIncidenceTable(dstPop, dst.NumVertices())
	if err != nil {
		return nil, err
	}
	for j := 0; j < dstPop; j++ {
		if err := table.Insert(NewSignature(m.Entity(dst, j)...), Occurrence{Kind: dst, Element: int32(j)}); err != nil {
			return nil, err
		}
	}
	var occs []Occurrence
	for i := 0; i < pop; i++ {
		elem := m.Entity(src, i)
		for s, local := range subs {
			sig := SignatureOf(elem, local)
			occs = table.Collect(sig, occs[:0])
			if len(occs) == 0 {
				return nil, errors.Wrapf(ErrMissingEntity, "%s %d slot %d %s %s", src, i, s, dst, sig)
			}
			if len(occs) > 1 {
				klog.Warningf("%s %s is duplicated %d times", dst, sig, len(occs))
			}
			link.Table[i*width+s] = occs[len(occs)-1].Element
		}
	}
	table.logStats(link.Name())
	return link, nil
}

func buildNeighbour(m Mesh, src, dst element.Kind) (*Link, error) {
	facets := src.Facets()
	if len(facets) == 0 || len(dst.Facets()) == 0 {
		return nil, errors.Wrapf(ErrInvalidLink, "%s has no facets", src)
	}
	kinds := []element.Kind{src}
	if dst != src {
		kinds = append(kinds, dst)
	}
	capacity, sigLen := 0, 1
	for _, k := range kinds {
		capacity += m.Population(k) * len(k.Facets())
		for _, f := range k.Facets() {
			sigLen = max(sigLen, len(f))
		}
	}
	table, err := NewIncidenceTable(capacity, sigLen)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		for i := 0; i < m.Population(k); i++ {
			elem := m.Entity(k, i)
			for s, f := range k.Facets() {
				if err := table.Insert(SignatureOf(elem, f), Occurrence{Kind: k, Element: int32(i), Local: uint8(s)}); err != nil {
					return nil, err
				}
			}
		}
	}
	pop, width := m.Population(src), len(facets)
	link := &Link{
		Src: src, Dst: dst, Type: Neighbour,
		Population: pop, Width: width, MaxDegree: width, Split: pop,
		Table: make([]int32, pop*width), Encoded: true,
	}
	var occs []Occurrence
	for i := 0; i < pop; i++ {
		elem := m.Entity(src, i)
		for s, f := range facets {
			self := Occurrence{Kind: src, Element: int32(i), Local: uint8(s)}
			occs = table.Collect(SignatureOf(elem, f), occs[:0])
			entry := NoEntry
			if len(occs) == 2 {
				other := occs[0]
				if other == self {
					other = occs[1]
				}
				if other.Kind == dst && other != self {
					entry = other.Code()
				}
			}
			link.Table[i*width+s] = entry
		}
	}
	table.logStats(link.Name())
	return link, nil
}

func buildUplink(m Mesh, src, dst element.Kind, opts Options) (*Link, error) {
	subs := dst.SubEntities(src)
	if len(subs) == 0 {
		return nil, errors.Wrapf(ErrInvalidLink, "%s has no %s", dst, src)
	}
	srcPop, dstPop := m.Population(src), m.Population(dst)
	if dstPop == 0 {
		return nil, errors.Wrapf(ErrMissingEntity, "empty destination population %s", dst)
	}
	capacity := dstPop * len(subs)
	if src == element.Vertex {
		capacity = srcPop
	}
	table, err := NewIncidenceTable(capacity, src.NumVertices())
	if err != nil {
		return nil, err
	}
	for j := 0; j < dstPop; j++ {
		elem := m.Entity(dst, j)
		for s, local := range subs {
			if err := table.Insert(SignatureOf(elem, local), Occurrence{Kind: dst, Element: int32(j), Local: uint8(s)}); err != nil {
				return nil, err
			}
		}
	}
	lists := make([][]int32, srcPop)
	degrees := make([]float64, srcPop)
	var occs []Occurrence
	for i := 0; i < srcPop; i++ {
		occs = table.Collect(NewSignature(m.Entity(src, i)...), occs[:0])
		codes := make([]int32, len(occs))
		for n, o := range occs {
			codes[n] = o.Code()
		}
		slices.Sort(codes)
		lists[i] = codes
		degrees[i] = float64(len(codes))
	}
	table.logStats(LinkName(src, dst))

	// the measured mean differs from dstPop*len(subs)/srcPop when source
	// entities are orphaned or missing, e.g. after a partial extraction
	mean, spread := stat.MeanStdDev(degrees, nil)
	link := SplitBall(src, dst, lists, BaseWidth(mean, opts.maxBaseWidth()))
	if high := srcPop - link.Split; high > 0 && spread > mean {
		klog.Warningf("%s: degree spread %.2f exceeds mean %.2f, %d of %d entities use the overflow kernel",
			link.Name(), spread, mean, high, srcPop)
	}
	klog.V(1).Infof("%s: mean degree %.2f, std dev %.2f, max %d, base width %d, %d high entities",
		link.Name(), mean, spread, link.MaxDegree, link.Width, srcPop-link.Split)
	return link, nil
}

// BaseWidth picks the base row width of a ball: the smallest power of two not
// below the mean degree, clamped to maxWidth. A low mean with a wide spread
// of degrees routes many entities to the overflow table.
func BaseWidth(mean float64, maxWidth int) int {
	w := 1
	for float64(w) < mean && w < maxWidth {
		w *= 2
	}
	if w > maxWidth && w > 1 {
		w /= 2
	}
	return w
}

// SplitBall lays out variable degree incidence lists in a base table of the
// given width plus an overflow pool for the suffix of entities starting at the
// first one whose degree exceeds the width.
func SplitBall(src, dst element.Kind, lists [][]int32, width int) *Link {
	pop := len(lists)
	link := &Link{
		Src: src, Dst: dst, Type: Uplink,
		Population: pop, Width: width, Encoded: true,
		Table:   make([]int32, pop*width),
		Degrees: make([]int32, pop),
		Split:   pop,
	}
	for i := range link.Table {
		link.Table[i] = NoEntry
	}
	for i, list := range lists {
		link.Degrees[i] = int32(len(list))
		link.MaxDegree = max(link.MaxDegree, len(list))
		if len(list) > width && link.Split == pop {
			link.Split = i
		}
		copy(link.Table[i*width:(i+1)*width], list)
	}
	if link.Split == pop {
		return link
	}
	ov := &Overflow{Header: make([]int32, 0, 3*(pop-link.Split))}
	for i := link.Split; i < pop; i++ {
		list := lists[i]
		count := max(len(list)-width, 0)
		ov.Header = append(ov.Header, int32(i), int32(len(ov.Pool)), int32(count))
		if count > 0 {
			ov.Pool = append(ov.Pool, list[width:]...)
		}
		ov.MaxDegree = max(ov.MaxDegree, len(list))
	}
	link.Overflow = ov
	return link
}
