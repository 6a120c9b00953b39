package runner

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/notargets/MeshKernel/element"
	"github.com/notargets/MeshKernel/runner/builder"
	"github.com/notargets/MeshKernel/topology"
)

// deviceLink is a link plus the device copies of its tables
type deviceLink struct {
	*topology.Link
	tab, deg, hdr, pool *Buffer
}

// buffers returns the device tables in kernel parameter order
func (dl *deviceLink) buffers(high bool) []*Buffer {
	bufs := []*Buffer{dl.tab}
	if dl.Type == topology.Uplink {
		bufs = append(bufs, dl.deg)
	}
	if high {
		bufs = append(bufs, dl.hdr, dl.pool)
	}
	return bufs
}

// Link returns the adjacency table from src to dst, building and uploading
// it on first use
func (kr *Runner) Link(src, dst element.Kind) (*topology.Link, error) {
	dl, err := kr.link(src, dst)
	if err != nil {
		return nil, err
	}
	return dl.Link, nil
}

// LinkWidth returns the base row width of the link from src to dst
func (kr *Runner) LinkWidth(src, dst element.Kind) (int, error) {
	dl, err := kr.link(src, dst)
	if err != nil {
		return 0, err
	}
	return dl.Width, nil
}

func (kr *Runner) link(src, dst element.Kind) (*deviceLink, error) {
	if dl, ok := kr.links[linkKey{src, dst}]; ok {
		return dl, nil
	}
	l, err := topology.BuildLink(kr.mesh(), src, dst, topology.Options{MaxBaseWidth: kr.Config.MaxBaseWidth})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to build link %s", topology.LinkName(src, dst))
	}
	return kr.installLink(l)
}

// NewCustomLink installs a user supplied table of degree plain indices per
// src entity, replacing any link between the two kinds. Kernels read it like
// a downlink.
func (kr *Runner) NewCustomLink(src, dst element.Kind, degree int, table []int32) (*topology.Link, error) {
	if !src.IsMesh() || !dst.IsMesh() || degree < 1 {
		return nil, errors.Wrapf(ErrInvalid, "custom link %s to %s of degree %d", src, dst, degree)
	}
	n, nd := kr.Population(src), kr.Population(dst)
	if n == 0 || len(table) != n*degree {
		return nil, errors.Wrapf(ErrInvalid, "custom link %s: %d entries for %d entities of degree %d",
			topology.LinkName(src, dst), len(table), n, degree)
	}
	for j, v := range table {
		if v < 0 || int(v) >= nd {
			return nil, errors.Wrapf(ErrInvalid, "custom link %s: entry %d is %d, outside [0,%d)",
				topology.LinkName(src, dst), j, v, nd)
		}
	}
	kr.dropLink(linkKey{src, dst})
	return kr.installLinkTable(&topology.Link{
		Src:        src,
		Dst:        dst,
		Type:       topology.Downlink,
		Population: n,
		Width:      degree,
		Table:      append([]int32(nil), table...),
		MaxDegree:  degree,
		Split:      n,
	})
}

func (kr *Runner) installLinkTable(l *topology.Link) (*topology.Link, error) {
	dl, err := kr.installLink(l)
	if err != nil {
		return nil, err
	}
	return dl.Link, nil
}

// installLink uploads the tables of a link and registers it
func (kr *Runner) installLink(l *topology.Link) (*deviceLink, error) {
	dl := &deviceLink{Link: l}
	name := l.Name()
	var err error
	if dl.tab, err = kr.linkBuffer(name+builder.TableSuffix, l.Table, l.Width); err != nil {
		return nil, err
	}
	if l.Type == topology.Uplink {
		if dl.deg, err = kr.linkBuffer(name+builder.DegreeSuffix, l.Degrees, 1); err != nil {
			kr.freeLink(dl)
			return nil, err
		}
	}
	if l.Overflow != nil {
		if dl.hdr, err = kr.linkBuffer(name+builder.HeaderSuffix, l.Overflow.Header, 3); err != nil {
			kr.freeLink(dl)
			return nil, err
		}
		if dl.pool, err = kr.linkBuffer(name+builder.PoolSuffix, l.Overflow.Pool, 1); err != nil {
			kr.freeLink(dl)
			return nil, err
		}
	}
	kr.links[linkKey{l.Src, l.Dst}] = dl
	klog.V(1).Infof("link %s: %s, width %d, max degree %d, split %d of %d",
		name, l.Type, l.Width, l.MaxDegree, l.Split, l.Population)
	return dl, nil
}

func (kr *Runner) linkBuffer(name string, data []int32, perLine int) (*Buffer, error) {
	b, err := kr.NewBuffer(name, element.Untyped, builder.Item(builder.INT32, 1), perLine, len(data)/perLine, ReadOnly)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to allocate link table %s", name)
	}
	if len(data) == 0 {
		return b, nil
	}
	if err := b.SetBlock(0, data); err != nil {
		kr.FreeBuffer(b)
		return nil, err
	}
	if err := kr.Upload(b); err != nil {
		kr.FreeBuffer(b)
		return nil, err
	}
	return b, nil
}

func (kr *Runner) freeLink(dl *deviceLink) {
	for _, b := range []*Buffer{dl.tab, dl.deg, dl.hdr, dl.pool} {
		kr.FreeBuffer(b)
	}
}

func (kr *Runner) dropLink(key linkKey) {
	if dl, ok := kr.links[key]; ok {
		kr.freeLink(dl)
		delete(kr.links, key)
	}
}

// dropLinks frees every link touching kind. Kernels bound to the freed
// tables refuse to launch until recompiled.
func (kr *Runner) dropLinks(kind element.Kind) {
	for key := range kr.links {
		if key.src == kind || key.dst == kind {
			kr.dropLink(key)
		}
	}
}
