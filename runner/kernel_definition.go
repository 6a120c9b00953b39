package runner

import (
	"os"
	"path/filepath"

	"github.com/notargets/gocca"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/notargets/MeshKernel/element"
	"github.com/notargets/MeshKernel/runner/builder"
	"github.com/notargets/MeshKernel/topology"
)

// KernelDefinition is a per element kernel request: a body run once per
// entity of Target with the bound buffers as locals
type KernelDefinition struct {
	Name   string
	Target element.Kind
	Params []*ParamBuilder
	Body   string
	// Toolkit is auxiliary device source placed after the runner toolkit
	Toolkit string
}

// boundLink is one link read by a kernel and its base and high descriptors
type boundLink struct {
	dl         *deviceLink
	base, high *builder.LinkDesc
}

// CompileKernel generates and builds a kernel. When an uplink overflows its
// base width a second kernel covering the high degree suffix is built too;
// Launch runs both.
func (kr *Runner) CompileKernel(def KernelDefinition) (*Kernel, error) {
	if !def.Target.IsMesh() {
		return nil, errors.Wrapf(ErrInvalid, "kernel %s: target kind %v", def.Name, def.Target)
	}
	n := kr.Population(def.Target)

	var (
		links  []*boundLink
		byKey  = make(map[linkKey]*boundLink)
		specs  = make([]ParamSpec, 0, len(def.Params))
		copyTo []*Buffer
		back   []*Buffer
	)
	for _, p := range def.Params {
		spec := p.Spec()
		if err := kr.checkBuffer(spec.Buffer); err != nil {
			return nil, errors.WithMessagef(err, "kernel %s", def.Name)
		}
		if b := spec.Buffer; spec.Link == nil && b.Kind.IsMesh() && b.Kind != def.Target {
			dl, err := kr.link(def.Target, b.Kind)
			if err != nil {
				return nil, errors.WithMessagef(err, "kernel %s: default link for %s", def.Name, b.Name)
			}
			spec.Link = dl.Link
		}
		if err := kr.checkParam(def, spec); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
		if spec.DoCopyTo {
			copyTo = append(copyTo, spec.Buffer)
		}
		if spec.DoCopyBack {
			back = append(back, spec.Buffer)
		}
		if spec.Link == nil {
			continue
		}
		key := linkKey{spec.Link.Src, spec.Link.Dst}
		bl, ok := byKey[key]
		if !ok {
			bl = &boundLink{dl: kr.links[key]}
			byKey[key] = bl
			links = append(links, bl)
		}
	}

	split, err := commonSplit(def.Name, links, n)
	if err != nil {
		return nil, err
	}
	for _, bl := range links {
		bl.base, bl.high = linkDescs(bl.dl)
	}
	for _, spec := range specs {
		if spec.Link != nil && spec.Access.Has(builder.Voyeur) {
			bl := byKey[linkKey{spec.Link.Src, spec.Link.Dst}]
			bl.base.Voyeur, bl.high.Voyeur = true, true
		}
	}

	params, err := kr.paramsBuffer()
	if err != nil {
		return nil, err
	}

	k, err := kr.compileRange(def, links, specs, false, 0, split)
	if err != nil {
		return nil, err
	}
	if split < n {
		hi := def
		hi.Name = def.Name + "_high"
		if k.high, err = kr.compileRange(hi, links, specs, true, split, n-split); err != nil {
			k.free()
			return nil, err
		}
	}
	k.params = params
	k.copyTo, k.copyBack = copyTo, back
	for h := k.high; h != nil; h = h.high {
		h.params = params
	}
	kr.kernels = append(kr.kernels, k)
	return k, nil
}

// checkParam enforces the structural rules of one binding
func (kr *Runner) checkParam(def KernelDefinition, spec ParamSpec) error {
	b := spec.Buffer
	if err := kr.checkBuffer(b); err != nil {
		return errors.WithMessagef(err, "kernel %s", def.Name)
	}
	kind := def.Target
	if l := spec.Link; l != nil {
		dl, ok := kr.links[linkKey{l.Src, l.Dst}]
		if !ok || dl.Link != l {
			return errors.Wrapf(ErrPrecondition, "kernel %s: link %s is stale or unknown", def.Name, l.Name())
		}
		if l.Src != def.Target {
			return errors.Wrapf(ErrPrecondition, "kernel %s: link %s does not start at %s",
				def.Name, l.Name(), def.Target)
		}
		if spec.Access.Has(builder.Write) {
			return errors.Wrapf(ErrPrecondition, "kernel %s: %s is written through link %s",
				def.Name, b.Name, l.Name())
		}
		if spec.Access.Has(builder.Voyeur) && !l.Encoded {
			return errors.Wrapf(ErrPrecondition, "kernel %s: %s has no local slots", def.Name, l.Name())
		}
		kind = l.Dst
	} else if spec.Access.Has(builder.Voyeur) {
		return errors.Wrapf(ErrPrecondition, "kernel %s: voyeur access on %s needs a link", def.Name, b.Name)
	}
	if b.Kind != element.Untyped && b.Kind != kind {
		return errors.Wrapf(ErrPrecondition, "kernel %s: %s holds %s values, indexed as %s",
			def.Name, b.Name, b.Kind, kind)
	}
	if b.Lines < kr.Population(kind) {
		return errors.Wrapf(ErrPrecondition, "kernel %s: %s has %d lines for %d %s entities",
			def.Name, b.Name, b.Lines, kr.Population(kind), kind)
	}
	if spec.Access.Has(builder.Tag) && kr.TagBuffer(kind) == nil {
		return errors.Wrapf(ErrPrecondition, "kernel %s: no %s tags", def.Name, kind)
	}
	return nil
}

// commonSplit returns the first high degree entity shared by every
// overflowing link, n when none overflows
func commonSplit(name string, links []*boundLink, n int) (int, error) {
	split := n
	var first *topology.Link
	for _, bl := range links {
		l := bl.dl.Link
		if l.Overflow == nil {
			continue
		}
		if first != nil && l.Split != first.Split {
			return 0, errors.Wrapf(ErrPrecondition, "kernel %s: links %s and %s split at %d and %d",
				name, first.Name(), l.Name(), first.Split, l.Split)
		}
		first, split = l, l.Split
	}
	return split, nil
}

// linkDescs returns the descriptors of the base range and the high range
func linkDescs(dl *deviceLink) (base, high *builder.LinkDesc) {
	l := dl.Link
	base = &builder.LinkDesc{
		Name:      l.Name(),
		Type:      l.Type,
		Width:     l.Width,
		MaxDegree: l.Width,
		Encoded:   l.Encoded,
	}
	if l.Type == topology.Uplink && l.Overflow == nil {
		base.MaxDegree = max(1, l.MaxDegree)
	}
	hd := *base
	high = &hd
	if l.Overflow != nil {
		high.High = true
		high.MaxDegree = l.Overflow.MaxDegree
	}
	return base, high
}

// compileRange generates, builds and binds the kernel covering count
// entities from offset
func (kr *Runner) compileRange(def KernelDefinition, links []*boundLink, specs []ParamSpec,
	high bool, offset, count int) (*Kernel, error) {
	ks := &builder.KernelSource{
		Name:       def.Name,
		Target:     def.Target,
		AuxToolkit: def.Toolkit,
		ParamsType: kr.paramsType,
		Body:       def.Body,
	}
	k := &Kernel{Name: def.Name, Target: def.Target, offset: offset, count: count, kr: kr}

	for _, bl := range links {
		desc := bl.base
		if high {
			desc = bl.high
		}
		ks.Links = append(ks.Links, desc)
		k.buffers = append(k.buffers, bl.dl.buffers(desc.High)...)
	}
	descs := make(map[linkKey]*builder.LinkDesc)
	for i, bl := range links {
		descs[linkKey{bl.dl.Src, bl.dl.Dst}] = ks.Links[i]
	}
	for _, spec := range specs {
		b := spec.Buffer
		a := &builder.ArgDesc{
			Var:          b.Name,
			Kind:         b.Kind,
			Item:         b.Item,
			ItemsPerLine: b.ItemsPerLine,
			Access:       spec.Access,
		}
		kind := def.Target
		if spec.Link != nil {
			a.Link = descs[linkKey{spec.Link.Src, spec.Link.Dst}]
			kind = spec.Link.Dst
		}
		ks.Args = append(ks.Args, a)
		k.buffers = append(k.buffers, b)
		if spec.Access.Has(builder.Tag) {
			tags := kr.TagBuffer(kind)
			ks.Args = append(ks.Args, &builder.ArgDesc{
				Var:          b.Name + "_tag",
				Kind:         kind,
				Item:         tags.Item,
				ItemsPerLine: 1,
				Access:       builder.Read,
				Link:         a.Link,
				IsTag:        true,
			})
			k.buffers = append(k.buffers, tags)
		}
	}
	if err := ks.Validate(); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "%v", err)
	}

	k.parameters = ks.Parameters()
	k.source = kr.GenerateKernel(ks)
	kr.saveSource(def.Name, k.source)
	kernel, err := kr.buildKernel(k.source, def.Name)
	if err != nil {
		return nil, err
	}
	k.kernel = kernel
	klog.V(1).Infof("compiled %s over %s [%d,%d) with %d links, %d buffers",
		def.Name, def.Target, offset, offset+count, len(ks.Links), len(k.buffers))
	return k, nil
}

// buildKernel compiles source with the backend
func (kr *Runner) buildKernel(source, name string) (*gocca.OCCAKernel, error) {
	var (
		kernel *gocca.OCCAKernel
		err    error
	)
	if kr.Device.Mode() == "OpenMP" {
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kr.Device.BuildKernelFromString(source, name, props)
	} else {
		kernel, err = kr.Device.BuildKernelFromString(source, name, nil)
	}
	if err != nil || kernel == nil {
		diag := "no kernel returned"
		if err != nil {
			diag = err.Error()
		}
		return nil, &BuildError{Kernel: name, Diagnostic: diag, Source: source}
	}
	return kernel, nil
}

// saveSource writes generated source to Config.SourceDir when set
func (kr *Runner) saveSource(name, source string) {
	if kr.Config.SourceDir == "" {
		return
	}
	path := filepath.Join(kr.Config.SourceDir, name+".okl")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		klog.Warningf("failed to save kernel source %s: %v", path, err)
	}
}
