package runner

import (
	"github.com/notargets/MeshKernel/runner/builder"
	"github.com/notargets/MeshKernel/topology"
)

// ParamBuilder provides a fluent interface for binding a buffer to a kernel
type ParamBuilder struct {
	spec ParamSpec
}

// ParamSpec holds the complete binding of one buffer
type ParamSpec struct {
	Buffer *Buffer
	Access builder.Access

	// Link indexes the buffer through an adjacency table, nil for buffers of
	// the target kind
	Link *topology.Link

	// Data movement around each launch
	DoCopyTo   bool
	DoCopyBack bool
}

// Input binds a buffer the kernel reads
func Input(b *Buffer) *ParamBuilder {
	return &ParamBuilder{spec: ParamSpec{Buffer: b, Access: builder.Read}}
}

// Output binds a buffer the kernel writes
func Output(b *Buffer) *ParamBuilder {
	return &ParamBuilder{spec: ParamSpec{Buffer: b, Access: builder.Write}}
}

// InOut binds a buffer the kernel reads and writes
func InOut(b *Buffer) *ParamBuilder {
	return &ParamBuilder{spec: ParamSpec{Buffer: b, Access: builder.Read | builder.Write}}
}

// Via reads the buffer through a link whose source is the target kind
func (p *ParamBuilder) Via(l *topology.Link) *ParamBuilder {
	p.spec.Link = l
	return p
}

// Tag also reads the tags of the entities the buffer is indexed by
func (p *ParamBuilder) Tag() *ParamBuilder {
	p.spec.Access |= builder.Tag
	return p
}

// Voyeur exposes the local slot of every link entry
func (p *ParamBuilder) Voyeur() *ParamBuilder {
	p.spec.Access |= builder.Voyeur
	return p
}

// Copy sets bidirectional copy (host→device before, device→host after)
func (p *ParamBuilder) Copy() *ParamBuilder {
	p.spec.DoCopyTo = true
	p.spec.DoCopyBack = true
	return p
}

// CopyTo sets host→device copy before kernel execution
func (p *ParamBuilder) CopyTo() *ParamBuilder {
	p.spec.DoCopyTo = true
	return p
}

// CopyBack sets device→host copy after kernel execution
func (p *ParamBuilder) CopyBack() *ParamBuilder {
	p.spec.DoCopyBack = true
	return p
}

// NoCopy explicitly disables data movement
func (p *ParamBuilder) NoCopy() *ParamBuilder {
	p.spec.DoCopyTo = false
	p.spec.DoCopyBack = false
	return p
}

// Spec returns the accumulated binding
func (p *ParamBuilder) Spec() ParamSpec { return p.spec }
