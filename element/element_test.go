package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_Catalog(t *testing.T) {
	testCases := []struct {
		kind   Kind
		nvert  int
		dim    Dimensionality
		nedges int
		nfaces int
	}{
		{Vertex, 1, D0, 0, 0},
		{Edge, 2, D1, 1, 0},
		{Triangle, 3, D2, 3, 1},
		{Quad, 4, D2, 4, 1},
		{Tet, 4, D3, 6, 4},
		{Pyramid, 5, D3, 8, 5},
		{Prism, 6, D3, 9, 5},
		{Hex, 8, D3, 12, 6},
	}
	for _, tc := range testCases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			assert.Equal(t, tc.nvert, tc.kind.NumVertices())
			assert.Equal(t, tc.dim, tc.kind.Dimension())
			assert.Len(t, tc.kind.Edges(), tc.nedges)
			assert.Len(t, tc.kind.Faces(), tc.nfaces)
			for _, e := range tc.kind.Edges() {
				assert.Less(t, e[0], tc.nvert)
				assert.Less(t, e[1], tc.nvert)
			}
		})
	}
}

// Every edge of a volume element must lie on exactly two of its faces.
func TestKind_EdgesBoundedByTwoFaces(t *testing.T) {
	for _, k := range []Kind{Tet, Pyramid, Prism, Hex} {
		for _, e := range k.Edges() {
			count := 0
			for _, f := range k.Faces() {
				for i := range f {
					a, b := f[i], f[(i+1)%len(f)]
					if (a == e[0] && b == e[1]) || (a == e[1] && b == e[0]) {
						count++
					}
				}
			}
			assert.Equal(t, 2, count, "%s edge %v", k, e)
		}
	}
}

func TestKind_SubEntities(t *testing.T) {
	assert.Len(t, Prism.SubEntities(Triangle), 2)
	assert.Len(t, Prism.SubEntities(Quad), 3)
	assert.Len(t, Pyramid.SubEntities(Quad), 1)
	assert.Len(t, Tet.SubEntities(Quad), 0)
	assert.Len(t, Hex.SubEntities(Vertex), 8)
	assert.Equal(t, [][]int{{0, 1, 2}}, Triangle.SubEntities(Triangle))
	assert.Nil(t, Edge.SubEntities(Tet))
	assert.Nil(t, Untyped.SubEntities(Vertex))
	// local slots must fit the 4 bit occurrence code
	for _, k := range Kinds {
		for _, sub := range Kinds {
			assert.LessOrEqual(t, len(k.SubEntities(sub)), 16)
		}
	}
}

func TestKind_Facets(t *testing.T) {
	assert.Len(t, Hex.Facets(), 6)
	assert.Len(t, Triangle.Facets(), 3)
	assert.Equal(t, [][]int{{0}, {1}}, Edge.Facets())
	assert.Nil(t, Vertex.Facets())
	assert.Equal(t, "Kind(42)", Kind(42).String())
	assert.False(t, Untyped.IsMesh())
	assert.Equal(t, Quad, FaceKind(4))
}
