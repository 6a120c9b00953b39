package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/MeshKernel/element"
)

func TestSignature_OrderIndependent(t *testing.T) {
	a := NewSignature(7, 3, 5)
	b := NewSignature(5, 7, 3)
	assert.Equal(t, a, b)
	assert.Equal(t, "[3 5 7]", a.String())
	assert.Equal(t, 3, a.Len())
	assert.NotEqual(t, NewSignature(3, 5), NewSignature(3, 5, 7))
	assert.Panics(t, func() { NewSignature() })
	assert.Panics(t, func() { NewSignature(1, 2, 3, 4, 5) })

	elem := []int32{10, 20, 30, 40}
	assert.Equal(t, NewSignature(40, 20, 10), SignatureOf(elem, []int{3, 1, 0}))
}

func TestOccurrence_Code(t *testing.T) {
	o := Occurrence{Kind: element.Tet, Element: 1234, Local: 11}
	elem, local := DecodeCode(o.Code())
	assert.Equal(t, int32(1234), elem)
	assert.Equal(t, 11, local)

	assert.True(t, Occurrence{Kind: element.Triangle, Element: 9}.Less(Occurrence{Kind: element.Tet}))
	assert.True(t, Occurrence{Kind: element.Tet, Element: 1, Local: 3}.Less(Occurrence{Kind: element.Tet, Element: 2}))
	assert.True(t, Occurrence{Kind: element.Tet, Element: 2, Local: 0}.Less(Occurrence{Kind: element.Tet, Element: 2, Local: 1}))
}

func TestIncidenceTable(t *testing.T) {
	t.Run("InvalidArguments", func(t *testing.T) {
		_, err := NewIncidenceTable(0, 2)
		assert.Error(t, err)
		_, err = NewIncidenceTable(10, 5)
		assert.Error(t, err)
	})

	t.Run("Multiplicity", func(t *testing.T) {
		// a small bucket array forces chains with foreign signatures
		table, err := NewIncidenceTable(3, 3)
		require.NoError(t, err)
		for i := int32(0); i < 20; i++ {
			require.NoError(t, table.Insert(NewSignature(i, i+1, i+2), Occurrence{Kind: element.Tet, Element: i}))
		}
		require.NoError(t, table.Insert(NewSignature(7, 5, 6), Occurrence{Kind: element.Tet, Element: 100, Local: 2}))

		assert.Equal(t, 21, table.Len())
		assert.Equal(t, 2, table.Lookup(NewSignature(6, 7, 5)))
		assert.Equal(t, 1, table.Lookup(NewSignature(0, 1, 2)))
		assert.Equal(t, 0, table.Lookup(NewSignature(0, 1, 3)))
		assert.Equal(t, 0, table.Lookup(NewSignature(5, 6)))

		occs := table.Collect(NewSignature(5, 6, 7), nil)
		require.Len(t, occs, 2)
		// most recent first
		assert.Equal(t, int32(100), occs[0].Element)
		assert.Equal(t, int32(5), occs[1].Element)

		n, codes, kinds := table.Codes(NewSignature(5, 6, 7), nil, nil)
		assert.Equal(t, 2, n)
		assert.Equal(t, []int32{100<<CodeShift | 2, 5 << CodeShift}, codes)
		assert.Equal(t, []uint8{uint8(element.Tet), uint8(element.Tet)}, kinds)

		st := table.Stats()
		assert.Equal(t, 21, st.Inserts)
		assert.Positive(t, st.Collisions)
		assert.GreaterOrEqual(t, st.Probes, st.Lookups)
	})

	t.Run("DirectVertexKeys", func(t *testing.T) {
		table, err := NewIncidenceTable(2, 1)
		require.NoError(t, err)
		// keys beyond the initial capacity grow the bucket array
		require.NoError(t, table.Insert(NewSignature(9), Occurrence{Kind: element.Tet, Element: 1}))
		require.NoError(t, table.Insert(NewSignature(9), Occurrence{Kind: element.Tet, Element: 2}))
		require.NoError(t, table.Insert(NewSignature(0), Occurrence{Kind: element.Tet, Element: 3}))
		assert.Equal(t, 2, table.Lookup(NewSignature(9)))
		assert.Equal(t, 1, table.Lookup(NewSignature(0)))
		assert.Equal(t, 0, table.Lookup(NewSignature(100)))
		assert.ErrorIs(t, table.Insert(NewSignature(1, 2), Occurrence{}), ErrInvalidEntity)
		assert.ErrorIs(t, table.Insert(NewSignature(-1), Occurrence{}), ErrInvalidEntity)
	})
}
