package runner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/MeshKernel/element"
	"github.com/notargets/MeshKernel/runner/builder"
)

func TestReduce_Constant(t *testing.T) {
	const v = 0.25
	for _, wgs := range []int{16, 32, 64, 256} {
		t.Run(fmt.Sprintf("WGS%d", wgs), func(t *testing.T) {
			kr := newTestRunner(t, Config{WorkgroupSize: wgs})
			for _, n := range []int{1, 7, 100, 1000, 4097} {
				b, err := kr.NewBuffer(fmt.Sprintf("v%d", n), element.Untyped,
					builder.Item(builder.Float64, 1), 1, n, ReadOnly)
				require.NoError(t, err)
				require.NoError(t, b.Fill(v))
				require.NoError(t, kr.Upload(b))

				sum, _, err := kr.Reduce(b, builder.OpSum)
				require.NoError(t, err)
				assert.Equal(t, float64(n)*v, sum, "sum of %d", n)

				lo, _, err := kr.Reduce(b, builder.OpMin)
				require.NoError(t, err)
				assert.Equal(t, v, lo, "min of %d", n)

				hi, _, err := kr.Reduce(b, builder.OpMax)
				require.NoError(t, err)
				assert.Equal(t, v, hi, "max of %d", n)

				red, ok := kr.Buffer(b.Name + ReductionSuffix)
				require.True(t, ok)
				assert.Equal(t, (n+wgs-1)/wgs, red.Lines)
			}
			assert.Len(t, kr.reduceEvents, 15)
			assert.Len(t, kr.reducers, 3)
		})
	}
}

func TestReduce_Ramp(t *testing.T) {
	kr := newTestRunner(t, Config{WorkgroupSize: 32})

	const n = 1000
	data := make([]float64, n)
	var want float64
	for i := range data {
		data[i] = float64(i - 300)
		want += data[i]
	}
	b, err := kr.NewBuffer("ramp", element.Untyped, builder.Item(builder.Float64, 1), 1, n, ReadOnly)
	require.NoError(t, err)
	require.NoError(t, b.SetBlock(0, data))
	require.NoError(t, kr.Upload(b))

	for _, tc := range []struct {
		op   string
		want float64
	}{{"min", -300}, {"max", 699}, {"sum", want}} {
		op, ok := ParseReduceOp(tc.op)
		require.True(t, ok)
		got, _, err := kr.Reduce(b, op)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.op)
	}
	_, ok := ParseReduceOp("mean")
	assert.False(t, ok)
}

func TestReduce_Float32(t *testing.T) {
	kr := newTestRunner(t, Config{FloatType: "float", WorkgroupSize: 64})

	b, err := kr.NewBuffer("f", element.Untyped, builder.Item(builder.Float32, 1), 1, 130, ReadOnly)
	require.NoError(t, err)
	require.NoError(t, b.Fill(0.5))
	b.Float32s()[77] = -3
	require.NoError(t, kr.Upload(b))

	lo, _, err := kr.Reduce(b, builder.OpMin)
	require.NoError(t, err)
	assert.Equal(t, -3.0, lo)
	sum, _, err := kr.Reduce(b, builder.OpSum)
	require.NoError(t, err)
	assert.Equal(t, 129*0.5-3, sum)
}

func TestReduce_Errors(t *testing.T) {
	kr := newTestRunner(t, Config{})

	ints, err := kr.NewBuffer("ints", element.Untyped, builder.Item(builder.INT32, 1), 1, 10, ReadOnly)
	require.NoError(t, err)
	vec, err := kr.NewBuffer("vec", element.Untyped, builder.Item(builder.Float64, 2), 1, 10, ReadOnly)
	require.NoError(t, err)
	wide, err := kr.NewBuffer("wide", element.Untyped, builder.Item(builder.Float64, 1), 3, 10, ReadOnly)
	require.NoError(t, err)
	empty, err := kr.NewBuffer("empty", element.Untyped, builder.Item(builder.Float64, 1), 1, 0, ReadOnly)
	require.NoError(t, err)
	ok, err := kr.NewBuffer("ok", element.Untyped, builder.Item(builder.Float64, 1), 1, 10, ReadOnly)
	require.NoError(t, err)

	for _, b := range []*Buffer{ints, vec, wide, empty} {
		_, _, err := kr.Reduce(b, builder.OpSum)
		assert.ErrorIs(t, err, ErrPrecondition, b.Name)
	}
	_, _, err = kr.Reduce(ok, builder.ReduceOp(9))
	assert.ErrorIs(t, err, ErrInvalid)

	t.Run("FreeDropsCompanion", func(t *testing.T) {
		_, _, err := kr.Reduce(ok, builder.OpMax)
		require.NoError(t, err)
		_, exists := kr.Buffer("ok_red")
		require.True(t, exists)
		kr.FreeBuffer(ok)
		_, exists = kr.Buffer("ok_red")
		assert.False(t, exists)
		_, _, err = kr.Reduce(ok, builder.OpMax)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	assert.Equal(t, kr.ReductionTime(), kr.reduceEvents[0].Elapsed())
}
