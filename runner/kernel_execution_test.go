package runner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/MeshKernel/element"
	"github.com/notargets/MeshKernel/runner/builder"
	"github.com/notargets/MeshKernel/topology"
)

func newTetBuffer(t *testing.T, kr *Runner, name string, kind element.Kind) *Buffer {
	t.Helper()
	b, err := kr.NewBuffer(name, kind, builder.Item(builder.Float64, 1), 1, kr.Population(kind), ReadWrite)
	require.NoError(t, err)
	return b
}

func TestLaunch_Downlink(t *testing.T) {
	kr := newTestRunner(t, Config{SourceDir: t.TempDir()})
	loadTets(t, kr, 5, twoTets())
	cx := newTetBuffer(t, kr, "cx", element.Tet)

	k, err := kr.CompileKernel(KernelDefinition{
		Name:   "centroid",
		Target: element.Tet,
		Params: []*ParamBuilder{
			Input(kr.ElementBuffer(element.Vertex)),
			Output(cx).CopyBack(),
		},
		Body: `
cx = 0.0;
for (int s = 0; s < 4; ++s) cx += 0.25 * vertex[s].s[0];
`,
	})
	require.NoError(t, err)
	assert.Nil(t, k.High())
	offset, count := k.Range()
	assert.Equal(t, 0, offset)
	assert.Equal(t, 2, count)

	src := k.Source()
	assert.Contains(t, src, "tet2vertex[3] = tet2vertex_tab[i * 4 + 3];")
	assert.NotContains(t, src, "tet2vertex_n")
	assert.Contains(t, src, "cx_d[i] = cx;")

	var names []string
	for _, a := range k.Arguments() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"tet2vertex_tab", "vertex_d", "cx_d", "prm", "range_count", "range_offset"}, names)

	saved, err := os.ReadFile(filepath.Join(kr.Config.SourceDir, "centroid.okl"))
	require.NoError(t, err)
	assert.Equal(t, src, string(saved))

	_, err = kr.Launch(k)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5}, cx.Float64s())
	assert.Len(t, k.Events(), 1)
	assert.Equal(t, k.Events()[0].Elapsed(), kr.KernelTime(k))
	assert.Equal(t, 1, kr.Stats().Kernels)

	t.Run("Relaunch", func(t *testing.T) {
		require.NoError(t, cx.Fill(0))
		_, err := kr.Launch(k)
		require.NoError(t, err)
		assert.Equal(t, []float64{1.5, 2.5}, cx.Float64s())
		assert.Len(t, k.Events(), 2)
	})

	t.Run("FreedBuffer", func(t *testing.T) {
		kr.FreeBuffer(cx)
		_, err := kr.Launch(k)
		assert.ErrorIs(t, err, ErrPrecondition)
	})

	t.Run("FreedKernel", func(t *testing.T) {
		kr.FreeKernel(k)
		assert.Equal(t, 0, kr.Stats().Kernels)
		_, err := kr.Launch(k)
		assert.Error(t, err)
	})
}

func TestLaunch_NeighbourVoyeurTag(t *testing.T) {
	kr := newTestRunner(t, Config{})
	loadTets(t, kr, 5, twoTets())

	val := newTetBuffer(t, kr, "val", element.Tet)
	require.NoError(t, val.SetBlock(0, []float64{1, 2}))
	nb := newTetBuffer(t, kr, "nb", element.Tet)
	total := newTetBuffer(t, kr, "total", element.Tet)

	l, err := kr.Link(element.Tet, element.Tet)
	require.NoError(t, err)
	require.Equal(t, topology.Neighbour, l.Type)

	k, err := kr.CompileKernel(KernelDefinition{
		Name:   "across",
		Target: element.Tet,
		Params: []*ParamBuilder{
			Input(val).Via(l).Tag().Voyeur().CopyTo(),
			Output(nb).CopyBack(),
			Output(total).CopyBack(),
		},
		Body: `
nb = -1.0;
total = 0.0;
for (int s = 0; s < 4; ++s) {
  if (tet2tet[s] >= 0) nb = val[s] + 100.0 * val_tag[s] + 1000.0 * tet2tet_loc[s];
  total += val[s] + val_tag[s];
}
`,
	})
	require.NoError(t, err)
	src := k.Source()
	assert.Contains(t, src, "tet2tet_loc[s] = tet2tet[s] & 15;")
	assert.Contains(t, src, "tet2tet[s] = tet2tet[s] >> 4;")
	assert.Contains(t, src, "val_tag[s] = val_tag_d[tet2tet[s]];")
	assert.Contains(t, src, "val_tag[s] = 0;")

	_, err = kr.Launch(k)
	require.NoError(t, err)
	// tet 0 sees tet 1 (tag 11) through its local facet 3, tet 1 sees tet 0
	// (tag 10) through its local facet 0
	assert.Equal(t, []float64{2 + 1100 + 3000, 1 + 1000}, nb.Float64s())
	// boundary facets contribute zero values and zero tags
	assert.Equal(t, []float64{2 + 11, 1 + 10}, total.Float64s())
}

func TestLaunch_Uplink(t *testing.T) {
	body := `
deg = 0.0;
for (int s = 0; s < vertex2tet_n; ++s) deg += ones[s];
`
	t.Run("BaseOnly", func(t *testing.T) {
		kr := newTestRunner(t, Config{})
		loadTets(t, kr, 5, twoTets())
		ones := newTetBuffer(t, kr, "ones", element.Tet)
		require.NoError(t, ones.Fill(1))
		deg := newTetBuffer(t, kr, "deg", element.Vertex)

		k, err := kr.CompileKernel(KernelDefinition{
			Name:   "ball_size",
			Target: element.Vertex,
			Params: []*ParamBuilder{Input(ones).CopyTo(), Output(deg).CopyBack()},
			Body:   body,
		})
		require.NoError(t, err)
		assert.Nil(t, k.High())
		assert.Contains(t, k.Source(), "const int vertex2tet_n = vertex2tet_deg[i];")

		_, err = kr.Launch(k)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 2, 2, 1}, deg.Float64s())
	})

	t.Run("SlotsPastDegree", func(t *testing.T) {
		kr := newTestRunner(t, Config{})
		loadTets(t, kr, 5, twoTets())
		ones := newTetBuffer(t, kr, "ones", element.Tet)
		require.NoError(t, ones.Fill(1))
		full := newTetBuffer(t, kr, "full", element.Vertex)

		l, err := kr.Link(element.Vertex, element.Tet)
		require.NoError(t, err)
		require.Equal(t, 2, l.MaxDegree)
		require.Nil(t, l.Overflow)

		// summing every slot, not just the first vertex2tet_n, still counts
		// the ball because unused slots read as zero
		k, err := kr.CompileKernel(KernelDefinition{
			Name:   "ball_all_slots",
			Target: element.Vertex,
			Params: []*ParamBuilder{Input(ones).CopyTo(), Output(full).CopyBack()},
			Body: `
full = 0.0;
for (int s = 0; s < 2; ++s) full += ones[s];
`,
		})
		require.NoError(t, err)
		_, err = kr.Launch(k)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 2, 2, 1}, full.Float64s())
	})

	t.Run("HighDegree", func(t *testing.T) {
		kr := newTestRunner(t, Config{})
		loadTets(t, kr, 22, edgeFan(20))
		ones := newTetBuffer(t, kr, "ones", element.Tet)
		require.NoError(t, ones.Fill(1))
		deg := newTetBuffer(t, kr, "deg", element.Vertex)

		width, err := kr.LinkWidth(element.Vertex, element.Tet)
		require.NoError(t, err)
		assert.Equal(t, 4, width)

		k, err := kr.CompileKernel(KernelDefinition{
			Name:   "ball_size",
			Target: element.Vertex,
			Params: []*ParamBuilder{Input(ones).CopyTo(), Output(deg).CopyBack()},
			Body:   body,
		})
		require.NoError(t, err)
		require.NotNil(t, k.High())
		offset, count := k.Range()
		assert.Equal(t, [2]int{0, 0}, [2]int{offset, count})
		offset, count = k.High().Range()
		assert.Equal(t, [2]int{0, 22}, [2]int{offset, count})

		high := k.High().Source()
		assert.Contains(t, high, "ball_size_high(")
		assert.Contains(t, high, "vertex2tet_pool[vertex2tet_poff + 15]")
		assert.Equal(t, 4, strings.Count(high, "vertex2tet_tab[i * 4 +"))

		_, err = kr.Launch(k)
		require.NoError(t, err)
		want := make([]float64, 22)
		for i := range want {
			want[i] = 2
		}
		want[0], want[1] = 20, 20
		assert.Equal(t, want, deg.Float64s())
		assert.Empty(t, k.Events())
		assert.Len(t, k.High().Events(), 1)
		assert.Equal(t, k.High().Events()[0].Elapsed(), kr.KernelTime(k))
	})
}

func TestLaunch_Params(t *testing.T) {
	kr := newTestRunner(t, Config{})
	loadTets(t, kr, 5, twoTets())
	u := newTetBuffer(t, kr, "u", element.Tet)

	scale := 2.0
	require.NoError(t, kr.SetParams("typedef struct { double scale; } params_t;",
		unsafe.Pointer(&scale), 8))

	k, err := kr.CompileKernel(KernelDefinition{
		Name:    "scaled",
		Target:  element.Tet,
		Params:  []*ParamBuilder{Output(u).CopyBack()},
		Toolkit: "#define SHIFT 1.0",
		Body:    "u = prm->scale * (i + SHIFT);",
	})
	require.NoError(t, err)
	assert.Contains(t, k.Source(), "typedef struct { double scale; } params_t;")
	_, err = kr.Launch(k)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, u.Float64s())

	// a new value of the same size is picked up without recompiling
	scale = 3.0
	require.NoError(t, kr.SetParams("typedef struct { double scale; } params_t;",
		unsafe.Pointer(&scale), 8))
	_, err = kr.Launch(k)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 6}, u.Float64s())
}

func TestCompileKernel_Preconditions(t *testing.T) {
	kr := newTestRunner(t, Config{})
	loadTets(t, kr, 5, twoTets())
	val := newTetBuffer(t, kr, "val", element.Tet)
	short, err := kr.NewBuffer("short", element.Untyped, builder.Item(builder.Float64, 1), 1, 1, ReadWrite)
	require.NoError(t, err)

	nbr, err := kr.Link(element.Tet, element.Tet)
	require.NoError(t, err)
	down, err := kr.Link(element.Tet, element.Vertex)
	require.NoError(t, err)
	ball, err := kr.Link(element.Vertex, element.Tet)
	require.NoError(t, err)
	coords := kr.ElementBuffer(element.Vertex)

	testCases := []struct {
		name  string
		param *ParamBuilder
		want  error
	}{
		{"WriteThroughLink", Output(val).Via(nbr), ErrPrecondition},
		{"VoyeurOnDownlink", Input(coords).Via(down).Voyeur(), ErrPrecondition},
		{"VoyeurWithoutLink", Input(val).Voyeur(), ErrPrecondition},
		{"WrongSource", Input(val).Via(ball), ErrPrecondition},
		{"WrongKind", Input(val).Via(down), ErrPrecondition},
		{"ShortBuffer", Input(short), ErrPrecondition},
		{"NoEdges", Input(newTetBuffer(t, kr, "e", element.Edge)), topology.ErrMissingEntity},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := kr.CompileKernel(KernelDefinition{
				Name:   "bad",
				Target: element.Tet,
				Params: []*ParamBuilder{tc.param},
				Body:   "",
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("StaleLink", func(t *testing.T) {
		require.NoError(t, kr.SetPopulation(element.Vertex, 5))
		_, err := kr.CompileKernel(KernelDefinition{
			Name:   "stale",
			Target: element.Tet,
			Params: []*ParamBuilder{Input(coords).Via(down)},
		})
		assert.ErrorIs(t, err, ErrInvalid)

		_, err = kr.CompileKernel(KernelDefinition{
			Name:   "stale",
			Target: element.Tet,
			Params: []*ParamBuilder{Input(kr.ElementBuffer(element.Vertex)).Via(down)},
		})
		assert.ErrorIs(t, err, ErrPrecondition)

		_, err = kr.CompileKernel(KernelDefinition{
			Name:   "fresh",
			Target: element.Tet,
			Params: []*ParamBuilder{Input(val).Via(nbr)},
		})
		assert.NoError(t, err)
	})

	t.Run("BadNames", func(t *testing.T) {
		_, err := kr.CompileKernel(KernelDefinition{Name: "not a name", Target: element.Tet})
		assert.ErrorIs(t, err, ErrInvalid)
		_, err = kr.CompileKernel(KernelDefinition{Name: "raw", Target: element.Untyped})
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestCommonSplit(t *testing.T) {
	overflowing := func(dst element.Kind, split int) *boundLink {
		return &boundLink{dl: &deviceLink{Link: &topology.Link{
			Src: element.Vertex, Dst: dst, Type: topology.Uplink, Split: split,
			Overflow: &topology.Overflow{},
		}}}
	}
	plain := &boundLink{dl: &deviceLink{Link: &topology.Link{
		Src: element.Vertex, Dst: element.Edge, Type: topology.Uplink, Split: 10,
	}}}

	split, err := commonSplit("k", []*boundLink{plain}, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, split)

	split, err = commonSplit("k", []*boundLink{plain, overflowing(element.Tet, 7), overflowing(element.Hex, 7)}, 10)
	require.NoError(t, err)
	assert.Equal(t, 7, split)

	_, err = commonSplit("k", []*boundLink{overflowing(element.Tet, 7), overflowing(element.Hex, 3)}, 10)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestBuildError(t *testing.T) {
	var err error = &BuildError{Kernel: "k", Diagnostic: "expected ';'", Source: "@kernel void k() {}"}
	assert.ErrorIs(t, err, ErrBuild)
	assert.Contains(t, err.Error(), "expected ';'")
}
