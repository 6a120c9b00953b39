package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/MeshKernel/runner/builder"
)

func TestConfigFromEnv(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := ConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, DefaultDevice, cfg.Device)
		assert.Equal(t, "double", cfg.FloatType)
		assert.Equal(t, 16, cfg.MaxBaseWidth)
		assert.Zero(t, cfg.WorkgroupSize)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv("MESHKERNEL_DEVICE", `{"mode": "OpenMP"}`)
		t.Setenv("MESHKERNEL_FLOAT_TYPE", "float")
		t.Setenv("MESHKERNEL_WORKGROUP_SIZE", "128")
		t.Setenv("MESHKERNEL_MAX_BASE_WIDTH", "8")
		t.Setenv("MESHKERNEL_MEMORY_LIMIT", "1048576")
		t.Setenv("MESHKERNEL_SOURCE_DIR", "/tmp/kernels")

		cfg, err := ConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, `{"mode": "OpenMP"}`, cfg.Device)
		assert.Equal(t, "float", cfg.FloatType)
		assert.Equal(t, 128, cfg.WorkgroupSize)
		assert.Equal(t, 8, cfg.MaxBaseWidth)
		assert.Equal(t, int64(1048576), cfg.MemoryLimit)
		assert.Equal(t, "/tmp/kernels", cfg.SourceDir)

		ft, err := cfg.floatType()
		require.NoError(t, err)
		assert.Equal(t, builder.Float32, ft)
	})

	t.Run("Malformed", func(t *testing.T) {
		t.Setenv("MESHKERNEL_WORKGROUP_SIZE", "many")
		_, err := ConfigFromEnv()
		assert.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"Defaults", Config{}, nil},
		{"FloatAlias", Config{FloatType: "float64"}, nil},
		{"UnknownFloat", Config{FloatType: "half"}, ErrInvalid},
		{"WorkgroupNotPow2", Config{WorkgroupSize: 96}, ErrWorkgroup},
		{"WorkgroupNegative", Config{WorkgroupSize: -4}, ErrWorkgroup},
		{"BaseWidthNotPow2", Config{MaxBaseWidth: 6}, ErrInvalid},
		{"BaseWidthTooWide", Config{MaxBaseWidth: 32}, ErrInvalid},
		{"NegativeLimit", Config{MemoryLimit: -1}, ErrInvalid},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.withDefaults().Validate()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestWorkgroupSize(t *testing.T) {
	var cfg Config
	for mode, want := range map[string]int{
		"CUDA": 256, "HIP": 256, "OpenCL": 128, "Metal": 128,
		"OpenMP": 64, "Serial": 32, "dpcpp": 64,
	} {
		got, err := cfg.workgroupSize(mode)
		require.NoError(t, err)
		assert.Equal(t, want, got, mode)
	}

	cfg.WorkgroupSize = 512
	got, err := cfg.workgroupSize("Serial")
	require.NoError(t, err)
	assert.Equal(t, 512, got)
}

func TestConfigToolkit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolkit.okl")
	require.NoError(t, os.WriteFile(path, []byte("#define SQR(x) ((x)*(x))\n"), 0o644))

	text, err := Config{ToolkitFile: path}.toolkit()
	require.NoError(t, err)
	assert.Contains(t, text, "SQR")

	text, err = Config{Toolkit: "inline", ToolkitFile: path}.toolkit()
	require.NoError(t, err)
	assert.Equal(t, "inline", text)

	_, err = Config{ToolkitFile: filepath.Join(t.TempDir(), "missing")}.toolkit()
	assert.Error(t, err)
}
