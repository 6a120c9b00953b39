package runner

import (
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"github.com/notargets/MeshKernel/runner/builder"
	"github.com/notargets/MeshKernel/topology"
)

// EnvPrefix is the prefix of the environment variables read by ConfigFromEnv
const EnvPrefix = "meshkernel"

// DefaultDevice selects the serial backend
const DefaultDevice = `{"mode": "Serial"}`

// Config holds configuration for creating a Runner
type Config struct {
	// Device is a shorthand (serial, openmp, cuda, hip, opencl) or OCCA JSON
	// properties, expanded by utils.DeviceProps
	Device string `envconfig:"DEVICE"`
	// FloatType is the precision of real_t, "double" or "float"
	FloatType string `envconfig:"FLOAT_TYPE"`
	// WorkgroupSize overrides the per backend default; must be a power of two
	WorkgroupSize int `envconfig:"WORKGROUP_SIZE"`
	// MaxBaseWidth clamps the base row width of uplinks
	MaxBaseWidth int `envconfig:"MAX_BASE_WIDTH"`
	// MemoryLimit caps committed buffer bytes, 0 for no limit
	MemoryLimit int64 `envconfig:"MEMORY_LIMIT"`
	// SourceDir receives a copy of every generated kernel source
	SourceDir string `envconfig:"SOURCE_DIR"`
	// ToolkitFile is read into Toolkit when Toolkit is empty
	ToolkitFile string `envconfig:"TOOLKIT_FILE"`
	// Toolkit is device source prepended to every mesh kernel
	Toolkit string `ignored:"true"`
}

// ConfigFromEnv loads MESHKERNEL_* variables on top of the defaults
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to read environment")
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.FloatType == "" {
		c.FloatType = "double"
	}
	if c.MaxBaseWidth == 0 {
		c.MaxBaseWidth = topology.DefaultMaxBaseWidth
	}
	return c
}

// Validate checks the configuration after defaults
func (c Config) Validate() error {
	if _, err := c.floatType(); err != nil {
		return err
	}
	if w := c.WorkgroupSize; w < 0 || (w > 0 && w&(w-1) != 0) {
		return errors.Wrapf(ErrWorkgroup, "workgroup size %d is not a power of two", w)
	}
	if w := c.MaxBaseWidth; w < 1 || w&(w-1) != 0 || w > 16 {
		return errors.Wrapf(ErrInvalid, "max base width %d must be a power of two in [1,16]", w)
	}
	if c.MemoryLimit < 0 {
		return errors.Wrapf(ErrInvalid, "negative memory limit %d", c.MemoryLimit)
	}
	return nil
}

func (c Config) floatType() (builder.DataType, error) {
	switch c.FloatType {
	case "double", "float64":
		return builder.Float64, nil
	case "float", "float32":
		return builder.Float32, nil
	}
	return 0, errors.Wrapf(ErrInvalid, "unknown float type %q", c.FloatType)
}

func (c Config) toolkit() (string, error) {
	if c.Toolkit != "" || c.ToolkitFile == "" {
		return c.Toolkit, nil
	}
	text, err := os.ReadFile(c.ToolkitFile)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read toolkit %s", c.ToolkitFile)
	}
	return string(text), nil
}

// preferred workgroup sizes per backend mode
var workgroupSizes = map[string]int{
	"CUDA":   256,
	"HIP":    256,
	"OpenCL": 128,
	"Metal":  128,
	"OpenMP": 64,
	"Serial": 32,
}

// workgroupSize returns the override or the preferred size for the mode
func (c Config) workgroupSize(mode string) (int, error) {
	if c.WorkgroupSize > 0 {
		if c.WorkgroupSize&(c.WorkgroupSize-1) != 0 {
			return 0, errors.Wrapf(ErrWorkgroup, "workgroup size %d is not a power of two", c.WorkgroupSize)
		}
		return c.WorkgroupSize, nil
	}
	if w, ok := workgroupSizes[mode]; ok {
		return w, nil
	}
	return 64, nil
}
