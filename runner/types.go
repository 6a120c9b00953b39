// runner/types.go
package runner

import (
	"github.com/notargets/MeshKernel/runner/builder"
)

// GetDataTypeFromSample returns the DataType of a sample value
func GetDataTypeFromSample(sample interface{}) (builder.DataType, bool) {
	switch sample.(type) {
	case float32:
		return builder.Float32, true
	case float64:
		return builder.Float64, true
	case int32:
		return builder.INT32, true
	case int64:
		return builder.INT64, true
	}
	return 0, false
}

// ParseReduceOp maps "min", "max" or "sum" to its operator
func ParseReduceOp(name string) (builder.ReduceOp, bool) {
	for op := builder.OpMin; op.Valid(); op++ {
		if op.String() == name {
			return op, true
		}
	}
	return 0, false
}
