package nn

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrEmptyNetwork     = errors.New("network has no layers")
	ErrNoGPU            = errors.New("gpu unavailable")
	ErrUnknownDevice    = errors.New("unknown device")
	ErrBatchSize        = errors.New("batch size must be >= 1")
	ErrUnknownOptim     = errors.New("unknown optimizer")
	ErrUnknownScheduler = errors.New("unknown lr scheduler")
)

// ShapeError reports a size mismatch between what a layer expects and what it got
type ShapeError struct {
	Layer    int
	Expected int
	Got      int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("layer %d: size mismatch: expected %d, got %d", e.Layer, e.Expected, e.Got)
}
