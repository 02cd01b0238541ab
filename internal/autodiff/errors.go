package autodiff

import "errors"

// Common errors.
var (
	ErrDisconnectedInput  = errors.New("input node is not connected")
	ErrDegenerateGradient = errors.New("output node carries no gradient")
	ErrCycle              = errors.New("computation graph contains a cycle")
	ErrNotInput           = errors.New("node is not an input node")
	ErrInvalidRate        = errors.New("dropout rate must be in [0, 1)")
	ErrUnsupportedOp      = errors.New("operation cannot be used as a graph node")
)
