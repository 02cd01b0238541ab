package nn

import (
	"github.com/born-ml/gradgraph/internal/autodiff"
)

// Activation applies an elementwise function. It has no parameters.
type Activation struct {
	name  string
	apply func(e *autodiff.Engine, x *autodiff.Node) (*autodiff.Node, error)
}

// NewTanh returns a tanh activation.
func NewTanh() *Activation {
	return &Activation{name: "tanh", apply: (*autodiff.Engine).Tanh}
}

// NewReLU returns a max(0, x) activation.
func NewReLU() *Activation {
	return &Activation{name: "relu", apply: (*autodiff.Engine).ReLU}
}

// NewSigmoid returns a logistic sigmoid activation.
func NewSigmoid() *Activation {
	return &Activation{name: "sigmoid", apply: (*autodiff.Engine).Sigmoid}
}

// Name returns the activation name.
func (a *Activation) Name() string { return a.name }

// Forward applies the activation to input.
func (a *Activation) Forward(input *autodiff.Node) (*autodiff.Node, error) {
	return a.apply(input.Engine(), input)
}

// Parameters returns nil.
func (a *Activation) Parameters() []*autodiff.Node { return nil }

// Dropout zeroes elements with probability rate while the engine is in
// training mode and scales the survivors by 1/(1-rate).
type Dropout struct {
	rate float32
}

// NewDropout returns a dropout module. The rate is validated when Forward
// builds the node.
func NewDropout(rate float32) *Dropout {
	return &Dropout{rate: rate}
}

// Rate returns the drop probability.
func (d *Dropout) Rate() float32 { return d.rate }

// Forward builds a dropout node over input.
func (d *Dropout) Forward(input *autodiff.Node) (*autodiff.Node, error) {
	return input.Engine().Dropout(input, d.rate)
}

// Parameters returns nil.
func (d *Dropout) Parameters() []*autodiff.Node { return nil }
