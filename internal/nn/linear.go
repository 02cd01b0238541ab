package nn

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/autodiff"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// Linear implements a fully connected layer y = x·Wᵀ + b.
//
// W has shape [out, in] and b has shape [out]. Weights start Xavier uniform,
// biases at zero.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *autodiff.Node
	bias        *autodiff.Node
}

// NewLinear allocates the layer's parameters in e.
func NewLinear(e *autodiff.Engine, inFeatures, outFeatures int) (*Linear, error) {
	if inFeatures < 1 || outFeatures < 1 {
		return nil, fmt.Errorf("linear: invalid features %dx%d", inFeatures, outFeatures)
	}
	weight, err := e.ParameterInit(tensor.Shape{outFeatures, inFeatures}, autodiff.InitXavierUniform)
	if err != nil {
		return nil, fmt.Errorf("linear: weight: %w", err)
	}
	bias, err := e.ParameterInit(tensor.Shape{outFeatures}, autodiff.InitZeros)
	if err != nil {
		return nil, fmt.Errorf("linear: bias: %w", err)
	}
	weight.SetName("weight")
	bias.SetName("bias")

	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      weight,
		bias:        bias,
	}, nil
}

// Forward builds x·Wᵀ + b for an input of shape [batch, in].
func (l *Linear) Forward(input *autodiff.Node) (*autodiff.Node, error) {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		return nil, fmt.Errorf("linear: %w: expected [batch %d], got %v",
			tensor.ErrShapeMismatch, l.inFeatures, shape)
	}

	e := input.Engine()
	wT, err := e.Transpose(l.weight) // [in, out]
	if err != nil {
		return nil, err
	}
	out, err := e.MatMul(input, wT)
	if err != nil {
		return nil, err
	}
	return e.Add(out, l.bias)
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*autodiff.Node {
	return []*autodiff.Node{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *autodiff.Node { return l.weight }

// Bias returns the bias parameter.
func (l *Linear) Bias() *autodiff.Node { return l.bias }

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int { return l.outFeatures }

// StateDict returns copies of the parameter values by name.
func (l *Linear) StateDict() map[string][]float32 {
	return map[string][]float32{
		"weight": l.weight.Value().Values(),
		"bias":   l.bias.Value().Values(),
	}
}

// LoadStateDict overwrites the parameter values from a state dictionary.
func (l *Linear) LoadStateDict(state map[string][]float32) error {
	for _, p := range l.Parameters() {
		data, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("linear: missing %s in state dict", p.Name())
		}
		if len(data) != p.Shape().NumElements() {
			return fmt.Errorf("linear: %w: %s has %d values, want %d",
				tensor.ErrShapeMismatch, p.Name(), len(data), p.Shape().NumElements())
		}
		if err := p.Value().SetValues(data); err != nil {
			return fmt.Errorf("linear: %s: %w", p.Name(), err)
		}
	}
	return nil
}
