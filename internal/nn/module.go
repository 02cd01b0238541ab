// Package nn implements layer modules on top of the autodiff node graph.
//
// A module's Forward builds graph nodes; it does not compute anything on its
// own beyond the eager first evaluation every node performs. Build a model
// once, then train it through the Graph of its loss node:
//
//	hidden, err := nn.NewLinear(e, 1, 16)
//	if err != nil {
//	    return err
//	}
//	head, err := nn.NewLinear(e, 16, 1)
//	if err != nil {
//	    return err
//	}
//	model := nn.NewSequential(hidden, nn.NewTanh(), head)
//	pred, err := model.Forward(x)
package nn

import (
	"github.com/born-ml/gradgraph/internal/autodiff"
)

// Module is the interface of every layer.
type Module interface {
	// Forward builds the nodes that compute the module's output from input.
	Forward(input *autodiff.Node) (*autodiff.Node, error)

	// Parameters returns the trainable parameter nodes, nil for modules
	// without any.
	Parameters() []*autodiff.Node
}
