package nn

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/autodiff"
)

// Sequential chains modules: each module's output is the next one's input.
type Sequential struct {
	modules []Module
}

// NewSequential creates a container over modules.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Forward applies every module in order.
func (s *Sequential) Forward(input *autodiff.Node) (*autodiff.Node, error) {
	out := input
	for i, m := range s.modules {
		next, err := m.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("sequential: module %d: %w", i, err)
		}
		out = next
	}
	return out, nil
}

// Parameters concatenates the parameters of all modules.
func (s *Sequential) Parameters() []*autodiff.Node {
	var params []*autodiff.Node
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// Add appends a module.
func (s *Sequential) Add(m Module) {
	s.modules = append(s.modules, m)
}

// Len returns the number of modules.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// Module returns the module at index i.
func (s *Sequential) Module(i int) Module {
	return s.modules[i]
}
