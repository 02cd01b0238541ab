package autodiff

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Graph is a snapshot of one connected component of nodes.
//
// The snapshot is tied to the engine's topology version. Adding nodes or
// reconnecting inputs makes it stale; every method refreshes a stale graph
// before running.
type Graph struct {
	engine  *Engine
	root    *Node
	version uint64

	nodes   []*Node // discovery order
	inputs  []*Node // no parents
	outputs []*Node // no children
	order   []*Node // topological
}

// acquire builds the graph of the component containing root and caches it on
// every member.
func (e *Engine) acquire(root *Node) (*Graph, error) {
	nodes := component(root)
	order, err := topoSort(nodes)
	if err != nil {
		e.logger.Debug("graph acquisition failed",
			"root", root.id,
			"nodes", len(nodes),
			"ordered", len(order))
		return nil, err
	}

	g := &Graph{engine: e, root: root, version: e.version, nodes: nodes, order: order}
	for _, n := range nodes {
		if len(n.parents) == 0 {
			g.inputs = append(g.inputs, n)
		}
		if len(n.children) == 0 {
			g.outputs = append(g.outputs, n)
		}
		n.graph = g
	}

	e.logger.Debug("graph acquired",
		"root", root.id,
		"nodes", len(nodes),
		"inputs", len(g.inputs),
		"outputs", len(g.outputs))
	return g, nil
}

// component collects every node reachable from root over parent and child
// edges, skipping nodes already visited.
func component(root *Node) []*Node {
	seen := map[*Node]bool{root: true}
	stack := []*Node{root}
	var nodes []*Node

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes = append(nodes, n)

		for _, edges := range [][]*Node{n.parents, n.children} {
			for _, m := range edges {
				if !seen[m] {
					seen[m] = true
					stack = append(stack, m)
				}
			}
		}
	}
	return nodes
}

// topoSort orders nodes with Kahn's algorithm. The in-degree of a node is its
// number of distinct parents. Nodes left unordered sit on a cycle.
func topoSort(nodes []*Node) ([]*Node, error) {
	degree := make(map[*Node]int, len(nodes))
	var queue []*Node
	for _, n := range nodes {
		d := len(distinct(n.parents))
		degree[n] = d
		if d == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]*Node, 0, len(nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, c := range n.children {
			degree[c]--
			if degree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(order) != len(nodes) {
		return order, fmt.Errorf("%w: %d of %d nodes unordered", ErrCycle, len(nodes)-len(order), len(nodes))
	}
	return order, nil
}

func distinct(nodes []*Node) []*Node {
	if len(nodes) < 2 {
		return nodes
	}
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		dup := false
		for _, m := range out {
			if m == n {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, n)
		}
	}
	return out
}

// refresh rebuilds a stale snapshot in place.
func (g *Graph) refresh() error {
	if g.version == g.engine.version {
		return nil
	}
	fresh, err := g.engine.acquire(g.root)
	if err != nil {
		return err
	}
	*g = *fresh
	for _, n := range g.nodes {
		n.graph = g
	}
	return nil
}

// Forward recomputes every value in topological order.
func (g *Graph) Forward() error {
	if err := g.refresh(); err != nil {
		return err
	}
	for _, n := range g.order {
		if err := n.Forward(); err != nil {
			return err
		}
	}
	return nil
}

// Backward seeds every output gradient with ones and accumulates gradients
// into all ancestors in reverse topological order. Gradients add to whatever
// the nodes already hold; call ZeroGrad first for a fresh pass.
func (g *Graph) Backward() error {
	if err := g.refresh(); err != nil {
		return err
	}
	be := g.engine.backend
	for _, n := range g.outputs {
		if n.grad == nil {
			return fmt.Errorf("backward from %v: %w", n, ErrDegenerateGradient)
		}
		tensor.Fill(be, n.grad, 1)
	}
	for i := len(g.order) - 1; i >= 0; i-- {
		if err := g.order[i].backward(); err != nil {
			return err
		}
	}
	return nil
}

// ZeroGrad clears the gradient of every node.
func (g *Graph) ZeroGrad() error {
	if err := g.refresh(); err != nil {
		return err
	}
	for _, n := range g.nodes {
		n.ZeroGrad()
	}
	return nil
}

// Parameters returns the parameter nodes in topological order.
func (g *Graph) Parameters() ([]*Node, error) {
	if err := g.refresh(); err != nil {
		return nil, err
	}
	var params []*Node
	for _, n := range g.order {
		if n.kind == KindParameter {
			params = append(params, n)
		}
	}
	return params, nil
}

// Nodes returns the nodes of the component in discovery order.
func (g *Graph) Nodes() []*Node { return append([]*Node(nil), g.nodes...) }

// Inputs returns the nodes without parents.
func (g *Graph) Inputs() []*Node { return append([]*Node(nil), g.inputs...) }

// Outputs returns the nodes without children.
func (g *Graph) Outputs() []*Node { return append([]*Node(nil), g.outputs...) }

// Order returns the cached topological order.
func (g *Graph) Order() []*Node { return append([]*Node(nil), g.order...) }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Stale reports whether the topology changed since the snapshot was taken.
func (g *Graph) Stale() bool { return g.version != g.engine.version }
