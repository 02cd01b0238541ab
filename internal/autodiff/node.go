package autodiff

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Kind tags the variant of a Node.
type Kind int

// Node variants.
const (
	KindConstant Kind = iota
	KindParameter
	KindSource
	KindInput
	KindAdd
	KindSub
	KindMul
	KindDiv
	KindPow
	KindMatMul
	KindDot
	KindTranspose
	KindMin
	KindMax
	KindSum
	KindMean
	KindMSE
	KindUnary
	KindDropout

	numKinds
)

// String returns the variant name.
func (k Kind) String() string {
	if k >= 0 && k < numKinds {
		return rules[k].name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Producer supplies the value of a Source node on every forward pass.
// The returned tensor must live in the engine's arena; if it owns its storage
// the node frees it after copying.
type Producer func() (*tensor.RawTensor, error)

// Node is a vertex of a computation graph.
type Node struct {
	id     int
	kind   Kind
	op     tensor.UnaryOp // KindUnary only
	perm   []int          // KindTranspose only; nil reverses the axes
	name   string
	engine *Engine

	value   *tensor.RawTensor
	grad    *tensor.RawTensor // nil when no gradient is required
	interim []*tensor.RawTensor

	parents  []*Node
	children []*Node // deduplicated

	producer Producer
	rate     float32 // dropout rate
	seed     uint64  // dropout seed of the last forward pass
	masked   bool    // whether the last forward pass applied a mask
	argIndex int     // selected element of Min/Max

	graph *Graph // cached component snapshot
}

// ID returns the engine-unique node id.
func (n *Node) ID() int { return n.id }

// Kind returns the node variant.
func (n *Node) Kind() Kind { return n.kind }

// Op returns the elementwise operation of a KindUnary node.
func (n *Node) Op() tensor.UnaryOp { return n.op }

// Name returns the optional debug name.
func (n *Node) Name() string { return n.name }

// SetName sets a debug name and returns n.
func (n *Node) SetName(name string) *Node {
	n.name = name
	return n
}

// Engine returns the engine that created the node.
func (n *Node) Engine() *Engine { return n.engine }

// Value returns the primal value.
func (n *Node) Value() *tensor.RawTensor { return n.value }

// Grad returns the accumulated gradient, or nil if none is tracked.
func (n *Node) Grad() *tensor.RawTensor { return n.grad }

// RequiresGrad reports whether the node tracks a gradient.
func (n *Node) RequiresGrad() bool { return n.grad != nil }

// Shape returns the shape of the value.
func (n *Node) Shape() tensor.Shape { return n.value.Shape() }

// ArgIndex returns the logical index selected by the last Min/Max forward pass.
func (n *Node) ArgIndex() int { return n.argIndex }

// Parents returns a copy of the parent list.
func (n *Node) Parents() []*Node { return append([]*Node(nil), n.parents...) }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node { return append([]*Node(nil), n.children...) }

// String returns a short summary such as "add#3[2 3]".
func (n *Node) String() string {
	var b strings.Builder
	if n.kind == KindUnary {
		b.WriteString(n.op.String())
	} else {
		b.WriteString(n.kind.String())
	}
	fmt.Fprintf(&b, "#%d", n.id)
	if n.name != "" {
		fmt.Fprintf(&b, "(%s)", n.name)
	}
	b.WriteString(n.value.Shape().String())
	return b.String()
}

// Forward recomputes the node's value from its parents' current values.
func (n *Node) Forward() error {
	if f := rules[n.kind].forward; f != nil {
		if err := f(n); err != nil {
			return fmt.Errorf("%v: forward: %w", n, err)
		}
	}
	return nil
}

// backward accumulates the node's gradient into its parents.
func (n *Node) backward() error {
	if n.grad == nil {
		return nil
	}
	if b := rules[n.kind].backward; b != nil {
		if err := b(n); err != nil {
			return fmt.Errorf("%v: backward: %w", n, err)
		}
	}
	return nil
}

// ZeroGrad clears the node's gradient.
func (n *Node) ZeroGrad() {
	if n.grad != nil {
		tensor.Fill(n.engine.backend, n.grad, 0)
	}
}

// Graph returns the connected component containing n.
func (n *Node) Graph() (*Graph, error) {
	if g := n.graph; g != nil && g.version == n.engine.version {
		return g, nil
	}
	return n.engine.acquire(n)
}

// Connect attaches parent as the sole parent of an input node. The parent's
// shape must match the input's shape.
func (n *Node) Connect(parent *Node) error {
	if n.kind != KindInput {
		return fmt.Errorf("connect %v: %w", n, ErrNotInput)
	}
	if parent.engine != n.engine {
		return fmt.Errorf("connect %v: parent belongs to another engine", n)
	}
	if !parent.Shape().Equal(n.Shape()) {
		return &tensor.ShapeError{Op: "connect", A: n.Shape(), B: parent.Shape(), Details: "input and parent shapes differ"}
	}
	n.unlink()
	n.parents = []*Node{parent}
	parent.addChild(n)
	n.engine.touch()
	return nil
}

// Disconnect detaches the parent of an input node.
func (n *Node) Disconnect() error {
	if n.kind != KindInput {
		return fmt.Errorf("disconnect %v: %w", n, ErrNotInput)
	}
	n.unlink()
	n.engine.touch()
	return nil
}

// Connected reports whether an input node currently has a parent.
func (n *Node) Connected() bool {
	return n.kind == KindInput && len(n.parents) == 1
}

func (n *Node) addChild(c *Node) {
	for _, existing := range n.children {
		if existing == c {
			return
		}
	}
	n.children = append(n.children, c)
}

func (n *Node) removeChild(c *Node) {
	out := n.children[:0]
	for _, existing := range n.children {
		if existing != c {
			out = append(out, existing)
		}
	}
	clear(n.children[len(out):])
	n.children = out
}

// unlink removes n from its parents' child lists and clears its parents.
func (n *Node) unlink() {
	for _, p := range n.parents {
		p.removeChild(n)
	}
	n.parents = nil
}

// Release frees every tensor the node owns and detaches it from the graph.
// The node must not be used afterwards.
func (n *Node) Release() error {
	err := n.freeTensors()
	n.unlink()
	for _, c := range n.children {
		c.parents = removeNode(c.parents, n)
	}
	n.children = nil
	n.engine.touch()
	return err
}

// freeTensors frees the value, gradient and interims the node owns.
func (n *Node) freeTensors() error {
	var errs []error
	free := func(t *tensor.RawTensor) {
		if t != nil && t.Owns() && t.Valid() {
			errs = append(errs, t.Free())
		}
	}
	free(n.value)
	free(n.grad)
	for _, t := range n.interim {
		free(t)
	}
	return errors.Join(errs...)
}

func removeNode(nodes []*Node, target *Node) []*Node {
	out := nodes[:0]
	for _, x := range nodes {
		if x != target {
			out = append(out, x)
		}
	}
	return out
}
