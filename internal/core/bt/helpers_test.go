package bt

import (
	"time"
)

type testAsset struct {
	nodes []Node
	depth int
	bytes int
}

func (a *testAsset) NodeCount() int { return len(a.nodes) }
func (a *testAsset) MaxDepth() int { return a.depth }
func (a *testAsset) MaxInstanceBytes() int { return a.bytes }
func (a *testAsset) Node(index NodeIndex) Node { return a.nodes[index] }
func (a *testAsset) NodeName(index NodeIndex) string {
	if p, ok := a.nodes[index].Behavior.(*fake); ok {
		return p.name
	}
	return ""
}

// newTestAsset derives MaxDepth and a worst-case MaxInstanceBytes from the skip indices.
func newTestAsset(nodes ...Node) *testAsset {
	a := &testAsset{nodes: nodes}
	type open struct {
		skip  NodeIndex
		bytes int
	}
	var stack []open
	for i, n := range nodes {
		for len(stack) > 0 && stack[len(stack)-1].skip <= NodeIndex(i) {
			stack = stack[:len(stack)-1]
		}
		bytes := 0
		if len(stack) > 0 {
			bytes = stack[len(stack)-1].bytes
		}
		if size := n.Behavior.InstanceDataSize(); size > 0 {
			align := max(n.Behavior.InstanceDataAlignment(), 1)
			bytes += size + align - 1
		}
		stack = append(stack, open{skip: n.Skip, bytes: bytes})
		a.depth = max(a.depth, len(stack))
		a.bytes = max(a.bytes, bytes)
	}
	return a
}

func node(skip NodeIndex, b Behavior) Node { return Node{Skip: skip, Behavior: b} }

// recorder tracks lifecycle calls across every fake of one tree.
type recorder struct {
	events    []string
	live      []string
	misorders int
}

func (r *recorder) activated(name string) {
	r.events = append(r.events, "activate:"+name)
	r.live = append(r.live, name)
}

func (r *recorder) deactivated(name string) {
	r.events = append(r.events, "deactivate:"+name)
	if len(r.live) == 0 || r.live[len(r.live)-1] != name {
		r.misorders++
		return
	}
	r.live = r.live[:len(r.live)-1]
}

func (r *recorder) reset() { r.events = r.events[:0] }

// fake is a scriptable behavior. Without hooks it descends into its first child when it
// has one and otherwise asks to become active; it reports its child's status upward and
// keeps running once active.
type fake struct {
	name  string
	size  int
	align int
	fail  bool
	rec   *recorder

	update func(self NodeIndex, dt time.Duration, c *Context) (Status, NodeIndex)
	parent func(self, skip NodeIndex, c *Context) (Status, NodeIndex)
	child  func(self, skip, childNext NodeIndex, st Status, c *Context) (Status, NodeIndex)

	attempts      int
	activations   int
	deactivations int
	updates       int
	parents       int
	children      int
	dirty         int
	corrupt       int
}

func (b *fake) InstanceDataSize() int      { return b.size }
func (b *fake) InstanceDataAlignment() int { return b.align }

func (b *fake) mark() byte { return b.name[0] }

func (b *fake) Activate(c *Context) Status {
	b.attempts++
	if len(c.Data) != b.size {
		b.corrupt++
	}
	for _, v := range c.Data {
		if v != 0 {
			b.dirty++
			break
		}
	}
	if b.fail {
		return StatusFailed
	}
	for i := range c.Data {
		c.Data[i] = b.mark()
	}
	b.activations++
	if b.rec != nil {
		b.rec.activated(b.name)
	}
	return StatusRunning
}

func (b *fake) Deactivate(c *Context) {
	b.check(c)
	b.deactivations++
	if b.rec != nil {
		b.rec.deactivated(b.name)
	}
}

func (b *fake) check(c *Context) {
	if len(c.Data) != b.size {
		b.corrupt++
		return
	}
	for _, v := range c.Data {
		if v != b.mark() {
			b.corrupt++
			return
		}
	}
}

func (b *fake) Update(self NodeIndex, dt time.Duration, c *Context) (Status, NodeIndex) {
	b.updates++
	b.check(c)
	if b.update != nil {
		return b.update(self, dt, c)
	}
	return StatusRunning, self
}

func (b *fake) TraverseFromParent(self, skip NodeIndex, c *Context) (Status, NodeIndex) {
	b.parents++
	if b.parent != nil {
		return b.parent(self, skip, c)
	}
	if self+1 < skip {
		return StatusRunning, self + 1
	}
	return StatusRunning, self
}

func (b *fake) TraverseFromChild(self, skip, childNext NodeIndex, st Status, c *Context) (Status, NodeIndex) {
	b.children++
	if b.child != nil {
		return b.child(self, skip, childNext, st, c)
	}
	return st, skip
}

// pair builds root(0, skip 3) with leaf children A(1, skip 2) and B(2, skip 3).
func pair(rec *recorder) (*testAsset, *fake, *fake, *fake) {
	root := &fake{name: "root", rec: rec}
	a := &fake{name: "A", rec: rec}
	b := &fake{name: "B", rec: rec}
	return newTestAsset(node(3, root), node(2, a), node(3, b)), root, a, b
}

type countingObserver struct {
	activated   int
	rejected    int
	deactivated int
	sweeps      int
	last        Status
	violations  []error
}

func (o *countingObserver) OnActivate(_ NodeIndex, ok bool) {
	if ok {
		o.activated++
	} else {
		o.rejected++
	}
}

func (o *countingObserver) OnDeactivate(NodeIndex) { o.deactivated++ }

func (o *countingObserver) OnSweep(status Status, _ time.Duration) {
	o.sweeps++
	o.last = status
}

func (o *countingObserver) OnViolation(err error) { o.violations = append(o.violations, err) }
