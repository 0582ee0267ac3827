package nodes

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/zeusync/behave/internal/core/bt"
)

var (
	_ bt.Behavior = (*Condition)(nil)
	_ bt.Behavior = (*Guard)(nil)
)

// Predicate is a compiled boolean expression over the blackboard, e.g.
// `hp < 30 && enemy != nil`. Unknown names evaluate to nil.
type Predicate struct {
	source  string
	program *vm.Program
}

func CompilePredicate(source string) (*Predicate, error) {
	if source == "" {
		return nil, fmt.Errorf("empty expression")
	}
	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	return &Predicate{source: source, program: program}, nil
}

func (p *Predicate) String() string { return p.source }

// Eval runs the predicate against the blackboard. Evaluation errors count as false.
func (p *Predicate) Eval(bb bt.Blackboard) bool {
	out, err := expr.Run(p.program, envOf(bb))
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func status(ok bool) bt.Status {
	if ok {
		return bt.StatusSucceeded
	}
	return bt.StatusFailed
}

// Condition is a leaf that succeeds when its predicate holds. It answers immediately
// on traversal and never joins the active path.
type Condition struct {
	leaf
	pred *Predicate
}

func NewCondition(p *Predicate) *Condition { return &Condition{pred: p} }

func (n *Condition) TraverseFromParent(_, skip bt.NodeIndex, c *bt.Context) (bt.Status, bt.NodeIndex) {
	return status(n.pred.Eval(c.BB)), skip
}

func (n *Condition) Update(self bt.NodeIndex, _ time.Duration, c *bt.Context) (bt.Status, bt.NodeIndex) {
	return status(n.pred.Eval(c.BB)), self
}

// Guard is a decorator that enters its single child only while the predicate holds.
// The predicate is checked on traversal, again on activation and on every tick of an
// active guard; a false result fails the guard.
type Guard struct {
	composite
	pred *Predicate
}

func NewGuard(p *Predicate) *Guard { return &Guard{pred: p} }

func (g *Guard) Activate(c *bt.Context) bt.Status {
	if !g.pred.Eval(c.BB) {
		return bt.StatusFailed
	}
	return bt.StatusRunning
}

func (g *Guard) TraverseFromParent(self, skip bt.NodeIndex, c *bt.Context) (bt.Status, bt.NodeIndex) {
	if self+1 >= skip || !g.pred.Eval(c.BB) {
		return bt.StatusFailed, skip
	}
	return bt.StatusRunning, self + 1
}

func (g *Guard) TraverseFromChild(_, skip, _ bt.NodeIndex, st bt.Status, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	return st, skip
}

func (g *Guard) Update(self bt.NodeIndex, _ time.Duration, c *bt.Context) (bt.Status, bt.NodeIndex) {
	if !g.pred.Eval(c.BB) {
		return bt.StatusFailed, c.Skip(self)
	}
	return bt.StatusRunning, self
}
