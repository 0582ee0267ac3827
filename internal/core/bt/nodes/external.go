package nodes

import (
	"time"

	gobt "github.com/joeycumines/go-behaviortree"

	"github.com/zeusync/behave/internal/core/bt"
)

var _ bt.Behavior = (*External)(nil)

// External runs a go-behaviortree node as a leaf action. Build is called on every tick so
// the node can close over the context; the built node should not keep state across ticks.
type External struct {
	leaf
	name  string
	Build func(c *bt.Context) gobt.Node
}

func NewExternal(name string, build func(c *bt.Context) gobt.Node) *External {
	return &External{name: name, Build: build}
}

func (e *External) Name() string { return e.name }

func (e *External) Update(self bt.NodeIndex, _ time.Duration, c *bt.Context) (bt.Status, bt.NodeIndex) {
	node := e.Build(c)
	if node == nil {
		return bt.StatusFailed, self
	}
	st, err := node.Tick()
	if err != nil {
		return bt.StatusFailed, self
	}
	return fromExternal(st), self
}

func fromExternal(st gobt.Status) bt.Status {
	switch st {
	case gobt.Running:
		return bt.StatusRunning
	case gobt.Success:
		return bt.StatusSucceeded
	default:
		return bt.StatusFailed
	}
}
