// Package nodes provides a small set of behaviors for the bt player: composites,
// a guard decorator and leaves backed by Go functions, expressions, timers, tengo
// scripts and go-behaviortree nodes.
package nodes

import (
	"time"

	"github.com/zeusync/behave/internal/core/bt"
)

// leaf holds the defaults of a node without children: it asks to become active when
// entered and keeps running once active.
type leaf struct{}

func (leaf) InstanceDataSize() int      { return 0 }
func (leaf) InstanceDataAlignment() int { return 0 }

func (leaf) Activate(*bt.Context) bt.Status { return bt.StatusRunning }
func (leaf) Deactivate(*bt.Context)         {}

func (leaf) Update(self bt.NodeIndex, _ time.Duration, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	return bt.StatusRunning, self
}

func (leaf) TraverseFromParent(self, _ bt.NodeIndex, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	return bt.StatusRunning, self
}

func (leaf) TraverseFromChild(_, skip, _ bt.NodeIndex, st bt.Status, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	return st, skip
}

// composite holds the defaults of a node with children. It only becomes active as part
// of a descendant's path.
type composite struct{}

func (composite) InstanceDataSize() int      { return 0 }
func (composite) InstanceDataAlignment() int { return 0 }

func (composite) Activate(*bt.Context) bt.Status { return bt.StatusRunning }
func (composite) Deactivate(*bt.Context)         {}

// Snapshotter is implemented by blackboards that can expose their contents as an
// expression environment.
type Snapshotter interface {
	Snapshot() map[string]any
}

func envOf(bb bt.Blackboard) map[string]any {
	if s, ok := bb.(Snapshotter); ok {
		return s.Snapshot()
	}
	return map[string]any{}
}
