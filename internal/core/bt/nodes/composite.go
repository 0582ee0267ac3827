package nodes

import (
	"time"

	"github.com/zeusync/behave/internal/core/bt"
)

var (
	_ bt.Behavior = Sequence{}
	_ bt.Behavior = Selector{}
)

// Sequence runs its children in order and fails as soon as one fails.
// A reactive sequence re-checks its earlier children on every tick, which lets
// condition children abort a running action.
type Sequence struct {
	composite
	Reactive bool
}

func (Sequence) TraverseFromParent(self, skip bt.NodeIndex, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	if self+1 < skip {
		return bt.StatusRunning, self + 1
	}
	return bt.StatusSucceeded, skip
}

func (Sequence) TraverseFromChild(_, skip, childNext bt.NodeIndex, st bt.Status, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	if st == bt.StatusSucceeded && childNext < skip {
		return bt.StatusRunning, childNext
	}
	return st, skip
}

func (s Sequence) Update(self bt.NodeIndex, _ time.Duration, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	if s.Reactive {
		return bt.StatusRunning, self + 1
	}
	return bt.StatusRunning, self
}

// Selector tries its children in priority order until one does not fail.
// A reactive selector re-evaluates higher-priority children on every tick; one that
// starts running pre-empts the active child.
type Selector struct {
	composite
	Reactive bool
}

func (Selector) TraverseFromParent(self, skip bt.NodeIndex, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	if self+1 < skip {
		return bt.StatusRunning, self + 1
	}
	return bt.StatusFailed, skip
}

func (Selector) TraverseFromChild(_, skip, childNext bt.NodeIndex, st bt.Status, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	if st == bt.StatusFailed && childNext < skip {
		return bt.StatusRunning, childNext
	}
	return st, skip
}

func (s Selector) Update(self bt.NodeIndex, _ time.Duration, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	if s.Reactive {
		return bt.StatusRunning, self + 1
	}
	return bt.StatusRunning, self
}
