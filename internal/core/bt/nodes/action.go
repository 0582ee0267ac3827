package nodes

import (
	"encoding/binary"
	"time"

	"github.com/zeusync/behave/internal/core/bt"
)

var (
	_ bt.Behavior = (*Action)(nil)
	_ bt.Behavior = (*Wait)(nil)
)

// ActionFuncs implement a leaf action in Go. Only Tick is required. Start may reject the
// activation by returning StatusFailed; Stop runs once for every successful Start.
type ActionFuncs struct {
	Start func(c *bt.Context) bt.Status
	Tick  func(c *bt.Context, dt time.Duration) bt.Status
	Stop  func(c *bt.Context)
}

// Action is a leaf driven by ActionFuncs. It reports whatever Tick returns.
type Action struct {
	leaf
	name  string
	funcs ActionFuncs
}

func NewAction(name string, funcs ActionFuncs) *Action {
	return &Action{name: name, funcs: funcs}
}

func (a *Action) Name() string { return a.name }

func (a *Action) Activate(c *bt.Context) bt.Status {
	if a.funcs.Start != nil {
		return a.funcs.Start(c)
	}
	return bt.StatusRunning
}

func (a *Action) Deactivate(c *bt.Context) {
	if a.funcs.Stop != nil {
		a.funcs.Stop(c)
	}
}

func (a *Action) Update(self bt.NodeIndex, dt time.Duration, c *bt.Context) (bt.Status, bt.NodeIndex) {
	if a.funcs.Tick == nil {
		return bt.StatusSucceeded, self
	}
	return a.funcs.Tick(c, dt), self
}

// Wait succeeds once it has been active for Duration. The elapsed time lives in the
// node's instance data, so one Wait serves any number of players.
type Wait struct {
	leaf
	Duration time.Duration
}

func NewWait(d time.Duration) *Wait { return &Wait{Duration: d} }

func (*Wait) InstanceDataSize() int      { return 8 }
func (*Wait) InstanceDataAlignment() int { return 8 }

func (w *Wait) Update(self bt.NodeIndex, dt time.Duration, c *bt.Context) (bt.Status, bt.NodeIndex) {
	elapsed := time.Duration(binary.LittleEndian.Uint64(c.Data)) + dt
	binary.LittleEndian.PutUint64(c.Data, uint64(elapsed))
	if elapsed >= w.Duration {
		return bt.StatusSucceeded, self
	}
	return bt.StatusRunning, self
}

// Elapsed decodes the time a Wait has spent active from its instance data.
func Elapsed(data []byte) time.Duration {
	if len(data) < 8 {
		return 0
	}
	return time.Duration(binary.LittleEndian.Uint64(data))
}
