package npc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/behave/internal/core/bt"
	"github.com/zeusync/behave/internal/core/bt/asset"
	"github.com/zeusync/behave/internal/core/bt/nodes"
	"github.com/zeusync/behave/internal/core/events/bus"
)

const tick = 100 * time.Millisecond

const waitTree = `
name: idle
root: wait
nodes:
  wait:
    type: wait
    params: {duration: %s}
`

const fleeTree = `
name: flee
root: main
nodes:
  main:
    type: selector
    children: [flee, patrol]
  flee:
    type: sequence
    children: [low, run]
  low:
    type: condition
    params: {expr: "hp < 30"}
  run:
    type: action
    params: {name: run}
  patrol:
    type: action
    params: {name: patrol}
`

type runningFuncs struct {
	mu     sync.Mutex
	starts map[string]int
}

func (r *runningFuncs) action(name string) nodes.ActionFuncs {
	return nodes.ActionFuncs{
		Start: func(*bt.Context) bt.Status {
			r.mu.Lock()
			r.starts[name]++
			r.mu.Unlock()
			return bt.StatusRunning
		},
		Tick: func(*bt.Context, time.Duration) bt.Status { return bt.StatusRunning },
	}
}

func (r *runningFuncs) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts[name]
}

func compile(t *testing.T, src string, lib nodes.Library, extra ...func(*asset.Registry)) *asset.Tree {
	t.Helper()
	reg := asset.NewRegistry()
	require.NoError(t, nodes.RegisterBuiltins(reg, lib))
	for _, f := range extra {
		f(reg)
	}
	cfg, err := asset.LoadYAML(strings.NewReader(src))
	require.NoError(t, err)
	tree, err := asset.Compile(cfg, reg)
	require.NoError(t, err)
	return tree
}

func waitFor(t *testing.T, d string) *asset.Tree {
	return compile(t, strings.Replace(waitTree, "%s", d, 1), nodes.Library{})
}

func fleeFixture(t *testing.T) (*asset.Tree, *runningFuncs) {
	funcs := &runningFuncs{starts: map[string]int{}}
	lib := nodes.Library{Actions: map[string]nodes.ActionFuncs{
		"run":    funcs.action("run"),
		"patrol": funcs.action("patrol"),
	}}
	return compile(t, fleeTree, lib), funcs
}

// overshoot answers its parent with an index past its own subtree.
type overshoot struct{}

func (overshoot) InstanceDataSize() int          { return 0 }
func (overshoot) InstanceDataAlignment() int     { return 0 }
func (overshoot) Activate(*bt.Context) bt.Status { return bt.StatusRunning }
func (overshoot) Deactivate(*bt.Context)         {}

func (overshoot) Update(self bt.NodeIndex, _ time.Duration, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	return bt.StatusRunning, self
}

func (overshoot) TraverseFromParent(_, skip bt.NodeIndex, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	return bt.StatusRunning, skip + 1
}

func (overshoot) TraverseFromChild(_, skip, _ bt.NodeIndex, st bt.Status, _ *bt.Context) (bt.Status, bt.NodeIndex) {
	return st, skip
}

type atomicObserver struct {
	activations, sweeps, violations atomic.Int64
}

func (o *atomicObserver) OnActivate(_ bt.NodeIndex, ok bool) {
	if ok {
		o.activations.Add(1)
	}
}

func (o *atomicObserver) OnDeactivate(bt.NodeIndex)        {}
func (o *atomicObserver) OnSweep(bt.Status, time.Duration) { o.sweeps.Add(1) }
func (o *atomicObserver) OnViolation(error)                { o.violations.Add(1) }

func TestBlackboardNamespaces(t *testing.T) {
	bb := NewBlackboard()
	bb.Set("hp", 100)
	combat := bb.Namespace("combat")
	combat.Set("target", "orc")
	combat.Namespace("a:b").Set("x", 1)

	v, ok := bb.Get("combat:target")
	require.True(t, ok)
	assert.Equal(t, "orc", v)

	_, ok = combat.Get("hp")
	assert.False(t, ok)

	assert.Equal(t, []string{"combat:a_b:x", "combat:target", "hp"}, bb.Keys())
	assert.Equal(t, []string{"a_b:x", "target"}, combat.Keys())
	assert.Equal(t, map[string]any{"target": "orc", "a_b:x": 1}, combat.Snapshot())

	combat.Delete("target")
	_, ok = bb.Get("combat:target")
	assert.False(t, ok)
}

func TestBlackboardBinary(t *testing.T) {
	bb := NewBlackboard()
	bb.SetAll(map[string]any{"hp": 42, "name": "guard"})
	data, err := bb.MarshalBinary()
	require.NoError(t, err)

	restored := NewBlackboard()
	require.NoError(t, restored.UnmarshalBinary(data))
	assert.Equal(t, bb.Snapshot(), restored.Snapshot())
	assert.Error(t, restored.UnmarshalBinary([]byte("garbage")))
}

func TestLoadManagerConfig(t *testing.T) {
	cfg, err := LoadManagerConfig(strings.NewReader(`
workers: 3
tick_rate: 10ms
log_level: debug
agents:
  - name: guard
    tree: patrol
    count: 4
    blackboard: {hp: 80}
  - tree: idle
`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 10*time.Millisecond, cfg.TickRate)
	assert.Equal(t, "trees", cfg.TreeDir)
	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, 80, cfg.Agents[0].Blackboard["hp"])
	assert.Equal(t, "idle", cfg.Agents[1].Name)
	assert.Equal(t, 1, cfg.Agents[1].Count)

	empty, err := LoadManagerConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultManagerConfig().TickRate, empty.TickRate)
}

func TestManagerConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"negative workers", "workers: -1"},
		{"zero tick", "tick_rate: 0s"},
		{"bad level", "log_level: loud"},
		{"no tree", "agents: [{name: x}]"},
		{"negative count", "agents: [{tree: t, count: -2}]"},
		{"unknown field", "tickrate: 5ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadManagerConfig(strings.NewReader(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestAgentCountsRuns(t *testing.T) {
	a := NewAgent("idle", nil)
	_, err := a.Update(context.Background(), tick)
	assert.ErrorIs(t, err, ErrNoTree)

	require.NoError(t, a.SetTree(waitFor(t, "200ms")))
	for range 6 {
		_, err := a.Update(context.Background(), tick)
		require.NoError(t, err)
	}
	// Each run activates on its first tick and finishes two ticks later.
	info := a.Info()
	assert.Equal(t, uint64(2), info.Runs)
	assert.Equal(t, uint64(6), info.Ticks)
	assert.Equal(t, "idle", info.Tree)
	assert.Equal(t, bt.StatusSucceeded.String(), info.Status)
}

func TestAgentPreempt(t *testing.T) {
	tree, funcs := fleeFixture(t)
	a := NewAgent("guard", nil)
	a.Blackboard().Set("hp", 100)
	require.NoError(t, a.SetTree(tree))

	ctx := context.Background()
	_, err := a.Update(ctx, tick)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "patrol"}, a.Info().Path)

	a.Blackboard().Set("hp", 10)
	_, err = a.Update(ctx, tick)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "patrol"}, a.Info().Path)

	require.NoError(t, a.Preempt("flee"))
	_, err = a.Update(ctx, tick)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "flee", "run"}, a.Info().Path)
	assert.Equal(t, 1, funcs.count("run"))

	assert.ErrorIs(t, a.Preempt("nope"), ErrUnknownNode)
	assert.ErrorIs(t, a.Preempt("main"), bt.ErrInvalidRequest)
	require.NoError(t, a.Stop())
	assert.Empty(t, a.Info().Path)
}

func newManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	cfg := DefaultManagerConfig()
	cfg.Workers = 3
	cfg.TickRate = 5 * time.Millisecond
	m := NewManager(cfg, nil, opts...)
	t.Cleanup(m.Close)
	return m
}

func TestManagerSpawnAndUpdate(t *testing.T) {
	obs := &atomicObserver{}
	m := newManager(t, WithAgentObserver(obs))
	tree, funcs := fleeFixture(t)
	_, err := m.AddTree(tree)
	require.NoError(t, err)

	_, err = m.Spawn("ghost", "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownTree)

	agents, err := m.SpawnGroups([]AgentConfig{
		{Name: "guard", Tree: "flee", Count: 5, Blackboard: map[string]any{"hp": 100}},
		{Name: "coward", Tree: "flee", Count: 1, Blackboard: map[string]any{"hp": 5}},
	})
	require.NoError(t, err)
	require.Len(t, agents, 6)
	assert.Equal(t, "guard-0", agents[0].Name())
	assert.Equal(t, "coward", agents[5].Name())

	require.NoError(t, m.Update(context.Background(), tick))
	require.NoError(t, m.Update(context.Background(), tick))
	assert.Equal(t, 5, funcs.count("patrol"))
	assert.Equal(t, 1, funcs.count("run"))

	snap := m.Snapshot()
	require.Len(t, snap, 6)
	assert.Equal(t, "coward", snap[0].Name)
	assert.Equal(t, []string{"main", "flee", "run"}, snap[0].Path)
	for _, info := range snap[1:] {
		assert.Equal(t, []string{"main", "patrol"}, info.Path)
		assert.Equal(t, uint64(2), info.Ticks)
	}

	stats := m.Stats()
	assert.Equal(t, 6, stats.Agents)
	assert.Equal(t, 1, stats.Trees)
	assert.Equal(t, uint64(2), stats.Ticks)
	assert.Equal(t, int64(12), obs.sweeps.Load())
	assert.Equal(t, int64(13), obs.activations.Load())
}

func TestManagerReload(t *testing.T) {
	m := newManager(t)
	_, err := m.AddTree(waitFor(t, "1s"))
	require.NoError(t, err)
	a, err := m.Spawn("idle", "idle", nil)
	require.NoError(t, err)
	require.NoError(t, m.Update(context.Background(), tick))
	require.Equal(t, []string{"wait"}, a.Info().Path)

	n, err := m.Reload("idle", waitFor(t, "1s"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"wait"}, a.Info().Path)

	changed := waitFor(t, "50ms")
	n, err = m.Reload("idle", changed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, a.Info().Path)
	assert.Same(t, changed, a.Tree())

	got, ok := m.Tree("idle")
	require.True(t, ok)
	assert.Same(t, changed, got)
	assert.Equal(t, []string{"idle"}, m.Trees())
}

func TestManagerReloadRenamedNode(t *testing.T) {
	m := newManager(t)
	tree, _ := fleeFixture(t)
	_, err := m.AddTree(tree)
	require.NoError(t, err)
	a, err := m.Spawn("guard", "flee", map[string]any{"hp": 10})
	require.NoError(t, err)
	require.NoError(t, m.Update(context.Background(), tick))

	funcs := &runningFuncs{starts: map[string]int{}}
	lib := nodes.Library{Actions: map[string]nodes.ActionFuncs{
		"run":    funcs.action("run"),
		"patrol": funcs.action("patrol"),
	}}
	renamed := compile(t, strings.NewReplacer(
		"children: [flee, patrol]", "children: [escape, patrol]",
		"  flee:\n", "  escape:\n",
	).Replace(fleeTree), lib)

	n, err := m.Reload("flee", renamed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Same(t, renamed, a.Tree())
	assert.ErrorIs(t, a.Preempt("flee"), ErrUnknownNode)

	require.NoError(t, m.Update(context.Background(), tick))
	assert.Equal(t, []string{"main", "escape", "run"}, a.Info().Path)
}

func TestManagerRemove(t *testing.T) {
	m := newManager(t)
	_, err := m.AddTree(waitFor(t, "1s"))
	require.NoError(t, err)
	a, err := m.Spawn("idle", "idle", nil)
	require.NoError(t, err)

	_, ok := m.Agent(a.ID())
	require.True(t, ok)
	assert.True(t, m.Remove(a.ID()))
	assert.False(t, m.Remove(a.ID()))
	assert.Empty(t, m.Agents())

	_, err = a.Update(context.Background(), tick)
	assert.ErrorIs(t, err, ErrNoTree)
}

func TestManagerContinuesAfterViolation(t *testing.T) {
	m := newManager(t)
	bad := compile(t, `
name: bad
root: main
nodes:
  main:
    type: sequence
    children: [leaf]
  leaf:
    type: overshoot
`, nodes.Library{}, func(reg *asset.Registry) {
		reg.MustRegister("overshoot", func(asset.Params, int) (bt.Behavior, error) { return overshoot{}, nil })
	})
	_, err := m.AddTree(bad)
	require.NoError(t, err)
	_, err = m.AddTree(waitFor(t, "1s"))
	require.NoError(t, err)

	broken, err := m.Spawn("broken", "bad", nil)
	require.NoError(t, err)
	healthy, err := m.Spawn("healthy", "idle", nil)
	require.NoError(t, err)

	require.NoError(t, m.Update(context.Background(), tick))
	assert.Equal(t, uint64(1), m.Stats().Violations)
	assert.Contains(t, broken.Info().LastError, bt.ErrTraversalBounds.Error())
	assert.Equal(t, []string{"wait"}, healthy.Info().Path)
}

func TestManagerRun(t *testing.T) {
	m := newManager(t)
	_, err := m.AddTree(waitFor(t, "1s"))
	require.NoError(t, err)
	_, err = m.Spawn("idle", "idle", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Stats().Ticks >= 3 }, time.Second, time.Millisecond)
	assert.True(t, m.Stats().Running)
	assert.ErrorIs(t, m.Run(ctx), ErrRunning)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("manager did not stop")
	}
	assert.False(t, m.Stats().Running)
}

func BenchmarkManagerUpdate(b *testing.B) {
	cfg := DefaultManagerConfig()
	m := NewManager(cfg, nil)
	defer m.Close()

	reg := asset.NewRegistry()
	require.NoError(b, nodes.RegisterBuiltins(reg, nodes.Library{}))
	tc, err := asset.LoadYAML(strings.NewReader(strings.Replace(waitTree, "%s", "1h", 1)))
	require.NoError(b, err)
	tree, err := asset.Compile(tc, reg)
	require.NoError(b, err)
	_, err = m.AddTree(tree)
	require.NoError(b, err)
	_, err = m.SpawnGroups([]AgentConfig{{Name: "npc", Tree: "idle", Count: 1000}})
	require.NoError(b, err)

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := m.Update(ctx, time.Millisecond); err != nil {
			b.Fatal(err)
		}
	}
}

func TestManagerWatchReloadsTrees(t *testing.T) {
	dir := t.TempDir()
	write := func(d string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "idle.yaml"), []byte(strings.Replace(waitTree, "%s", d, 1)), 0o600))
	}
	write("1s")

	reg := asset.NewRegistry()
	require.NoError(t, nodes.RegisterBuiltins(reg, nodes.Library{ScriptDir: dir}))
	m := newManager(t)
	_, err := m.LoadDir(dir, reg)
	require.NoError(t, err)
	a, err := m.Spawn("idle", "idle", nil)
	require.NoError(t, err)
	before := a.Tree().Hash()

	w, err := asset.NewWatcher(10*time.Millisecond, dir)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Watch(ctx, w, dir, reg)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Close()
	})

	write("2s")
	require.Eventually(t, func() bool { return a.Tree().Hash() != before }, 2*time.Second, 5*time.Millisecond)

	// A broken file keeps the loaded tree.
	current := a.Tree()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "idle.yaml"), []byte("root: [oops"), 0o600))
	time.Sleep(50 * time.Millisecond)
	assert.Same(t, current, a.Tree())
}

func TestManagerPublishesEvents(t *testing.T) {
	events := bus.New()
	var mu sync.Mutex
	seen := map[string]int{}
	events.Subscribe(bus.Any, func(e bus.Event) error {
		mu.Lock()
		seen[e.Type]++
		mu.Unlock()
		return nil
	})

	m := newManager(t, WithEventBus(events))
	_, err := m.AddTree(waitFor(t, "150ms"))
	require.NoError(t, err)
	_, err = m.SpawnGroups([]AgentConfig{{Name: "idle", Tree: "idle", Count: 2}})
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, m.Update(context.Background(), tick))
	}
	m.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{
		bus.TreeReloaded: 1,
		bus.AgentSpawned: 2,
		bus.RunFinished:  2,
		bus.AgentRemoved: 2,
	}, seen)
}
