package npc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/behave/internal/core/bt"
	"github.com/zeusync/behave/internal/core/bt/asset"
	"github.com/zeusync/behave/internal/core/events/bus"
	"github.com/zeusync/behave/internal/core/observability/log"
	"github.com/zeusync/behave/pkg/concurrent"
	"github.com/zeusync/behave/pkg/generic"
)

// Manager owns a set of agents and the trees they run. Players are recycled through a
// pool so an agent spawned after another was removed reuses its arena.
type Manager struct {
	mu     sync.RWMutex
	agents map[uuid.UUID]*Agent
	order  []*Agent
	trees  map[string]*asset.Tree

	players  *generic.Pool[*bt.Player]
	observer bt.Observer
	events   *bus.Bus
	log      log.Log
	cfg      ManagerConfig

	running    atomic.Bool
	ticks      atomic.Uint64
	violations atomic.Uint64
	lastUpdate atomic.Int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAgentObserver installs an observer on every player the manager creates.
func WithAgentObserver(o bt.Observer) ManagerOption {
	return func(m *Manager) { m.observer = o }
}

// WithEventBus publishes agent lifecycle events on b. Handlers run while the manager
// holds its locks and must not call back into it.
func WithEventBus(b *bus.Bus) ManagerOption {
	return func(m *Manager) { m.events = b }
}

// NewManager creates an empty manager. A nil logger disables logging.
func NewManager(cfg ManagerConfig, logger log.Log, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultManagerConfig().Workers
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultManagerConfig().TickRate
	}
	m := &Manager{
		agents: make(map[uuid.UUID]*Agent),
		trees:  make(map[string]*asset.Tree),
		log:    logger,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.players = generic.NewResetPool(m.newPlayer, func(p *bt.Player) {
		_ = p.Stop()
		p.Bind(nil)
	})
	return m
}

func (m *Manager) newPlayer() *bt.Player {
	opts := []bt.Option{bt.WithLogger(m.log)}
	if m.observer != nil {
		opts = append(opts, bt.WithObserver(m.observer))
	}
	return bt.NewPlayer(opts...)
}

// AddTree registers tree under its name, replacing and reloading an existing one.
func (m *Manager) AddTree(tree *asset.Tree) (int, error) {
	if tree == nil {
		return 0, ErrNoTree
	}
	return m.Reload(tree.Name(), tree)
}

// Reload replaces the tree registered as name and restarts the agents running it. It is
// a no-op when the new tree hashes equal to the current one. It returns the number of
// agents restarted.
func (m *Manager) Reload(name string, tree *asset.Tree) (int, error) {
	if tree == nil {
		return 0, ErrNoTree
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.trees[name]; ok && old.Hash() == tree.Hash() {
		m.log.Debug("tree unchanged, reload skipped", log.String("tree", name))
		return 0, nil
	}
	m.trees[name] = tree

	var restarted int
	var errs []error
	for _, a := range m.order {
		current := a.Tree()
		if current == nil || current.Name() != name {
			continue
		}
		if err := a.SetTree(tree); err != nil {
			errs = append(errs, err)
			continue
		}
		restarted++
	}
	m.log.Info("tree loaded",
		log.String("tree", name),
		log.Int("nodes", tree.NodeCount()),
		log.Int("max_depth", tree.MaxDepth()),
		log.Int("max_instance_bytes", tree.MaxInstanceBytes()),
		log.Int("restarted", restarted))
	m.publish(bus.TreeReloaded, name, restarted)
	return restarted, errors.Join(errs...)
}

func (m *Manager) Tree(name string) (*asset.Tree, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trees[name]
	return t, ok
}

// Trees returns the registered tree names, sorted.
func (m *Manager) Trees() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.trees))
	for name := range m.trees {
		names = append(names, name)
	}
	m.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Spawn creates an agent running the named tree with values preloaded on its blackboard.
func (m *Manager) Spawn(name, tree string, values map[string]any) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trees[tree]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTree, tree)
	}
	player := m.players.Get()
	a := NewAgent(name, player)
	a.bb.SetAll(values)
	if err := a.SetTree(t); err != nil {
		m.players.Put(a.detach())
		return nil, err
	}
	m.agents[a.id] = a
	m.order = append(m.order, a)
	m.log.Debug("agent spawned", log.String("agent", a.id.String()), log.String("name", name), log.String("tree", tree))
	m.publish(bus.AgentSpawned, a.id.String(), name)
	return a, nil
}

// SpawnGroups spawns every agent group of the config. Groups are named "name-i" when
// they hold more than one agent.
func (m *Manager) SpawnGroups(groups []AgentConfig) ([]*Agent, error) {
	var spawned []*Agent
	for _, g := range groups {
		for i := 0; i < max(g.Count, 1); i++ {
			name := g.Name
			if g.Count > 1 {
				name = fmt.Sprintf("%s-%d", g.Name, i)
			}
			a, err := m.Spawn(name, g.Tree, g.Blackboard)
			if err != nil {
				return spawned, fmt.Errorf("failed to spawn agent group %s: %w", g.Name, err)
			}
			spawned = append(spawned, a)
		}
	}
	return spawned, nil
}

// Remove stops the agent and recycles its player.
func (m *Manager) Remove(id uuid.UUID) bool {
	m.mu.Lock()
	a, ok := m.agents[id]
	if ok {
		delete(m.agents, id)
		m.order = slices.DeleteFunc(m.order, func(x *Agent) bool { return x == a })
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	if p := a.detach(); p != nil {
		m.players.Put(p)
	}
	m.publish(bus.AgentRemoved, id.String(), a.name)
	return true
}

func (m *Manager) Agent(id uuid.UUID) (*Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	return a, ok
}

// Agents returns the agents in spawn order.
func (m *Manager) Agents() []*Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Update ticks every agent once, in parallel batches of at most cfg.Workers goroutines.
// Invariant violations are logged and counted; the offending agent restarts on its next
// update. Only cancellation of ctx is returned.
func (m *Manager) Update(ctx context.Context, dt time.Duration) error {
	agents := m.Agents()
	err := concurrent.Batch(ctx, agents, m.cfg.Workers, func(ctx context.Context, a *Agent) error {
		status, err := a.Update(ctx, dt)
		var inv *bt.InvariantError
		switch {
		case err == nil:
			if status != bt.StatusRunning {
				m.publish(bus.RunFinished, a.id.String(), status)
			}
		case errors.Is(err, ErrNoTree):
		case errors.As(err, &inv):
			m.violations.Add(1)
			m.log.Error("agent tree aborted",
				log.String("agent", a.id.String()),
				log.String("name", a.name),
				log.Error(err))
			m.publish(bus.TreeAborted, a.id.String(), err)
		default:
			m.log.Warn("agent update failed", log.String("agent", a.id.String()), log.Error(err))
		}
		return nil
	})
	m.ticks.Add(1)
	m.lastUpdate.Store(time.Now().UnixNano())
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (m *Manager) publish(typ, source string, data any) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(bus.NewEvent(typ, source, data)); err != nil {
		m.log.Warn("event handler failed", log.String("event", typ), log.Error(err))
	}
}

// Run ticks the agents every cfg.TickRate until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer m.running.Store(false)

	ticker := time.NewTicker(m.cfg.TickRate)
	defer ticker.Stop()

	m.log.Info("agent manager started",
		log.Duration("tick_rate", m.cfg.TickRate),
		log.Int("workers", m.cfg.Workers))

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("agent manager stopped", log.Uint64("ticks", m.ticks.Load()))
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := m.Update(ctx, dt); err != nil && ctx.Err() == nil {
				m.log.Error("agent manager update failed", log.Error(err))
			}
		}
	}
}

// Snapshot returns the info of every agent, ordered by name.
func (m *Manager) Snapshot() []AgentInfo {
	agents := m.Agents()
	infos := make([]AgentInfo, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, a.Info())
	}
	slices.SortStableFunc(infos, func(x, y AgentInfo) int { return strings.Compare(x.Name, y.Name) })
	return infos
}

// Stats summarizes the manager.
type Stats struct {
	Agents         int       `json:"agents"`
	Trees          int       `json:"trees"`
	Ticks          uint64    `json:"ticks"`
	Violations     uint64    `json:"violations"`
	PlayersCreated int64     `json:"players_created"`
	Running        bool      `json:"running"`
	TickRate       string    `json:"tick_rate"`
	LastUpdate     time.Time `json:"last_update"`
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	agents, trees := len(m.agents), len(m.trees)
	m.mu.RUnlock()
	s := Stats{
		Agents:         agents,
		Trees:          trees,
		Ticks:          m.ticks.Load(),
		Violations:     m.violations.Load(),
		PlayersCreated: m.players.Created(),
		Running:        m.running.Load(),
		TickRate:       m.cfg.TickRate.String(),
	}
	if ns := m.lastUpdate.Load(); ns != 0 {
		s.LastUpdate = time.Unix(0, ns)
	}
	return s
}

// Close removes every agent.
func (m *Manager) Close() {
	for _, a := range m.Agents() {
		m.Remove(a.id)
	}
}
