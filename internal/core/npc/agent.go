package npc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/behave/internal/core/bt"
	"github.com/zeusync/behave/internal/core/bt/asset"
)

var (
	ErrNoTree      = errors.New("npc: agent has no tree")
	ErrUnknownNode = errors.New("npc: unknown node")
	ErrUnknownTree = errors.New("npc: unknown tree")
	ErrRunning     = errors.New("npc: manager already running")
)

// Agent pairs a player with its blackboard. All methods are safe for concurrent use; the
// player itself is only touched under the agent lock.
type Agent struct {
	mu     sync.Mutex
	id     uuid.UUID
	name   string
	tree   *asset.Tree
	player *bt.Player
	bb     *Blackboard

	status  bt.Status
	runs    uint64
	ticks   uint64
	lastErr error
	updated time.Time
}

// AgentInfo is a point-in-time view of an agent.
type AgentInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Tree       string    `json:"tree"`
	Status     string    `json:"status"`
	Path       []string  `json:"path"`
	Runs       uint64    `json:"runs"`
	Ticks      uint64    `json:"ticks"`
	ArenaBytes int       `json:"arena_bytes"`
	LastError  string    `json:"last_error,omitempty"`
	Updated    time.Time `json:"updated"`
}

// NewAgent creates an agent driving player, or a fresh player when nil.
func NewAgent(name string, player *bt.Player) *Agent {
	if player == nil {
		player = bt.NewPlayer()
	}
	a := &Agent{
		id:     uuid.New(),
		name:   name,
		player: player,
		bb:     NewBlackboard(),
	}
	player.Bind(a.bb)
	return a
}

func (a *Agent) ID() uuid.UUID { return a.id }

func (a *Agent) Name() string { return a.name }

func (a *Agent) Blackboard() *Blackboard { return a.bb }

func (a *Agent) Tree() *asset.Tree {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree
}

// SetTree stops the current run and starts tree from scratch on the next update.
func (a *Agent) SetTree(tree *asset.Tree) error {
	if tree == nil {
		return ErrNoTree
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.player == nil {
		return ErrNoTree
	}
	if err := a.player.Start(tree); err != nil {
		return fmt.Errorf("failed to start tree %s on agent %s: %w", tree.Name(), a.name, err)
	}
	a.tree = tree
	a.status = bt.StatusRunning
	a.lastErr = nil
	return nil
}

// Update ticks the tree once. A finished run is counted and the next update starts a new
// one from the root.
func (a *Agent) Update(ctx context.Context, dt time.Duration) (bt.Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tree == nil {
		return bt.StatusFailed, ErrNoTree
	}
	status, err := a.player.UpdateContext(ctx, dt)
	a.ticks++
	a.status = status
	a.updated = time.Now()
	if err != nil {
		a.lastErr = err
		return status, err
	}
	if status != bt.StatusRunning {
		a.runs++
	}
	return status, nil
}

// Request redirects the active node at level-1 to index on the next update.
func (a *Agent) Request(level int, index bt.NodeIndex) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tree == nil {
		return ErrNoTree
	}
	return a.player.Request(level, index)
}

// Preempt asks the parent of the named node to switch to it on the next update. The
// parent must be on the active path.
func (a *Agent) Preempt(node string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tree == nil {
		return ErrNoTree
	}
	index, ok := a.tree.Lookup(node)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}
	info, _ := a.tree.Info(index)
	return a.player.Request(info.Depth, index)
}

// Stop deactivates the active path. The tree stays assigned.
func (a *Agent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.player == nil {
		return nil
	}
	return a.player.Stop()
}

func (a *Agent) Info() AgentInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	info := AgentInfo{
		ID:      a.id.String(),
		Name:    a.name,
		Status:  a.status.String(),
		Runs:    a.runs,
		Ticks:   a.ticks,
		Updated: a.updated,
	}
	if a.lastErr != nil {
		info.LastError = a.lastErr.Error()
	}
	if a.tree != nil {
		info.Tree = a.tree.Name()
		for _, index := range a.player.ActivePath(nil) {
			info.Path = append(info.Path, a.tree.NodeName(index))
		}
	}
	if a.player != nil {
		info.ArenaBytes = a.player.ArenaSize()
	}
	return info
}

// detach stops the agent and hands its player back. The agent is unusable afterwards.
func (a *Agent) detach() *bt.Player {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.player
	a.player = nil
	a.tree = nil
	return p
}
