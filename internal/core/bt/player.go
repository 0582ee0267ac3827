package bt

import (
	"context"
	"fmt"

	"github.com/zeusync/behave/internal/core/observability/log"
)

// Player runs one Asset for one agent. It owns a single arena holding the traversal stacks
// and the instance data of every active node. A Player is not safe for concurrent use;
// distinct players share nothing and may be ticked from different goroutines.
type Player struct {
	asset       Asset
	arena       arena
	maxDepth    int
	activeDepth int
	// cursor is the end offset of the live instance data.
	cursor int

	ctx      Context
	log      log.Log
	observer Observer
}

// Option configures a Player.
type Option func(*Player)

// WithLogger sets the logger used for activation failures and invariant violations.
func WithLogger(l log.Log) Option {
	return func(p *Player) {
		if l != nil {
			p.log = l
		}
	}
}

// WithObserver installs a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(p *Player) { p.observer = o }
}

// WithBlackboard binds the blackboard exposed to behaviors through Context.BB.
func WithBlackboard(bb Blackboard) Option {
	return func(p *Player) { p.ctx.BB = bb }
}

// NewPlayer returns an idle player. Call Start before Update.
func NewPlayer(opts ...Option) *Player {
	p := &Player{log: log.NewNop()}
	p.ctx = Context{Ctx: context.Background(), player: p}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bind replaces the blackboard exposed to behaviors.
func (p *Player) Bind(bb Blackboard) { p.ctx.BB = bb }

// Start assigns asset and prepares the arena for it, reusing the current buffer when it is
// large enough. A running tree is stopped first. On error the player is left unchanged.
func (p *Player) Start(asset Asset) error {
	if err := ValidateAsset(asset); err != nil {
		return err
	}
	if err := p.Stop(); err != nil {
		return err
	}
	if p.arena.reset(asset.MaxDepth(), asset.MaxInstanceBytes()) {
		p.log.Debug("bt arena allocated",
			log.Int("bytes", len(p.arena.buf)),
			log.Int("nodes", asset.NodeCount()))
	}
	p.asset = asset
	p.maxDepth = asset.MaxDepth()
	p.activeDepth = 0
	p.cursor = 0
	return nil
}

// Stop deactivates every active node, innermost first. Stopping an idle player is a no-op.
// The asset stays assigned, so the next Update starts a fresh run. If the instance data
// records are found corrupted the remaining nodes are dropped without Deactivate.
func (p *Player) Stop() error {
	for p.activeDepth > 0 {
		if err := p.deactivateNode(); err != nil {
			p.reportViolation(err)
			p.activeDepth = 0
			p.cursor = 0
			return err
		}
	}
	return nil
}

// Request redirects the active node at level-1 to index on its next fast-path visit. The
// target must lie inside that node's subtree and level must be on the active path. It is
// honored when written between updates, or during an update before level-1 is revisited;
// the end of every sweep resets pending requests to the active path.
func (p *Player) Request(level int, index NodeIndex) error {
	if p.asset == nil {
		return ErrNotStarted
	}
	if level <= 0 || level >= p.activeDepth {
		return violation(ErrInvalidRequest, index, level, index)
	}
	parent := p.arena.activeStack.at(level - 1)
	if index <= parent || index >= p.asset.Node(parent).Skip {
		return violation(ErrInvalidRequest, parent, level, index)
	}
	p.arena.requestStack.set(level, index)
	return nil
}

// Asset returns the started asset, or nil.
func (p *Player) Asset() Asset { return p.asset }

// ActiveDepth returns the length of the active path.
func (p *Player) ActiveDepth() int { return p.activeDepth }

// ActivePath appends the active path, root first, to dst.
func (p *Player) ActivePath(dst []NodeIndex) []NodeIndex {
	for i := 0; i < p.activeDepth; i++ {
		dst = append(dst, p.arena.activeStack.at(i))
	}
	return dst
}

// RequestPath appends the first n request stack entries to dst.
func (p *Player) RequestPath(dst []NodeIndex, n int) []NodeIndex {
	for i := 0; i < n && i < p.maxDepth; i++ {
		dst = append(dst, p.arena.requestStack.at(i))
	}
	return dst
}

// InstanceBytes returns the bytes of instance data currently reserved, padding included.
func (p *Player) InstanceBytes() int { return p.cursor }

// ArenaSize returns the capacity of the arena buffer.
func (p *Player) ArenaSize() int { return len(p.arena.buf) }

// ArenaAllocations returns how many times the arena buffer has been allocated.
func (p *Player) ArenaAllocations() int { return p.arena.allocs }

// activateNode pushes index as the next active level. It reports false when the behavior
// or its alignment rejected the activation; the reservation is rolled back in that case.
func (p *Player) activateNode(index NodeIndex) (bool, error) {
	level := p.activeDepth
	if level >= p.maxDepth {
		return false, violation(ErrDepthExceeded, index, level, index)
	}
	b := p.asset.Node(index).Behavior
	size, align := b.InstanceDataSize(), b.InstanceDataAlignment()
	if align == 0 {
		align = 1
	}
	if size < 0 || (size > 0 && !validAlignment(align)) {
		p.log.Debug("bt activation rejected: unsupported instance data layout",
			log.String("node", p.nodeName(index)),
			log.Int("size", size),
			log.Int("align", align))
		p.notifyActivate(index, false)
		return false, nil
	}

	prev := p.cursor
	start := prev
	if size > 0 {
		start = alignUp(prev, align)
		if start+size > len(p.arena.data) {
			return false, violation(ErrArenaOverflow, index, level, index)
		}
		clear(p.arena.data[start : start+size])
		p.cursor = start + size
	}
	p.arena.records.set(level, prev, index)
	p.arena.activeStack.set(level, index)
	p.activeDepth++

	p.bind(level, index, start, size)
	if b.Activate(&p.ctx) == StatusFailed {
		p.ctx.Data = nil
		p.activeDepth--
		p.cursor = prev
		p.log.Debug("bt activation failed",
			log.String("node", p.nodeName(index)),
			log.Int("level", level))
		p.notifyActivate(index, false)
		return false, nil
	}
	p.ctx.Data = nil
	p.notifyActivate(index, true)
	return true, nil
}

// deactivateNode pops the innermost active node and releases its instance data.
func (p *Player) deactivateNode() error {
	level := p.activeDepth - 1
	index := p.arena.activeStack.at(level)
	prev, owner := p.arena.records.at(level)
	if owner != index || prev > p.cursor {
		return violation(ErrStackMismatch, index, level, owner)
	}
	p.bindActive(level, index)
	p.asset.Node(index).Behavior.Deactivate(&p.ctx)
	p.ctx.Data = nil
	p.activeDepth--
	p.cursor = prev
	if p.observer != nil {
		p.observer.OnDeactivate(index)
	}
	return nil
}

// bind points the shared context at the node about to be called.
func (p *Player) bind(level int, index NodeIndex, start, size int) {
	p.ctx.Level = level
	if size > 0 {
		p.ctx.Data = p.arena.data[start : start+size : start+size]
	} else {
		p.ctx.Data = nil
	}
}

// bindActive binds the instance data of index if it is the active node at level, and no
// data otherwise.
func (p *Player) bindActive(level int, index NodeIndex) {
	if level >= p.activeDepth || p.arena.activeStack.at(level) != index {
		p.bind(level, index, 0, 0)
		return
	}
	b := p.asset.Node(index).Behavior
	size, align := b.InstanceDataSize(), b.InstanceDataAlignment()
	if align == 0 {
		align = 1
	}
	prev, _ := p.arena.records.at(level)
	if size <= 0 {
		p.bind(level, index, prev, 0)
		return
	}
	p.bind(level, index, alignUp(prev, align), size)
}

func (p *Player) notifyActivate(index NodeIndex, ok bool) {
	if p.observer != nil {
		p.observer.OnActivate(index, ok)
	}
}

func (p *Player) reportViolation(err error) {
	p.log.Error("bt invariant violated", log.Error(err))
	if p.observer != nil {
		p.observer.OnViolation(err)
	}
}

func (p *Player) nodeName(index NodeIndex) string {
	if named, ok := p.asset.(NamedAsset); ok {
		return named.NodeName(index)
	}
	return fmt.Sprintf("#%d", index)
}
