package bt

import (
	"context"
	"errors"
	"time"
)

// Update runs one sweep over the started asset and returns the status of the whole tree.
// A non-running status stops the player before returning. An *InvariantError aborts the
// tick: the player is stopped and StatusFailed is returned with the error.
func (p *Player) Update(dt time.Duration) (Status, error) {
	return p.UpdateContext(context.Background(), dt)
}

// UpdateContext is Update with a context exposed to behaviors through Context.Ctx.
func (p *Player) UpdateContext(ctx context.Context, dt time.Duration) (Status, error) {
	if p.asset == nil {
		return StatusFailed, ErrNotStarted
	}
	var begin time.Time
	if p.observer != nil {
		begin = time.Now()
	}

	p.ctx.Ctx = ctx
	status, err := p.sweep(dt)
	p.ctx.Ctx = context.Background()
	p.ctx.Data = nil

	if err != nil {
		p.reportViolation(err)
		if stopErr := p.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		return StatusFailed, err
	}
	p.arena.requestStack.copyPrefix(p.arena.activeStack, p.activeDepth)
	if status != StatusRunning {
		if err = p.Stop(); err != nil {
			return StatusFailed, err
		}
	}
	if p.observer != nil {
		p.observer.OnSweep(status, time.Since(begin))
	}
	return status, nil
}

// sweep walks the tree once from the root. It never allocates on success.
func (p *Player) sweep(dt time.Duration) (Status, error) {
	a := &p.arena
	var (
		prev, curr NodeIndex
		childNext  NodeIndex
		level      int
		status     = StatusRunning
	)
	a.newStack.set(0, 0)

	for {
		node := p.asset.Node(curr)
		skip := node.Skip
		down := curr >= prev

		var next NodeIndex
		if down && level < p.activeDepth && a.activeStack.at(level) == curr {
			p.bindActive(level, curr)
			status, next = node.Behavior.Update(curr, dt, &p.ctx)
			if next == curr {
				if level+1 < p.activeDepth {
					next = a.requestStack.at(level + 1)
				} else {
					next = skip
				}
			}
		} else {
			p.bindActive(level, curr)
			if down {
				status, next = node.Behavior.TraverseFromParent(curr, skip, &p.ctx)
			} else {
				status, next = node.Behavior.TraverseFromChild(curr, skip, childNext, status, &p.ctx)
			}

			if next == curr {
				failed, err := p.commit(level)
				if err != nil {
					return StatusFailed, err
				}
				if failed >= 0 {
					// The parent of the rejected node takes over.
					level = failed - 1
					if level < 0 {
						return StatusFailed, nil
					}
					curr = a.newStack.at(level)
					skip = p.asset.Node(curr).Skip
				}
				next = skip
			}
		}

		if next <= curr || next > skip {
			return StatusFailed, violation(ErrTraversalBounds, curr, level, next)
		}
		if next < skip {
			status = StatusRunning
		}

		prev = curr
		if next == skip {
			if level == 0 {
				return status, nil
			}
			childNext = next
			level--
			curr = a.newStack.at(level)
			continue
		}
		if level+1 >= p.maxDepth {
			return StatusFailed, violation(ErrDepthExceeded, curr, level+1, next)
		}
		level++
		a.newStack.set(level, next)
		curr = next
	}
}

// commit makes newStack[0:level] the active path. The obsolete suffix of the old path is
// deactivated down to the common ancestor, then the new suffix is activated in order. It
// returns the level whose activation was rejected, or -1 when the whole path is active.
func (p *Player) commit(level int) (int, error) {
	a := &p.arena
	l := p.activeDepth - 1
	for l >= 0 && (l > level || a.activeStack.at(l) != a.newStack.at(l)) {
		if err := p.deactivateNode(); err != nil {
			return -1, err
		}
		l--
	}
	for l++; l <= level; l++ {
		ok, err := p.activateNode(a.newStack.at(l))
		if err != nil {
			return -1, err
		}
		if !ok {
			return l, nil
		}
	}
	return -1, nil
}
