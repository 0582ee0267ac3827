package bt

import (
	"context"
	"time"
)

// NodeIndex addresses a node in the flattened, depth-first pre-order node array of an Asset.
// Index 0 is always the root.
type NodeIndex uint32

// Status is the tri-state result a node reports for the current tick.
type Status uint8

const (
	StatusRunning Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusSucceeded:
		return "Succeeded"
	case StatusFailed:
		return "Failed"
	default:
		return "Invalid"
	}
}

// Node is one compiled node descriptor. The subtree of node i occupies [i, Skip).
type Node struct {
	Skip     NodeIndex
	Behavior Behavior
}

// Asset is an immutable, compiled behaviour tree shared by any number of players.
type Asset interface {
	// NodeCount returns the number of nodes in the flattened array.
	NodeCount() int
	// MaxDepth returns the length of the longest root-to-leaf path.
	MaxDepth() int
	// MaxInstanceBytes returns the worst-case instance data, padding included, that
	// any single active path can hold at once.
	MaxInstanceBytes() int
	// Node returns the descriptor at index.
	Node(index NodeIndex) Node
}

// NamedAsset is implemented by assets that can name their nodes for diagnostics.
type NamedAsset interface {
	Asset
	NodeName(index NodeIndex) string
}

// Behavior is the capability set of a node. A behavior value is shared by every player
// running the asset, so any per-player state must live in the instance data handed over
// through Context.Data.
//
// Traverse and Update calls answer with (status, next). Answering next == self asks the
// player to keep (or make) this node active. Any other next must lie in (self, skip]:
// a child index descends, skip leaves the subtree and reports status to the parent.
type Behavior interface {
	// InstanceDataSize is the number of bytes reserved in the arena while the node is active.
	InstanceDataSize() int
	// InstanceDataAlignment is the required alignment of that region. Zero means 1.
	InstanceDataAlignment() int

	// Activate is called when the node joins the active path. Returning StatusFailed
	// rejects the activation; the node must leave no side effects behind in that case.
	Activate(c *Context) Status
	// Deactivate is called exactly once for every successful Activate.
	Deactivate(c *Context)

	// Update is called for a node that is already active while the sweep moves down.
	Update(self NodeIndex, dt time.Duration, c *Context) (Status, NodeIndex)
	// TraverseFromParent is called when the sweep enters an inactive node from above.
	TraverseFromParent(self, skip NodeIndex, c *Context) (Status, NodeIndex)
	// TraverseFromChild is called when the sweep returns from a child subtree. childNext is
	// the index the child finished with, childStatus its reported status.
	TraverseFromChild(self, skip, childNext NodeIndex, childStatus Status, c *Context) (Status, NodeIndex)
}

// Blackboard is the host-owned key/value store visible to behaviors.
type Blackboard interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
}

// Observer receives lifecycle notifications from a Player. Implementations must not
// call back into the player.
type Observer interface {
	OnActivate(index NodeIndex, ok bool)
	OnDeactivate(index NodeIndex)
	OnSweep(status Status, elapsed time.Duration)
	OnViolation(err error)
}

// Context is handed to every behavior call. It is owned by the player and reused across
// calls, so behaviors must not retain it or its Data slice after returning.
type Context struct {
	// Ctx is the context passed to UpdateContext, or context.Background.
	Ctx context.Context
	// BB is the host blackboard bound with Bind, possibly nil.
	BB Blackboard
	// Data is the instance data of the node being called, or nil when the node is not
	// active or reserves no data.
	Data []byte
	// Level is the depth of the node being called on the current path.
	Level int

	player *Player
}

// Request asks the active node at level-1 to continue with index on the next visit
// instead of its previously committed child. See Player.Request.
func (c *Context) Request(level int, index NodeIndex) error {
	return c.player.Request(level, index)
}

// Skip returns the skip index of index in the running asset. Update has no skip argument,
// so a node that wants to leave its subtree from Update answers with c.Skip(self).
func (c *Context) Skip(index NodeIndex) NodeIndex {
	return c.player.asset.Node(index).Skip
}
