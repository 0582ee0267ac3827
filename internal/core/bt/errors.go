package bt

import (
	"errors"
	"fmt"
)

// Configuration errors, returned by Start without touching the player.
var (
	ErrNilAsset       = errors.New("bt: nil asset")
	ErrEmptyAsset     = errors.New("bt: asset has no nodes")
	ErrMalformedAsset = errors.New("bt: malformed asset")
	ErrNotStarted     = errors.New("bt: player not started")
)

// Invariant violations. They always arrive wrapped in an *InvariantError.
var (
	ErrTraversalBounds = errors.New("next index outside (current, skip]")
	ErrDepthExceeded   = errors.New("traversal deeper than asset max depth")
	ErrArenaOverflow   = errors.New("instance data exceeds asset max instance bytes")
	ErrStackMismatch   = errors.New("instance data record does not match active node")
	ErrInvalidRequest  = errors.New("request outside active tree bounds")
)

// InvariantError reports a broken tree invariant: a malformed asset or a buggy behavior.
// The tick that produced it was aborted and the player stopped.
type InvariantError struct {
	Node  NodeIndex
	Level int
	Next  NodeIndex
	Err   error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("bt: invariant violated at node %d (level %d, next %d): %v", e.Node, e.Level, e.Next, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

func violation(err error, node NodeIndex, level int, next NodeIndex) *InvariantError {
	return &InvariantError{Node: node, Level: level, Next: next, Err: err}
}
