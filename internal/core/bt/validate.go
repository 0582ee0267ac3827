package bt

import "fmt"

// ValidateAsset checks the structural invariants the traversal relies on: every skip index
// lies in (i, parent skip], every node has a behavior, and no path is deeper than MaxDepth.
// It runs once per Start and allocates only a small scratch stack.
func ValidateAsset(asset Asset) error {
	if asset == nil {
		return ErrNilAsset
	}
	count := asset.NodeCount()
	if count == 0 {
		return ErrEmptyAsset
	}
	if asset.MaxDepth() < 1 {
		return fmt.Errorf("%w: max depth %d", ErrMalformedAsset, asset.MaxDepth())
	}
	if asset.MaxInstanceBytes() < 0 {
		return fmt.Errorf("%w: negative max instance bytes", ErrMalformedAsset)
	}
	if root := asset.Node(0); int(root.Skip) != count {
		return fmt.Errorf("%w: root skip %d, want node count %d", ErrMalformedAsset, root.Skip, count)
	}

	open := make([]NodeIndex, 0, asset.MaxDepth())
	for i := 0; i < count; i++ {
		idx := NodeIndex(i)
		n := asset.Node(idx)
		if n.Behavior == nil {
			return fmt.Errorf("%w: node %d has no behavior", ErrMalformedAsset, i)
		}
		for len(open) > 0 && open[len(open)-1] <= idx {
			open = open[:len(open)-1]
		}
		if n.Skip <= idx || int(n.Skip) > count {
			return fmt.Errorf("%w: node %d skip %d out of range", ErrMalformedAsset, i, n.Skip)
		}
		if len(open) > 0 && n.Skip > open[len(open)-1] {
			return fmt.Errorf("%w: node %d skip %d escapes parent subtree ending at %d", ErrMalformedAsset, i, n.Skip, open[len(open)-1])
		}
		open = append(open, n.Skip)
		if len(open) > asset.MaxDepth() {
			return fmt.Errorf("%w: node %d at depth %d exceeds max depth %d", ErrMalformedAsset, i, len(open), asset.MaxDepth())
		}
	}
	return nil
}
