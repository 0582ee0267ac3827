package asset

import (
	"fmt"
	"io"
	"strings"

	"github.com/zeusync/behave/internal/core/bt"
)

var _ bt.NamedAsset = (*Tree)(nil)

// Tree is a compiled, immutable asset. It is safe to share between players.
type Tree struct {
	name  string
	nodes []bt.Node
	info  []NodeInfo
	index map[string]bt.NodeIndex
	depth int
	bytes int
	hash  uint64
}

// NodeInfo describes one compiled node.
type NodeInfo struct {
	Index bt.NodeIndex `json:"index"`
	Skip  bt.NodeIndex `json:"skip"`
	Depth int          `json:"depth"`
	Name  string       `json:"name"`
	Type  string       `json:"type"`
}

func (t *Tree) Name() string { return t.name }

func (t *Tree) NodeCount() int { return len(t.nodes) }

func (t *Tree) MaxDepth() int { return t.depth }

func (t *Tree) MaxInstanceBytes() int { return t.bytes }

func (t *Tree) Node(index bt.NodeIndex) bt.Node { return t.nodes[index] }

func (t *Tree) NodeName(index bt.NodeIndex) string {
	if int(index) >= len(t.info) {
		return fmt.Sprintf("#%d", index)
	}
	return t.info[index].Name
}

// Lookup returns the index of the node declared under name.
func (t *Tree) Lookup(name string) (bt.NodeIndex, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Hash fingerprints node types, params and layout. Two compilations of equivalent configs
// hash equal.
func (t *Tree) Hash() uint64 { return t.hash }

// Info describes the node at index.
func (t *Tree) Info(index bt.NodeIndex) (NodeInfo, bool) {
	if int(index) >= len(t.info) {
		return NodeInfo{}, false
	}
	return t.info[index], true
}

// Nodes returns a copy of the per-node descriptions in pre-order.
func (t *Tree) Nodes() []NodeInfo {
	out := make([]NodeInfo, len(t.info))
	copy(out, t.info)
	return out
}

// Dump writes an indented outline of the tree.
func (t *Tree) Dump(w io.Writer) error {
	for _, n := range t.info {
		_, err := fmt.Fprintf(w, "%s%s (%s) [%d,%d)\n", strings.Repeat("  ", n.Depth), n.Name, n.Type, n.Index, n.Skip)
		if err != nil {
			return err
		}
	}
	return nil
}
