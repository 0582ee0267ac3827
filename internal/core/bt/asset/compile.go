package asset

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/behave/internal/core/bt"
)

var (
	ErrNoRoot      = errors.New("asset: config has no root")
	ErrUnknownNode = errors.New("asset: unknown node")
	ErrReused      = errors.New("asset: node referenced more than once")
)

// Compile flattens cfg into a depth-first pre-order node array, building each behavior
// with reg. Every named node may appear at most once, which also rules out cycles.
func Compile(cfg *Config, reg *Registry) (*Tree, error) {
	if cfg == nil || cfg.Root == "" {
		return nil, ErrNoRoot
	}
	c := compiler{cfg: cfg, reg: reg, seen: make(map[string]bool, len(cfg.Nodes))}
	c.tree = &Tree{
		name:  cfg.Name,
		nodes: make([]bt.Node, 0, len(cfg.Nodes)),
		index: make(map[string]bt.NodeIndex, len(cfg.Nodes)),
	}
	c.hash = xxhash.New()
	if err := c.visit(cfg.Root, 0, 0); err != nil {
		return nil, err
	}
	c.tree.hash = c.hash.Sum64()
	if err := bt.ValidateAsset(c.tree); err != nil {
		return nil, err
	}
	return c.tree, nil
}

type compiler struct {
	cfg  *Config
	reg  *Registry
	seen map[string]bool
	tree *Tree
	hash *xxhash.Digest
}

// visit appends name and its subtree. depth is the number of ancestors, bytes the
// worst-case instance data they hold.
func (c *compiler) visit(name string, depth, bytes int) error {
	cn, ok := c.cfg.Nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}
	if c.seen[name] {
		return fmt.Errorf("%w: %s", ErrReused, name)
	}
	c.seen[name] = true

	b, err := c.reg.build(name, cn)
	if err != nil {
		return err
	}
	if size := b.InstanceDataSize(); size > 0 {
		bytes += size + max(b.InstanceDataAlignment(), 1) - 1
	}
	depth++

	self := bt.NodeIndex(len(c.tree.nodes))
	c.tree.nodes = append(c.tree.nodes, bt.Node{Behavior: b})
	c.tree.info = append(c.tree.info, NodeInfo{Index: self, Name: name, Type: cn.Type, Depth: depth - 1})
	c.tree.index[name] = self
	c.tree.depth = max(c.tree.depth, depth)
	c.tree.bytes = max(c.tree.bytes, bytes)

	for _, child := range cn.childNames() {
		if err := c.visit(child, depth, bytes); err != nil {
			return err
		}
	}

	skip := bt.NodeIndex(len(c.tree.nodes))
	c.tree.nodes[self].Skip = skip
	c.tree.info[self].Skip = skip
	return c.fingerprint(self, skip, name, cn, b)
}

// Fingerprinter is implemented by behaviors built from more than their params, such as
// a script loaded from a file. The returned bytes join the tree hash.
type Fingerprinter interface {
	Fingerprint() []byte
}

// fingerprint hashes the node's layout, name, type and params. The tree name is left
// out; trees are only compared against the tree of the same name.
func (c *compiler) fingerprint(self, skip bt.NodeIndex, name string, cn ConfigNode, b bt.Behavior) error {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(self))
	binary.LittleEndian.PutUint32(buf[4:], uint32(skip))
	_, _ = c.hash.Write(buf[:])
	_, _ = c.hash.WriteString(name)
	_, _ = c.hash.Write([]byte{0})
	_, _ = c.hash.WriteString(cn.Type)
	_, _ = c.hash.Write([]byte{0})
	// json.Marshal sorts map keys, which keeps the fingerprint stable.
	params, err := json.Marshal(cn.Params)
	if err != nil {
		return fmt.Errorf("node %d params: %w", self, err)
	}
	_, _ = c.hash.Write(params)
	if f, ok := b.(Fingerprinter); ok {
		_, _ = c.hash.Write(f.Fingerprint())
	}
	return nil
}
