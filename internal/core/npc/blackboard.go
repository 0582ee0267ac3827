package npc

import (
	"bytes"
	"encoding/gob"
	"sort"
	"strings"
	"sync"

	"github.com/zeusync/behave/internal/core/bt"
)

var _ bt.Blackboard = (*Blackboard)(nil)

// Blackboard is a thread-safe map shared by an agent's behaviors and its host. Namespaced
// views store their keys in the root map under "ns:key".
type Blackboard struct {
	mu     sync.RWMutex
	data   map[string]any
	prefix string
	root   *Blackboard
}

// NewBlackboard creates an empty root blackboard.
func NewBlackboard() *Blackboard {
	b := &Blackboard{data: make(map[string]any)}
	b.root = b
	return b
}

func (b *Blackboard) fullKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + ":" + key
}

func (b *Blackboard) Get(key string) (any, bool) {
	root := b.root
	root.mu.RLock()
	defer root.mu.RUnlock()
	v, ok := root.data[b.fullKey(key)]
	return v, ok
}

func (b *Blackboard) Set(key string, value any) {
	root := b.root
	root.mu.Lock()
	root.data[b.fullKey(key)] = value
	root.mu.Unlock()
}

func (b *Blackboard) Delete(key string) {
	root := b.root
	root.mu.Lock()
	delete(root.data, b.fullKey(key))
	root.mu.Unlock()
}

// SetAll copies values into the blackboard under one lock.
func (b *Blackboard) SetAll(values map[string]any) {
	root := b.root
	root.mu.Lock()
	for k, v := range values {
		root.data[b.fullKey(k)] = v
	}
	root.mu.Unlock()
}

// Namespace returns a view whose keys live under ns. Colons in ns are replaced so views
// cannot reach into each other.
func (b *Blackboard) Namespace(ns string) *Blackboard {
	ns = strings.ReplaceAll(ns, ":", "_")
	if b.prefix != "" {
		ns = b.prefix + ":" + ns
	}
	return &Blackboard{root: b.root, prefix: ns}
}

// Keys returns the keys visible from this view, sorted.
func (b *Blackboard) Keys() []string {
	snap := b.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot copies the values visible from this view. Expressions evaluate against it.
func (b *Blackboard) Snapshot() map[string]any {
	root := b.root
	root.mu.RLock()
	defer root.mu.RUnlock()
	out := make(map[string]any, len(root.data))
	if b.prefix == "" {
		for k, v := range root.data {
			out[k] = v
		}
		return out
	}
	pref := b.prefix + ":"
	for k, v := range root.data {
		if rest, ok := strings.CutPrefix(k, pref); ok {
			out[rest] = v
		}
	}
	return out
}

// MarshalBinary encodes the whole root map with gob. Values of custom types must be
// registered with gob.Register.
func (b *Blackboard) MarshalBinary() ([]byte, error) {
	root := b.root
	root.mu.RLock()
	defer root.mu.RUnlock()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(root.data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Blackboard) UnmarshalBinary(data []byte) error {
	decoded := make(map[string]any)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&decoded); err != nil {
		return err
	}
	root := b.root
	root.mu.Lock()
	root.data = decoded
	root.mu.Unlock()
	return nil
}
