package nodes

import (
	"fmt"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/zeusync/behave/internal/core/bt"
	"github.com/zeusync/behave/pkg/generic"
)

var _ bt.Behavior = (*Script)(nil)

// scriptModules are the tengo standard modules a tree script may import. os is left out.
var scriptModules = []string{"math", "text", "times", "fmt", "enum", "json"}

// Script is a leaf whose tick is a tengo script. The script sees these globals:
//
//	dt      seconds since the last tick (float)
//	bb      read-only copy of the blackboard's scalar entries
//	out     map whose entries are written back to the blackboard
//	status  "running" (default), "success" or "failure"
//
// Compiled scripts are not safe for concurrent use, so each tick runs on a pooled clone.
type Script struct {
	leaf
	name     string
	src      []byte
	compiled *tengo.Compiled
	clones   *generic.Pool[*tengo.Compiled]
}

func NewScript(name string, src []byte) (*Script, error) {
	script := tengo.NewScript(src)
	script.SetImports(stdlib.GetModuleMap(scriptModules...))
	for _, v := range []struct {
		name  string
		value any
	}{
		{"dt", 0.0},
		{"bb", map[string]any{}},
		{"out", map[string]any{}},
		{"status", "running"},
	} {
		if err := script.Add(v.name, v.value); err != nil {
			return nil, err
		}
	}
	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile script %s: %w", name, err)
	}
	s := &Script{name: name, src: src, compiled: compiled}
	s.clones = generic.NewPool(func() *tengo.Compiled { return s.compiled.Clone() })
	return s, nil
}

func (s *Script) Name() string { return s.name }

// Fingerprint returns the script source, so editing a script file changes the hash of
// every tree that uses it.
func (s *Script) Fingerprint() []byte { return s.src }

func (s *Script) Update(self bt.NodeIndex, dt time.Duration, c *bt.Context) (bt.Status, bt.NodeIndex) {
	st, err := s.Run(c, dt)
	if err != nil {
		return bt.StatusFailed, self
	}
	return st, self
}

// Run executes one tick of the script against c and applies its blackboard writes.
func (s *Script) Run(c *bt.Context, dt time.Duration) (bt.Status, error) {
	compiled := s.clones.Get()
	defer s.clones.Put(compiled)

	if err := compiled.Set("dt", dt.Seconds()); err != nil {
		return bt.StatusFailed, err
	}
	if err := compiled.Set("bb", scriptView(c.BB)); err != nil {
		return bt.StatusFailed, err
	}
	if err := compiled.Set("out", &tengo.Map{Value: map[string]tengo.Object{}}); err != nil {
		return bt.StatusFailed, err
	}
	if err := compiled.Set("status", "running"); err != nil {
		return bt.StatusFailed, err
	}
	if err := compiled.RunContext(c.Ctx); err != nil {
		return bt.StatusFailed, fmt.Errorf("script %s: %w", s.name, err)
	}

	if c.BB != nil {
		for k, v := range compiled.Get("out").Map() {
			c.BB.Set(k, v)
		}
	}
	switch st := compiled.Get("status").String(); st {
	case "running":
		return bt.StatusRunning, nil
	case "success", "succeeded":
		return bt.StatusSucceeded, nil
	case "failure", "failed":
		return bt.StatusFailed, nil
	default:
		return bt.StatusFailed, fmt.Errorf("script %s: unknown status %q", s.name, st)
	}
}

// scriptView converts the blackboard entries tengo can represent, skipping the rest.
func scriptView(bb bt.Blackboard) *tengo.ImmutableMap {
	env := envOf(bb)
	view := make(map[string]tengo.Object, len(env))
	for k, v := range env {
		obj, err := tengo.FromInterface(v)
		if err != nil {
			continue
		}
		view[k] = obj
	}
	return &tengo.ImmutableMap{Value: view}
}
