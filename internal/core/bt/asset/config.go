package asset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/behave/pkg/concurrent"
)

// Config describes a tree in JSON or YAML. Nodes are named and reference their children
// by name; Compile flattens them into a Tree.
type Config struct {
	Name  string                `json:"name,omitempty" yaml:"name,omitempty"`
	Root  string                `json:"root" yaml:"root"`
	Nodes map[string]ConfigNode `json:"nodes" yaml:"nodes"`
}

type ConfigNode struct {
	Type     string   `json:"type" yaml:"type"`
	Children []string `json:"children,omitempty" yaml:"children,omitempty"`
	// Child is shorthand for a single child, usually a decorator's.
	Child  string `json:"child,omitempty" yaml:"child,omitempty"`
	Params Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// childNames returns Child followed by Children.
func (n ConfigNode) childNames() []string {
	if n.Child == "" {
		return n.Children
	}
	return append([]string{n.Child}, n.Children...)
}

// LoadJSON loads config from JSON reader.
func LoadJSON(r io.Reader) (*Config, error) {
	var c Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadYAML loads config from YAML reader.
func LoadYAML(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile picks the decoder from the file extension. A config without a name is named
// after the file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var c *Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		c, err = LoadJSON(f)
	case ".yaml", ".yml":
		c, err = LoadYAML(f)
	default:
		return nil, fmt.Errorf("unsupported tree file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if c.Name == "" {
		c.Name = TreeName(path)
	}
	return c, nil
}

// IsTreeFile reports whether path has an extension LoadFile understands.
func IsTreeFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// TreeName is the base name of path without its extension.
func TreeName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadDir compiles every tree file directly inside dir, keyed by tree name. Files are
// compiled concurrently, at most GOMAXPROCS at a time.
func LoadDir(dir string, reg *Registry) (map[string]*Tree, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []*dirFile
	for _, e := range entries {
		if e.IsDir() || !IsTreeFile(e.Name()) {
			continue
		}
		files = append(files, &dirFile{path: filepath.Join(dir, e.Name())})
	}

	err = concurrent.Limit(context.Background(), files, runtime.GOMAXPROCS(0), func(_ context.Context, f *dirFile) error {
		var err error
		f.tree, err = CompileFile(f.path, reg)
		return err
	})
	if err != nil {
		return nil, err
	}

	trees := make(map[string]*Tree, len(files))
	for _, f := range files {
		if _, dup := trees[f.tree.Name()]; dup {
			return nil, fmt.Errorf("duplicate tree name %s in %s", f.tree.Name(), dir)
		}
		trees[f.tree.Name()] = f.tree
	}
	return trees, nil
}

type dirFile struct {
	path string
	tree *Tree
}

// CompileFile loads and compiles one tree file.
func CompileFile(path string, reg *Registry) (*Tree, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	tree, err := Compile(cfg, reg)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	return tree, nil
}
