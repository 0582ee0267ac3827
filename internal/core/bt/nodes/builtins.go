package nodes

import (
	"fmt"
	"os"
	"path/filepath"

	gobt "github.com/joeycumines/go-behaviortree"

	"github.com/zeusync/behave/internal/core/bt"
	"github.com/zeusync/behave/internal/core/bt/asset"
)

var _ asset.Fingerprinter = (*Script)(nil)

// Library supplies the host code that config-built leaves refer to by name.
type Library struct {
	Actions   map[string]ActionFuncs
	Externals map[string]func(c *bt.Context) gobt.Node
	// ScriptDir resolves relative script file params.
	ScriptDir string
}

// RegisterBuiltins registers every node type of this package under its config name:
//
//	sequence, selector  params: reactive (bool)
//	condition, guard    params: expr
//	action, external    params: name
//	wait                params: duration ("1.5s" or milliseconds)
//	script              params: source or file
func RegisterBuiltins(reg *asset.Registry, lib Library) error {
	factories := map[string]asset.Factory{
		"sequence": func(p asset.Params, children int) (bt.Behavior, error) {
			if children == 0 {
				return nil, fmt.Errorf("sequence requires children")
			}
			return Sequence{Reactive: p.Bool("reactive", false)}, nil
		},
		"selector": func(p asset.Params, children int) (bt.Behavior, error) {
			if children == 0 {
				return nil, fmt.Errorf("selector requires children")
			}
			return Selector{Reactive: p.Bool("reactive", false)}, nil
		},
		"condition": func(p asset.Params, children int) (bt.Behavior, error) {
			if children != 0 {
				return nil, fmt.Errorf("condition takes no children")
			}
			pred, err := predicate(p)
			if err != nil {
				return nil, err
			}
			return NewCondition(pred), nil
		},
		"guard": func(p asset.Params, children int) (bt.Behavior, error) {
			if children != 1 {
				return nil, fmt.Errorf("guard requires exactly one child, got %d", children)
			}
			pred, err := predicate(p)
			if err != nil {
				return nil, err
			}
			return NewGuard(pred), nil
		},
		"action": func(p asset.Params, children int) (bt.Behavior, error) {
			name, err := leafName(p, children)
			if err != nil {
				return nil, err
			}
			funcs, ok := lib.Actions[name]
			if !ok {
				return nil, fmt.Errorf("unknown action: %s", name)
			}
			return NewAction(name, funcs), nil
		},
		"external": func(p asset.Params, children int) (bt.Behavior, error) {
			name, err := leafName(p, children)
			if err != nil {
				return nil, err
			}
			build, ok := lib.Externals[name]
			if !ok {
				return nil, fmt.Errorf("unknown external node: %s", name)
			}
			return NewExternal(name, build), nil
		},
		"wait": func(p asset.Params, children int) (bt.Behavior, error) {
			if children != 0 {
				return nil, fmt.Errorf("wait takes no children")
			}
			d, err := p.Duration("duration", 0)
			if err != nil {
				return nil, err
			}
			return NewWait(d), nil
		},
		"script": func(p asset.Params, children int) (bt.Behavior, error) {
			if children != 0 {
				return nil, fmt.Errorf("script takes no children")
			}
			return loadScript(p, lib.ScriptDir)
		},
	}
	for name, f := range factories {
		if err := reg.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}

func predicate(p asset.Params) (*Predicate, error) {
	src, err := p.RequireString("expr")
	if err != nil {
		return nil, err
	}
	return CompilePredicate(src)
}

func leafName(p asset.Params, children int) (string, error) {
	if children != 0 {
		return "", fmt.Errorf("leaf takes no children")
	}
	return p.RequireString("name")
}

func loadScript(p asset.Params, dir string) (*Script, error) {
	if src := p.String("source"); src != "" {
		return NewScript("inline", []byte(src))
	}
	file, err := p.RequireString("file")
	if err != nil {
		return nil, fmt.Errorf("script requires source or file")
	}
	if !filepath.IsAbs(file) && dir != "" {
		file = filepath.Join(dir, file)
	}
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return NewScript(filepath.Base(file), src)
}
