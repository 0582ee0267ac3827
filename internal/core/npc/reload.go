package npc

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"slices"

	"github.com/zeusync/behave/internal/core/bt/asset"
	"github.com/zeusync/behave/internal/core/observability/log"
)

// LoadDir compiles every tree in dir and registers it, reloading agents on changed trees.
// It returns the number of agents restarted.
func (m *Manager) LoadDir(dir string, reg *asset.Registry) (int, error) {
	trees, err := asset.LoadDir(dir, reg)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(trees))
	for name := range trees {
		names = append(names, name)
	}
	slices.Sort(names)

	var restarted int
	for _, name := range names {
		n, err := m.Reload(name, trees[name])
		restarted += n
		if err != nil {
			return restarted, err
		}
	}
	return restarted, nil
}

// Watch applies the changes reported by w until ctx is done or w is closed. A changed
// tree file is recompiled alone; a changed script recompiles the whole of dir, since any
// tree may reference it. Files that fail to compile leave the running tree in place.
func (m *Manager) Watch(ctx context.Context, w *asset.Watcher, dir string, reg *asset.Registry) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			m.log.Warn("tree watcher error", log.Error(err))
		case path, ok := <-w.Events:
			if !ok {
				return
			}
			m.reloadPath(path, dir, reg)
		}
	}
}

func (m *Manager) reloadPath(path, dir string, reg *asset.Registry) {
	if asset.IsScriptFile(path) {
		n, err := m.LoadDir(dir, reg)
		if err != nil {
			m.log.Error("tree reload failed", log.String("path", path), log.Error(err))
			return
		}
		m.log.Info("script changed, trees reloaded", log.String("path", path), log.Int("restarted", n))
		return
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		m.log.Warn("tree file removed, keeping loaded tree", log.String("path", path))
		return
	}
	tree, err := asset.CompileFile(path, reg)
	if err != nil {
		m.log.Error("tree reload failed", log.String("path", path), log.Error(err))
		return
	}
	if _, err := m.Reload(tree.Name(), tree); err != nil {
		m.log.Error("tree reload failed", log.String("tree", tree.Name()), log.Error(err))
	}
}
