package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/zeusync/behave/internal/core/bt/asset"
	"github.com/zeusync/behave/internal/core/bt/nodes"
	"github.com/zeusync/behave/internal/core/events/bus"
	"github.com/zeusync/behave/internal/core/npc"
	"github.com/zeusync/behave/internal/core/observability/log"
	"github.com/zeusync/behave/internal/injector"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "btrun:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "runtime config file (yaml)")
		treeDir    = flag.String("trees", "", "tree directory, overrides tree_dir")
		addr       = flag.String("metrics", "", "debug server address, overrides metrics_addr")
		watch      = flag.Bool("watch", false, "reload trees when their files change")
		dump       = flag.Bool("dump", false, "print the compiled trees and exit")
		runFor     = flag.Duration("for", 0, "stop after this long, 0 runs until interrupted")
	)
	flag.Parse()

	cfg := npc.DefaultManagerConfig()
	if *configPath != "" {
		loaded, err := npc.LoadManagerConfigFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *treeDir != "" {
		cfg.TreeDir = *treeDir
	}
	if *addr != "" {
		cfg.MetricsAddr = *addr
	}
	cfg.Watch = cfg.Watch || *watch
	if err := cfg.Validate(); err != nil {
		return err
	}

	host, err := injector.InitializeHost(cfg)
	if err != nil {
		return err
	}
	logger := host.Logger
	defer func() { _ = logger.Sync() }()

	reg := asset.NewRegistry()
	if err := nodes.RegisterBuiltins(reg, library(cfg.TreeDir)); err != nil {
		return err
	}
	m := host.Manager
	defer m.Close()
	if _, err := m.LoadDir(cfg.TreeDir, reg); err != nil {
		return fmt.Errorf("failed to load trees: %w", err)
	}

	if *dump {
		for _, name := range m.Trees() {
			tree, _ := m.Tree(name)
			fmt.Printf("%s (hash %016x, depth %d, %d instance bytes)\n", name, tree.Hash(), tree.MaxDepth(), tree.MaxInstanceBytes())
			if err := tree.Dump(os.Stdout); err != nil {
				return err
			}
		}
		return nil
	}

	host.Events.Subscribe(bus.TreeAborted, func(e bus.Event) error {
		logger.Warn("agent restarted after invariant violation", log.String("agent", e.Source))
		return nil
	})
	var finished atomic.Int64
	host.Events.Subscribe(bus.RunFinished, func(bus.Event) error {
		finished.Add(1)
		return nil
	})

	agents, err := m.SpawnGroups(cfg.Agents)
	if err != nil {
		return err
	}
	logger.Info("agents spawned", log.Int("agents", len(agents)), log.Any("trees", m.Trees()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *runFor)
		defer cancel()
	}

	if cfg.MetricsAddr != "" {
		if err := host.Server.Start(cfg.MetricsAddr); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = host.Server.Stop(shutdownCtx)
		}()
	}

	if cfg.Watch {
		w, err := asset.NewWatcher(cfg.Debounce, cfg.TreeDir)
		if err != nil {
			return err
		}
		defer w.Close()
		go m.Watch(ctx, w, cfg.TreeDir, reg)
		logger.Info("watching trees", log.String("dir", cfg.TreeDir))
	}

	if err := m.Run(ctx); err != nil {
		return err
	}

	snap := m.Snapshot()
	slices.SortFunc(snap, func(a, b npc.AgentInfo) int { return int(b.Runs) - int(a.Runs) })
	stats := m.Stats()
	logger.Info("run finished",
		log.Uint64("ticks", stats.Ticks),
		log.Uint64("violations", stats.Violations),
		log.Int64("runs", finished.Load()),
		log.Int64("players", stats.PlayersCreated))
	for _, info := range snap {
		logger.Debug("agent", log.String("name", info.Name), log.Uint64("runs", info.Runs), log.String("status", info.Status))
	}
	return nil
}
