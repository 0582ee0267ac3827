package injector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zeusync/behave/internal/core/events/bus"
	"github.com/zeusync/behave/internal/core/npc"
	"github.com/zeusync/behave/internal/core/observability/log"
	"github.com/zeusync/behave/internal/core/observability/metrics"
	"github.com/zeusync/behave/internal/server"
)

// Host bundles everything btrun needs to run agents.
type Host struct {
	Logger   *log.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Collector
	Events   *bus.Bus
	Manager  *npc.Manager
	Server   *server.Server
}

func ProvideLogger(cfg npc.ManagerConfig) *log.Logger {
	return log.New(cfg.Level())
}

// ProvideRegistry returns a registry carrying the process and Go runtime collectors.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideCollector(reg *prometheus.Registry) (*metrics.Collector, error) {
	return metrics.NewCollector(reg)
}

func ProvideEventBus() *bus.Bus {
	return bus.New()
}

func ProvideManager(cfg npc.ManagerConfig, logger *log.Logger, collector *metrics.Collector, events *bus.Bus, reg *prometheus.Registry) (*npc.Manager, error) {
	m := npc.NewManager(cfg, logger, npc.WithAgentObserver(collector), npc.WithEventBus(events))
	err := metrics.RegisterHost(reg, func() (int, int) {
		s := m.Stats()
		return s.Agents, s.Trees
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func ProvideServer(m *npc.Manager, reg *prometheus.Registry, logger *log.Logger) *server.Server {
	return server.New(m, reg, logger)
}
