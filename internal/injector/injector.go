//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/behave/internal/core/npc"
	"github.com/zeusync/behave/internal/core/observability/log"
)

func InitializeLogger(cfg npc.ManagerConfig) *log.Logger {
	wire.Build(ProvideLogger)
	return nil
}

func InitializeHost(cfg npc.ManagerConfig) (*Host, error) {
	wire.Build(
		ProvideLogger,
		ProvideRegistry,
		ProvideCollector,
		ProvideEventBus,
		ProvideManager,
		ProvideServer,
		wire.Struct(new(Host), "*"),
	)
	return nil, nil
}
