package dns

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-vport/config"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("discovery.dns",
		fx.Provide(func(cfg *config.Config) *Resolver {
			return NewResolver(cfg.Resolver)
		}),
	)
}
