package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-vport/config"
)

// Params 模块依赖
type Params struct {
	fx.In

	Config   *config.Config
	Registry prometheus.Registerer `optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(NewFromParams),
	)
}

// NewFromParams 根据配置创建指标；未启用时返回 nil
func NewFromParams(p Params) *Metrics {
	cfg := p.Config.Metrics
	if !cfg.Enabled {
		return nil
	}
	reg := p.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return New(reg, cfg.Namespace)
}
