package session

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-vport/config"
	"github.com/dep2p/go-vport/internal/core/discovery/dns"
	"github.com/dep2p/go-vport/internal/core/eventbus"
	"github.com/dep2p/go-vport/internal/core/metrics"
	"github.com/dep2p/go-vport/internal/core/scheduler"
	"github.com/dep2p/go-vport/pkg/types"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config    *config.Config
	Scheduler *scheduler.Scheduler
	Workers   *scheduler.Workers
	Metrics   *metrics.Metrics `optional:"true"`
	Resolver  *dns.Resolver
	Bus       *eventbus.Bus
	Installer Installer `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Context *Context
	Manager *Manager
}

// ProvideServices 提供会话上下文与管理器
func ProvideServices(in ModuleInput) (ModuleOutput, error) {
	id, err := in.Config.Endpoint.Identity()
	if err != nil {
		return ModuleOutput{}, err
	}
	emitter, err := eventbus.NewEmitter[types.EvtConnectivityChanged](in.Bus, eventbus.Stateful())
	if err != nil {
		return ModuleOutput{}, err
	}
	sctx := NewContext(in.Scheduler, in.Workers, in.Metrics)
	m, err := NewManager(Params{
		Context:   sctx,
		Config:    in.Config.Session,
		Identity:  id,
		Resolver:  in.Resolver,
		Installer: in.Installer,
		Emitter:   emitter,
	})
	if err != nil {
		return ModuleOutput{}, err
	}
	if p := in.Config.Liveness.LocalPingPeriod.Duration(); p > 0 {
		m.SetLocalPingPeriod(p)
	}
	return ModuleOutput{Context: sctx, Manager: m}, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("session",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, m *Manager) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			m.Close()
			return nil
		},
	})
}
