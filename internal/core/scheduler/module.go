package scheduler

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-vport/config"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config
	Clock  clock.Clock `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Scheduler *Scheduler
	Workers   *Workers
}

// ProvideServices 提供定时任务服务与工作池
func ProvideServices(in ModuleInput) ModuleOutput {
	return ModuleOutput{
		Scheduler: New(in.Clock),
		Workers:   NewWorkers(in.Config.Workers.Size, in.Config.Workers.Queue),
	}
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("scheduler",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, s *Scheduler, w *Workers) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			s.Stop()
			w.Close()
			return nil
		},
	})
}
