package vport

import (
	"context"
	"net"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-vport/config"
	"github.com/dep2p/go-vport/internal/core/channel"
	"github.com/dep2p/go-vport/internal/core/discovery/dns"
	"github.com/dep2p/go-vport/internal/core/eventbus"
	"github.com/dep2p/go-vport/internal/core/liveness"
	"github.com/dep2p/go-vport/internal/core/metrics"
	"github.com/dep2p/go-vport/internal/core/nat/holepunch"
	"github.com/dep2p/go-vport/internal/core/rendezvous"
	"github.com/dep2p/go-vport/internal/core/scheduler"
	"github.com/dep2p/go-vport/internal/core/session"
	"github.com/dep2p/go-vport/pkg/types"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 基础：Scheduler/Workers → EventBus → Metrics → DNS
//  2. 会话：Session Manager → Liveness Monitor
//  3. 连接：HolePunch Dialers → TCP/UDP Broker
//  4. 扩展：用户自定义 Fx 选项
func buildFxApp(cfg *config.Config, o *options, e *Endpoint) *fx.App {
	modules := []fx.Option{
		fx.Supply(cfg),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 可选注入
	// ════════════════════════════════════════════════════════════════════════
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}
	if o.registry != nil {
		reg := o.registry
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}
	if o.installer != nil {
		fn := o.installer
		modules = append(modules, fx.Provide(func() session.Installer {
			return session.InstallerFunc(func(ctx context.Context, _ *channel.Channel) error {
				return fn(ctx)
			})
		}))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 组件
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		scheduler.Module(),
		eventbus.Module(),
		metrics.Module(),
		dns.Module(),
		session.Module(),
		liveness.Module(),
		holepunch.Module(),
		rendezvous.Module[net.Conn](types.TransportTCP),
		rendezvous.Module[*holepunch.DatagramConn](types.TransportUDP),
	)

	modules = append(modules,
		fx.Populate(&e.manager, &e.monitor, &e.tcp, &e.udp, &e.bus),
	)
	modules = append(modules, o.fxOptions...)

	// fx 自身事件日志静默
	modules = append(modules,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...)
}
