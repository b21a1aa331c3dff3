package holepunch

import (
	"net"

	"go.uber.org/fx"

	"github.com/dep2p/go-vport/config"
	"github.com/dep2p/go-vport/internal/core/discovery/dns"
	"github.com/dep2p/go-vport/internal/core/rendezvous"
	"github.com/dep2p/go-vport/internal/core/scheduler"
	"github.com/dep2p/go-vport/pkg/types"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config    *config.Config
	Scheduler *scheduler.Scheduler
	Resolver  *dns.Resolver
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	TCP rendezvous.Dialer[net.Conn]
	UDP rendezvous.Dialer[*DatagramConn]
}

// ProvideDialers 提供 TCP 与 UDP 连接器工厂
func ProvideDialers(in ModuleInput) ModuleOutput {
	build := func(t types.Transport) Config {
		c := ConfigFrom(in.Config, t)
		c.Resolver = in.Resolver
		c.Clock = in.Scheduler.Clock()
		return c
	}
	tcp, udp := build(types.TransportTCP), build(types.TransportUDP)
	return ModuleOutput{
		TCP: rendezvous.DialerFunc[net.Conn](func(t rendezvous.Target, auth rendezvous.AuthFunc, done func(rendezvous.Outcome[net.Conn])) rendezvous.Connector {
			return NewTCPConnector(tcp, t, auth, done)
		}),
		UDP: rendezvous.DialerFunc[*DatagramConn](func(t rendezvous.Target, auth rendezvous.AuthFunc, done func(rendezvous.Outcome[*DatagramConn])) rendezvous.Connector {
			return NewUDPConnector(udp, t, auth, done)
		}),
	}
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("holepunch",
		fx.Provide(ProvideDialers),
	)
}
