package rendezvous

import (
	"io"

	"go.uber.org/fx"

	"github.com/dep2p/go-vport/config"
	"github.com/dep2p/go-vport/internal/core/session"
	"github.com/dep2p/go-vport/pkg/types"
)

// Module 返回指定传输的 fx 模块
//
// 需要容器中已有 Dialer[C]。
func Module[C io.Closer](t types.Transport) fx.Option {
	return fx.Module("rendezvous-"+t.String(),
		fx.Provide(func(cfg *config.Config, m *session.Manager, d Dialer[C]) *Broker[C] {
			return NewBroker[C](m.Context(), m, d, BrokerConfig(cfg, t))
		}),
		fx.Invoke(func(m *session.Manager, b *Broker[C]) {
			m.AddDependent(b)
		}),
	)
}

// BrokerConfig 从全局配置取出指定传输的代理配置
func BrokerConfig(cfg *config.Config, t types.Transport) Config {
	budget := cfg.Rendezvous.TCPWaitBudget.Duration()
	if t == types.TransportUDP {
		budget = cfg.Rendezvous.UDPWaitBudget.Duration()
	}
	return Config{Transport: t, WaitBudget: budget}
}
