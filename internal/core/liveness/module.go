package liveness

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-vport/internal/core/session"
)

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("liveness",
		fx.Provide(NewMonitor),
		fx.Invoke(register),
	)
}

func register(m *session.Manager, mon *Monitor) {
	m.AddDependent(mon)
	m.SetPingPeriods(mon)
}
