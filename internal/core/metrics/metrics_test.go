package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-vport/config"
	"github.com/dep2p/go-vport/pkg/types"
)

// TestMetrics_Record 测试指标记录
func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")

	m.SessionConnect(nil)
	m.SessionConnect(errors.New("refused"))
	m.SessionConnect(errors.New("refused"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionConnects.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionConnects.WithLabelValues(OutcomeFailed)))

	m.Connectivity(types.Connected)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectivity))

	m.PendingAdd(types.TransportUDP, 1)
	m.PendingAdd(types.TransportUDP, 1)
	m.PendingAdd(types.TransportUDP, -1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pending.WithLabelValues("udp")))

	m.PeerConnect(types.TransportTCP, "", OutcomeTimeout)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.peerConnects.WithLabelValues("tcp", "none", OutcomeTimeout)))

	m.ReconnectScheduled(5 * time.Second)
	m.SessionDisconnect(types.ClassNetwork)
	m.Message("liveness", "out")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("liveness", "out")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

// TestMetrics_Nil 测试 nil 接收者安全
func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionConnect(nil)
		m.SessionDisconnect(types.ClassProtocol)
		m.ReconnectScheduled(time.Second)
		m.Connectivity(types.Down)
		m.Message("state", "in")
		m.PendingAdd(types.TransportTCP, 1)
		m.PeerConnect(types.TransportTCP, "p2p", OutcomeOK)
	})
}

// TestModule 测试 fx 模块
func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	reg := prometheus.NewRegistry()

	var m *Metrics
	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(func() prometheus.Registerer { return reg }),
		Module(),
		fx.Populate(&m),
	)
	app.RequireStart()
	require.NotNil(t, m)
	app.RequireStop()

	cfg.Metrics.Enabled = false
	assert.Nil(t, NewFromParams(Params{Config: cfg}))
}
