package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dep2p/go-vport/pkg/types"
)

// 结果标签
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
	OutcomeAborted = "aborted"
)

// Metrics 指标集合
type Metrics struct {
	sessionConnects    *prometheus.CounterVec
	sessionDisconnects *prometheus.CounterVec
	reconnectDelay     prometheus.Histogram
	connectivity       prometheus.Gauge
	messages           *prometheus.CounterVec
	pending            *prometheus.GaugeVec
	peerConnects       *prometheus.CounterVec
}

// New 在 reg 上注册指标
func New(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessionConnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connects_total",
			Help:      "Session connect attempts by outcome.",
		}, []string{"outcome"}),
		sessionDisconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "disconnects_total",
			Help:      "Session teardowns by error class.",
		}, []string{"class"}),
		reconnectDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reconnect_delay_seconds",
			Help:      "Scheduled reconnect delays.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 60},
		}),
		connectivity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connectivity_state",
			Help:      "Current connectivity state (0 disconnected, 1 attempting, 2 connected, 3 down).",
		}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "messages_total",
			Help:      "Session channel messages by component and direction.",
		}, []string{"component", "direction"}),
		pending: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "pending_requests",
			Help:      "Outstanding peer connect requests.",
		}, []string{"transport"}),
		peerConnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "peer_connects_total",
			Help:      "Peer connect results by transport, mode and outcome.",
		}, []string{"transport", "mode", "outcome"}),
	}
}

// SessionConnect 记录一次连接尝试结果
func (m *Metrics) SessionConnect(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	m.sessionConnects.WithLabelValues(outcome).Inc()
}

// SessionDisconnect 记录一次会话拆除
func (m *Metrics) SessionDisconnect(class types.ErrorClass) {
	if m == nil {
		return
	}
	m.sessionDisconnects.WithLabelValues(class.String()).Inc()
}

// ReconnectScheduled 记录重连等待
func (m *Metrics) ReconnectScheduled(d time.Duration) {
	if m == nil {
		return
	}
	m.reconnectDelay.Observe(d.Seconds())
}

// Connectivity 记录连通状态
func (m *Metrics) Connectivity(s types.ConnectivityState) {
	if m == nil {
		return
	}
	m.connectivity.Set(float64(s))
}

// Message 记录一条通道消息，direction 为 "in" 或 "out"
func (m *Metrics) Message(component, direction string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(component, direction).Inc()
}

// PendingAdd 调整待决请求数
func (m *Metrics) PendingAdd(t types.Transport, delta float64) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(t.String()).Add(delta)
}

// PeerConnect 记录一次对端连接结果；失败时 mode 为空
func (m *Metrics) PeerConnect(t types.Transport, mode string, outcome string) {
	if m == nil {
		return
	}
	if mode == "" {
		mode = "none"
	}
	m.peerConnects.WithLabelValues(t.String(), mode, outcome).Inc()
}
