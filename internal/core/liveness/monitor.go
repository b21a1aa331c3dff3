package liveness

import (
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-vport/internal/core/channel"
	"github.com/dep2p/go-vport/internal/core/scheduler"
	"github.com/dep2p/go-vport/internal/core/session"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/internal/util/logger"
	"github.com/dep2p/go-vport/pkg/types"
)

var log = logger.Logger("liveness")

// ============================================================================
//                              常量
// ============================================================================

const (
	// DefaultPeriod 未配置时的心跳周期
	DefaultPeriod = 300 * time.Second

	// PingLead 提前发送 Ping 的时间
	PingLead = 3 * time.Second

	// MaxSilence 本端最长静默
	MaxSilence = 300 * time.Second

	// LongTolerance 长周期下等待回应的时间
	LongTolerance = 60 * time.Second
)

// ErrPingTimeout 心跳超时
var ErrPingTimeout = errors.New("liveness: ping timeout")

// ============================================================================
//                              Monitor
// ============================================================================

// Monitor 心跳检测器
//
// 实现 session.Dependent 与 session.PingPeriods，全部状态受会话锁保护。
type Monitor struct {
	sctx *session.Context

	ch     *channel.Channel
	armed  bool
	local  time.Duration
	remote time.Duration

	pingSent   bool
	pingSentAt time.Time
	pingInputs uint64

	task *scheduler.Task
}

var (
	_ session.Dependent   = (*Monitor)(nil)
	_ session.PingPeriods = (*Monitor)(nil)
)

// NewMonitor 创建心跳检测器
func NewMonitor(sctx *session.Context) *Monitor {
	return &Monitor{sctx: sctx}
}

// Period 返回有效心跳周期，须持有会话锁
func (m *Monitor) Period() time.Duration {
	switch {
	case m.remote > 0:
		return m.remote
	case m.local > 0:
		return m.local
	default:
		return DefaultPeriod
	}
}

func (m *Monitor) tolerance() time.Duration {
	if p := m.Period(); p <= LongTolerance {
		return p
	}
	return LongTolerance
}

func (m *Monitor) lead() time.Duration {
	p := m.Period()
	if p <= PingLead {
		return p
	}
	return p - PingLead
}

// ============================================================================
//                              Dependent
// ============================================================================

// Established 登记心跳组件
func (m *Monitor) Established(ch *channel.Channel) {
	m.cancelLocked()
	m.ch = ch
	m.armed = false
	m.pingSent = false
	ch.Register(wire.ComponentLiveness, m.handle)
}

// Installed 安排首次检查
func (m *Monitor) Installed() {
	if m.ch == nil {
		return
	}
	m.armed = true
	log.Debug("心跳检测启动", "period", m.Period())
	m.evaluateLocked()
}

// Disconnected 停止检测
func (m *Monitor) Disconnected(error) {
	m.cancelLocked()
	m.ch = nil
	m.armed = false
	m.pingSent = false
}

// ============================================================================
//                              PingPeriods
// ============================================================================

// SetLocalPeriod 设置本地周期
func (m *Monitor) SetLocalPeriod(d time.Duration) {
	m.local = d
	m.rearmLocked()
}

// SetRemotePeriod 设置服务器要求的周期
func (m *Monitor) SetRemotePeriod(d time.Duration) {
	m.remote = d
	m.rearmLocked()
}

func (m *Monitor) rearmLocked() {
	if !m.armed || m.ch == nil || m.ch.Closed() {
		return
	}
	m.cancelLocked()
	m.evaluateLocked()
}

// ============================================================================
//                              检查逻辑
// ============================================================================

func (m *Monitor) evaluateLocked() {
	ch := m.ch
	now := m.sctx.Clock().Now()

	if m.pingSent {
		if ch.InputCount() > m.pingInputs {
			m.pingSent = false
		} else {
			elapsed := now.Sub(m.pingSentAt)
			tol := m.tolerance()
			if elapsed >= tol {
				log.Warn("心跳超时，关闭通道", "elapsed", elapsed, "remote", ch.RemoteAddr())
				ch.Fail(types.NewNetworkError(ErrPingTimeout))
				return
			}
			m.scheduleLocked(tol - elapsed)
			return
		}
	}

	var next time.Duration
	lead := m.lead()
	silent := now.Sub(ch.LastInput())
	if silent >= lead {
		if !m.send(wire.TagPing) {
			return
		}
		m.pingSent = true
		m.pingSentAt = now
		m.pingInputs = ch.InputCount()
		m.scheduleLocked(m.tolerance())
		return
	}
	next = lead - silent

	if now.Sub(ch.LastOutput())+next >= MaxSilence {
		if !m.send(wire.TagKeepAlive) {
			return
		}
	}
	if limit := MaxSilence - PingLead; next > limit {
		next = limit
	}
	m.scheduleLocked(next)
}

func (m *Monitor) send(tag wire.Tag) bool {
	if err := m.ch.SendMessage(wire.ComponentLiveness, tag, nil); err != nil {
		log.Debug("心跳发送失败", "tag", tag, "err", err)
		m.ch.Fail(types.NewNetworkError(err))
		return false
	}
	m.sctx.Metrics.Message(wire.ComponentLiveness.String(), "out")
	return true
}

func (m *Monitor) scheduleLocked(d time.Duration) {
	ch := m.ch
	var task *scheduler.Task
	task = m.sctx.Scheduler.Schedule(d, func() {
		m.sctx.Lock()
		defer m.sctx.Unlock()
		// 已触发但被重新安排取代的检查不再执行
		if m.task != task || m.ch != ch || !m.armed || ch.Closed() {
			return
		}
		m.task = nil
		m.evaluateLocked()
	})
	m.task = task
}

func (m *Monitor) cancelLocked() {
	if m.task != nil {
		m.task.Cancel()
		m.task = nil
	}
}

// handle 处理心跳组件消息，在会话锁内调用
func (m *Monitor) handle(tag wire.Tag, _ []byte) error {
	m.sctx.Metrics.Message(wire.ComponentLiveness.String(), "in")
	switch tag {
	case wire.TagPing:
		return m.ch.SendMessage(wire.ComponentLiveness, wire.TagPong, nil)
	case wire.TagPong, wire.TagKeepAlive:
		return nil
	default:
		return fmt.Errorf("%w: liveness tag %d", wire.ErrUnknownTag, tag)
	}
}
