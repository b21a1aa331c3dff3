package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-vport/config"
	"github.com/dep2p/go-vport/internal/core/channel"
	"github.com/dep2p/go-vport/internal/core/discovery/dns"
	"github.com/dep2p/go-vport/internal/core/eventbus"
	"github.com/dep2p/go-vport/internal/core/recovery"
	"github.com/dep2p/go-vport/internal/core/scheduler"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/internal/util/logger"
	"github.com/dep2p/go-vport/pkg/types"
)

var log = logger.Logger("session")

// Params 会话管理器参数
type Params struct {
	Context  *Context
	Config   config.SessionConfig
	Identity types.Identity
	Resolver Resolver

	// Installer 为 nil 时握手成功即视为安装完成
	Installer Installer

	// Emitter 连通状态事件，可为 nil
	Emitter *eventbus.Emitter[types.EvtConnectivityChanged]
}

// Manager 会话通道管理器
type Manager struct {
	sctx      *Context
	cfg       config.SessionConfig
	identity  types.Identity
	resolver  Resolver
	installer Installer
	emitter   *eventbus.Emitter[types.EvtConnectivityChanged]

	// 以下字段受会话锁保护
	periods    PingPeriods
	deps       []Dependent
	active     bool
	closed     bool
	gen        uint64
	cancel     context.CancelFunc
	retry      *scheduler.Task
	backoff    recovery.Backoff
	state      types.Connectivity
	ch         *channel.Channel
	installed  bool
	sessionID  []byte
	localPing  time.Duration
	remotePing time.Duration
}

// NewManager 创建会话管理器
func NewManager(p Params) (*Manager, error) {
	if err := p.Identity.Validate(); err != nil {
		return nil, err
	}
	if p.Context == nil || p.Resolver == nil {
		return nil, errors.New("session: context and resolver are required")
	}
	return &Manager{
		sctx:      p.Context,
		cfg:       p.Config,
		identity:  p.Identity,
		resolver:  p.Resolver,
		installer: p.Installer,
		emitter:   p.Emitter,
		state:     types.Connectivity{State: types.Disconnected},
	}, nil
}

// Context 返回会话上下文
func (m *Manager) Context() *Context { return m.sctx }

// Identity 返回端点身份
func (m *Manager) Identity() types.Identity { return m.identity }

// AddDependent 登记依赖方
func (m *Manager) AddDependent(d Dependent) {
	m.sctx.Lock()
	defer m.sctx.Unlock()
	m.deps = append(m.deps, d)
}

// SetPingPeriods 登记心跳周期接收方
func (m *Manager) SetPingPeriods(p PingPeriods) {
	m.sctx.Lock()
	defer m.sctx.Unlock()
	m.periods = p
	if m.localPing > 0 {
		p.SetLocalPeriod(m.localPing)
	}
	if m.remotePing > 0 {
		p.SetRemotePeriod(m.remotePing)
	}
}

// ============================================================================
//                              公开操作
// ============================================================================

// Connect 开始连接；已在连接中或已关闭时无操作
func (m *Manager) Connect() {
	m.sctx.Lock()
	defer m.sctx.Unlock()
	if m.closed || m.active {
		return
	}
	m.active = true
	m.backoff.Reset()
	log.Info("开始连接", "server", m.identity.ServerHost)
	m.startAttemptLocked(nil)
}

// Disconnect 断开会话并停止自动重连
func (m *Manager) Disconnect() {
	m.sctx.Lock()
	defer m.sctx.Unlock()
	m.disconnectLocked()
}

// Close 关闭管理器，之后 Connect 不再生效
//
// 已处于 Down 时状态与错误保持不变。
func (m *Manager) Close() {
	m.sctx.Lock()
	defer m.sctx.Unlock()
	if m.closed {
		return
	}
	m.disconnectLocked()
	m.closed = true
	// Down 保持到显式重连，关闭不改写
	if s := m.state.State; s != types.Disconnected && s != types.Down {
		m.setStateLocked(types.Disconnected, nil)
	}
	log.Info("会话管理器已关闭")
}

// OnEndpointInstalled 上层安装完成
func (m *Manager) OnEndpointInstalled() {
	m.sctx.Lock()
	defer m.sctx.Unlock()
	if m.ch != nil {
		m.installedLocked(m.ch)
	}
}

// SetLocalPingPeriod 设置本地心跳周期，0 表示取消
func (m *Manager) SetLocalPingPeriod(d time.Duration) {
	m.sctx.Lock()
	defer m.sctx.Unlock()
	m.localPing = d
	if m.periods != nil {
		m.periods.SetLocalPeriod(d)
	}
	if m.ch != nil && d > 0 {
		m.announcePeriodLocked()
	}
}

// SetRemotePingPeriod 设置服务器要求的心跳周期，0 表示取消
func (m *Manager) SetRemotePingPeriod(d time.Duration) {
	m.sctx.Lock()
	defer m.sctx.Unlock()
	m.setRemotePingPeriodLocked(d)
}

// Connectivity 返回当前连通状态
func (m *Manager) Connectivity() types.Connectivity {
	m.sctx.Lock()
	defer m.sctx.Unlock()
	return m.state
}

// Channel 返回当前通道，须持有会话锁
func (m *Manager) Channel() *channel.Channel {
	return m.ch
}

// Online 端点是否完全在线，须持有会话锁
func (m *Manager) Online() bool {
	return m.state.State == types.Connected && m.ch != nil && !m.ch.Closed()
}

// ============================================================================
//                              连接尝试
// ============================================================================

func (m *Manager) startAttemptLocked(cause error) {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.setStateLocked(types.AttemptingToConnect, cause)

	sessionID := m.sessionID
	go m.attempt(ctx, gen, sessionID)
}

func (m *Manager) attempt(ctx context.Context, gen uint64, sessionID []byte) {
	ch, id, err := m.establish(ctx, sessionID)

	m.sctx.Lock()
	defer m.sctx.Unlock()

	if gen != m.gen || !m.active || m.closed {
		if ch != nil {
			_ = ch.Close()
		}
		return
	}
	m.sctx.Metrics.SessionConnect(err)
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if err != nil {
		log.Warn("连接尝试失败", "attempt", m.backoff.Attempt(), "err", err)
		m.failLocked(err)
		return
	}
	m.installLocked(ch, id)
}

// establish 解析、拨号并握手，不持有会话锁
func (m *Manager) establish(ctx context.Context, sessionID []byte) (*channel.Channel, []byte, error) {
	host, port := m.serverAddr()
	addrs, err := m.resolver.Resolve(ctx, host)
	if err != nil {
		if errors.Is(err, dns.ErrHostNotFound) {
			return nil, nil, types.NewResolutionError(err)
		}
		return nil, nil, types.NewNetworkError(err)
	}

	conn, err := m.dial(ctx, addrs, port)
	if err != nil {
		return nil, nil, types.NewNetworkError(err)
	}

	ch := channel.New(conn, channel.Config{
		MaxMessage: m.cfg.HandshakeMaxMessage,
		SendQueue:  m.cfg.SendQueue,
		Locker:     m.sctx.Locker(),
		Clock:      m.sctx.Clock(),
		OnError:    m.onChannelError,
	})

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	h := &handshake{
		identity:  m.identity,
		sessionID: sessionID,
		restore:   len(sessionID) > 0,
	}
	id, err := h.run(ch, time.Now().Add(m.cfg.HandshakeTimeout.Duration()))
	if err != nil {
		_ = ch.Close()
		return nil, nil, classify(err)
	}
	log.Debug("握手完成", "restored", h.restore, "remote", conn.RemoteAddr())
	return ch, id, nil
}

func (m *Manager) serverAddr() (string, int) {
	if h, p, err := net.SplitHostPort(m.identity.ServerHost); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			return h, n
		}
	}
	return m.identity.ServerHost, m.cfg.Port
}

func (m *Manager) dial(ctx context.Context, addrs []netip.Addr, port int) (net.Conn, error) {
	d := net.Dialer{Timeout: m.cfg.ConnectTimeout.Duration()}
	var errs error
	for _, a := range addrs {
		target := netip.AddrPortFrom(a, uint16(port)).String()
		conn, err := d.DialContext(ctx, "tcp", target)
		if err == nil {
			return conn, nil
		}
		log.Debug("拨号失败", "addr", target, "err", err)
		errs = multierr.Append(errs, err)
	}
	if errs == nil {
		errs = ErrNoAddress
	}
	return nil, errs
}

// ============================================================================
//                              安装与拆除
// ============================================================================

func (m *Manager) installLocked(ch *channel.Channel, sessionID []byte) {
	m.sessionID = sessionID
	m.ch = ch
	m.installed = false

	ch.SetMaxMessage(m.cfg.MaxMessage)
	ch.Register(wire.ComponentState, m.handleState)
	for _, d := range m.deps {
		d.Established(ch)
	}
	ch.Start()
	if m.localPing > 0 {
		m.announcePeriodLocked()
	}
	log.Info("会话通道已建立", "remote", ch.RemoteAddr())

	if m.installer == nil {
		m.installedLocked(ch)
		return
	}
	installer := m.installer
	m.sctx.Workers.Go(func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-ch.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
		if err := installer.Install(ctx, ch); err != nil {
			log.Warn("端点安装失败", "err", err)
			ch.Fail(err)
			return
		}
		m.sctx.Lock()
		defer m.sctx.Unlock()
		m.installedLocked(ch)
	})
}

func (m *Manager) installedLocked(ch *channel.Channel) {
	if ch != m.ch || ch.Closed() || m.installed {
		return
	}
	m.installed = true
	m.backoff.Reset()
	m.setStateLocked(types.Connected, nil)
	for _, d := range m.deps {
		d.Installed()
	}
}

func (m *Manager) onChannelError(ch *channel.Channel, err error) {
	m.sctx.Lock()
	defer m.sctx.Unlock()
	if ch != m.ch {
		return
	}
	ce := classify(err)
	log.Warn("会话通道断开", "class", ce.Class, "err", ce)
	m.teardownLocked(ce)
	if m.active && !m.closed {
		m.failLocked(ce)
	}
}

func (m *Manager) teardownLocked(cause error) {
	ch := m.ch
	m.ch = nil
	m.installed = false
	_ = ch.Close()
	for _, d := range m.deps {
		d.Disconnected(cause)
	}
	if cause != nil {
		m.sctx.Metrics.SessionDisconnect(classify(cause).Class)
	}
}

func (m *Manager) failLocked(err error) {
	ce := classify(err)
	d := m.backoff.Next(ce)
	if d.DropSession {
		m.sessionID = nil
	}
	if !d.Retry {
		m.active = false
		m.setStateLocked(types.Down, ce)
		log.Error("会话终止，不再自动重连", "err", ce)
		return
	}

	m.setStateLocked(types.AttemptingToConnect, ce)
	m.sctx.Metrics.ReconnectScheduled(d.Delay)
	log.Info("计划重连", "delay", d.Delay, "attempt", m.backoff.Attempt())

	gen := m.gen
	m.retry = m.sctx.Scheduler.Schedule(d.Delay, func() {
		m.sctx.Lock()
		defer m.sctx.Unlock()
		if gen != m.gen || !m.active || m.closed {
			return
		}
		m.retry = nil
		m.startAttemptLocked(ce)
	})
}

func (m *Manager) disconnectLocked() {
	if !m.active {
		return
	}
	m.active = false
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.retry != nil {
		m.retry.Cancel()
		m.retry = nil
	}
	if m.ch != nil {
		m.teardownLocked(nil)
	}
	m.setStateLocked(types.Disconnected, nil)
	log.Info("会话已断开")
}

// ============================================================================
//                              状态组件
// ============================================================================

func (m *Manager) handleState(tag wire.Tag, payload []byte) error {
	switch tag {
	case wire.TagPingPeriod:
		pp, err := wire.ParsePingPeriod(payload)
		if err != nil {
			return err
		}
		m.setRemotePingPeriodLocked(time.Duration(pp.Seconds) * time.Second)
		return nil
	case wire.TagRestart:
		log.Info("服务器要求重连")
		return types.NewRestartError()
	default:
		return fmt.Errorf("%w: state tag %d", wire.ErrUnknownTag, tag)
	}
}

func (m *Manager) setRemotePingPeriodLocked(d time.Duration) {
	m.remotePing = d
	if m.periods != nil {
		m.periods.SetRemotePeriod(d)
	}
}

func (m *Manager) announcePeriodLocked() {
	pp := wire.PingPeriod{Seconds: uint64(m.localPing / time.Second)}
	if err := m.ch.SendMessage(wire.ComponentState, wire.TagPingPeriod, pp.Payload()); err != nil {
		log.Debug("发送心跳周期失败", "err", err)
	}
}

func (m *Manager) setStateLocked(s types.ConnectivityState, err error) {
	prev := m.state.State
	m.state = types.Connectivity{State: s, Err: err}
	m.sctx.Metrics.Connectivity(s)
	if prev != s {
		log.Info("连通状态变化", "from", prev, "to", s, "err", err)
	}
	if m.emitter != nil {
		_ = m.emitter.Emit(types.EvtConnectivityChanged{Previous: prev, Current: m.state})
	}
}
