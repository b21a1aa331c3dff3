package rendezvous

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-vport/internal/core/channel"
	"github.com/dep2p/go-vport/internal/core/metrics"
	"github.com/dep2p/go-vport/internal/core/scheduler"
	"github.com/dep2p/go-vport/internal/core/session"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/internal/util/logger"
	"github.com/dep2p/go-vport/pkg/types"
)

var log = logger.Logger("rendezvous")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNilCallback 未提供结果回调
	ErrNilCallback = errors.New("rendezvous: nil result callback")

	// ErrInvalidPort 虚拟端口无效
	ErrInvalidPort = errors.New("rendezvous: invalid virtual port")
)

// ============================================================================
//                              类型
// ============================================================================

// Result 交付给应用的连接结果
type Result[C io.Closer] struct {
	Conn       C
	Mode       types.ConnectMode
	Attachment any
	Err        error
}

// ResultFunc 结果回调，在工作池中执行
type ResultFunc[C io.Closer] func(Result[C])

// Session 会话在线判断，须在会话锁内调用
type Session interface {
	Online() bool
}

// Config Broker 配置
type Config struct {
	Transport types.Transport

	// WaitBudget 请求整体等待时间
	WaitBudget time.Duration
}

// request 待决连接请求
type request[C io.Closer] struct {
	id          types.RequestID
	service     types.ServiceID
	port        uint32
	opts        Options
	attachment  any
	onResult    ResultFunc[C]
	rzvServerID uint64
	connector   Connector
	timeout     *scheduler.Task
	startedAt   time.Time
	claimed     atomic.Bool
}

// ============================================================================
//                              Broker
// ============================================================================

// Broker 连接请求代理
//
// 实现 session.Dependent；所有簿记都在会话锁内进行。
type Broker[C io.Closer] struct {
	sctx      *session.Context
	session   Session
	dialer    Dialer[C]
	cfg       Config
	component wire.Component

	ch      *channel.Channel
	pending map[types.RequestID]*request[C]
	rand    func() uint32
}

// NewBroker 创建代理
func NewBroker[C io.Closer](sctx *session.Context, s Session, d Dialer[C], cfg Config) *Broker[C] {
	comp := wire.ComponentTCPBroker
	if cfg.Transport == types.TransportUDP {
		comp = wire.ComponentUDPBroker
	}
	return &Broker[C]{
		sctx:      sctx,
		session:   s,
		dialer:    d,
		cfg:       cfg,
		component: comp,
		pending:   make(map[types.RequestID]*request[C]),
		rand:      rand.Uint32,
	}
}

var _ session.Dependent = (*Broker[io.Closer])(nil)

// Transport 返回传输类型
func (b *Broker[C]) Transport() types.Transport { return b.cfg.Transport }

// Pending 返回待决请求数
func (b *Broker[C]) Pending() int {
	b.sctx.Lock()
	defer b.sctx.Unlock()
	return len(b.pending)
}

// Connect 请求连接远端服务的虚拟端口
//
// 目标服务或本端不在线时同步返回 ErrServiceOffline / ErrClientOffline，
// 不发送任何消息，也不调用 onResult。其余结果经 onResult 恰好交付一次。
func (b *Broker[C]) Connect(ref types.ServiceRef, port uint32, opts Options, onResult ResultFunc[C], attachment any) error {
	if onResult == nil {
		return ErrNilCallback
	}
	if port == 0 {
		return ErrInvalidPort
	}

	// 服务在线查询可能回调外部成员层，在锁外执行
	if ref == nil || !ref.Online() {
		return types.ErrServiceOffline
	}

	b.sctx.Lock()
	defer b.sctx.Unlock()

	if b.ch == nil || b.ch.Closed() || !b.session.Online() {
		return types.ErrClientOffline
	}

	r := &request[C]{
		id:         b.newRequestIDLocked(),
		service:    ref.ID(),
		port:       port,
		opts:       opts,
		attachment: attachment,
		onResult:   onResult,
		startedAt:  b.sctx.Clock().Now(),
	}
	msg := wire.Request{RequestID: uint32(r.id), ServiceID: []byte(r.service), VirtualPort: port}
	if err := b.ch.SendMessage(b.component, wire.TagRequest, msg.Payload()); err != nil {
		log.Debug("发送连接请求失败", "transport", b.cfg.Transport, "err", err)
		return fmt.Errorf("%w: %v", types.ErrClientOffline, err)
	}
	b.sctx.Metrics.Message(b.component.String(), "out")

	b.pending[r.id] = r
	b.sctx.Metrics.PendingAdd(b.cfg.Transport, 1)
	r.timeout = b.sctx.Scheduler.Schedule(b.cfg.WaitBudget, func() { b.onTimeout(r) })

	log.Debug("连接请求已发送",
		"transport", b.cfg.Transport,
		"requestID", r.id,
		"service", r.service.ShortString(),
		"port", port)
	return nil
}

// ServiceOffline 目标服务下线，解决该服务的所有待决请求
func (b *Broker[C]) ServiceOffline(id types.ServiceID) {
	b.sctx.Lock()
	defer b.sctx.Unlock()

	n := 0
	for _, r := range b.pending {
		if r.service == id {
			b.resolveLocked(r, Outcome[C]{Err: types.ErrServiceOffline})
			n++
		}
	}
	if n > 0 {
		log.Info("目标服务下线，取消连接请求", "transport", b.cfg.Transport, "service", id.ShortString(), "count", n)
	}
}

// ============================================================================
//                              Dependent
// ============================================================================

// Established 登记代理组件
func (b *Broker[C]) Established(ch *channel.Channel) {
	b.ch = ch
	ch.Register(b.component, b.handle)
}

// Installed 无需处理
func (b *Broker[C]) Installed() {}

// Disconnected 以 ErrClientOffline 解决所有待决请求
func (b *Broker[C]) Disconnected(error) {
	b.ch = nil
	if len(b.pending) == 0 {
		return
	}
	log.Info("会话断开，取消连接请求", "transport", b.cfg.Transport, "count", len(b.pending))
	for _, r := range b.pending {
		b.resolveLocked(r, Outcome[C]{Err: types.ErrClientOffline})
	}
}

// ============================================================================
//                              消息处理
// ============================================================================

// handle 在会话锁内处理代理组件消息
func (b *Broker[C]) handle(tag wire.Tag, payload []byte) error {
	b.sctx.Metrics.Message(b.component.String(), "in")
	switch tag {
	case wire.TagRzvData:
		m, err := wire.ParseRzvData(payload)
		if err != nil {
			return err
		}
		b.onRzvData(m)
	case wire.TagRequestError:
		m, err := wire.ParseRequestError(payload)
		if err != nil {
			return err
		}
		if r := b.pending[types.RequestID(m.RequestID)]; r != nil {
			err := types.RequestCodeError(types.RequestCode(m.Code))
			log.Debug("连接请求被拒绝", "requestID", r.id, "code", m.Code, "err", err)
			b.resolveLocked(r, Outcome[C]{Err: err})
		}
	case wire.TagAuthHash:
		m, err := wire.ParseAuthHash(payload)
		if err != nil {
			return err
		}
		if r := b.pending[types.RequestID(m.RequestID)]; r != nil && r.connector != nil {
			r.connector.DeliverAuthHash(m.Hash)
		}
	case wire.TagAuthError:
		m, err := wire.ParseRequestError(payload)
		if err != nil {
			return err
		}
		if r := b.pending[types.RequestID(m.RequestID)]; r != nil {
			log.Debug("会合认证失败", "requestID", r.id, "code", m.Code)
			b.resolveLocked(r, Outcome[C]{Err: fmt.Errorf("%w: auth error %d", types.ErrConnectionAttemptFailed, m.Code)})
		}
	default:
		return fmt.Errorf("%w: broker tag %d", wire.ErrUnknownTag, tag)
	}
	return nil
}

func (b *Broker[C]) onRzvData(m wire.RzvData) {
	r := b.pending[types.RequestID(m.RequestID)]
	if r == nil {
		log.Debug("忽略过期的会合数据", "requestID", m.RequestID)
		return
	}
	if r.connector != nil {
		log.Debug("忽略重复的会合数据", "requestID", r.id)
		return
	}

	r.rzvServerID = m.RzvServerID
	t := Target{
		RequestID:    r.id,
		ConnectionID: types.ConnectionID(m.ConnectionID),
		RzvServerID:  m.RzvServerID,
		Address:      m.Address,
		Options:      r.opts,
	}
	r.connector = b.dialer.NewConnector(t,
		func(challenge []byte) error { return b.relayChallenge(r, challenge) },
		func(o Outcome[C]) { b.onOutcome(r, o) })

	log.Debug("收到会合数据，开始连接",
		"requestID", r.id,
		"connID", m.ConnectionID,
		"rzv", m.Address)
	r.connector.Start()
}

// relayChallenge 由连接器调用，把挑战经会话发给协调服务器
func (b *Broker[C]) relayChallenge(r *request[C], challenge []byte) error {
	b.sctx.Lock()
	defer b.sctx.Unlock()

	if b.pending[r.id] != r {
		return types.ErrConnectionAttemptFailed
	}
	if b.ch == nil || b.ch.Closed() {
		return types.ErrClientOffline
	}
	msg := wire.Auth{RequestID: uint32(r.id), RzvServerID: r.rzvServerID, Challenge: challenge}
	if err := b.ch.SendMessage(b.component, wire.TagAuth, msg.Payload()); err != nil {
		return fmt.Errorf("%w: %v", types.ErrClientOffline, err)
	}
	b.sctx.Metrics.Message(b.component.String(), "out")
	return nil
}

func (b *Broker[C]) onOutcome(r *request[C], o Outcome[C]) {
	b.sctx.Lock()
	defer b.sctx.Unlock()
	b.resolveLocked(r, o)
}

func (b *Broker[C]) onTimeout(r *request[C]) {
	b.sctx.Lock()
	defer b.sctx.Unlock()
	if b.pending[r.id] != r {
		return
	}
	log.Debug("连接请求超时", "transport", b.cfg.Transport, "requestID", r.id)
	b.resolveLocked(r, Outcome[C]{Err: types.ErrTimeoutExpired})
}

// ============================================================================
//                              解决
// ============================================================================

// resolveLocked 认领并解决请求；认领失败时只释放连接
func (b *Broker[C]) resolveLocked(r *request[C], o Outcome[C]) {
	if !r.claimed.CompareAndSwap(false, true) {
		closeConn(o.Conn)
		return
	}

	if b.pending[r.id] == r {
		delete(b.pending, r.id)
		b.sctx.Metrics.PendingAdd(b.cfg.Transport, -1)
	}
	r.timeout.Cancel()
	if o.Err != nil && r.connector != nil {
		r.connector.Abort()
	}

	mode := "none"
	if o.Err == nil {
		mode = o.Mode.String()
	}
	b.sctx.Metrics.PeerConnect(b.cfg.Transport, mode, outcomeLabel(o.Err))
	if o.Err == nil {
		log.Info("对等连接建立",
			"transport", b.cfg.Transport,
			"requestID", r.id,
			"mode", o.Mode,
			"elapsed", b.sctx.Clock().Since(r.startedAt))
	}

	res := Result[C]{Conn: o.Conn, Mode: o.Mode, Attachment: r.attachment, Err: o.Err}
	cb := r.onResult
	b.sctx.Workers.Go(func() { cb(res) })
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, types.ErrTimeoutExpired):
		return metrics.OutcomeTimeout
	case errors.Is(err, types.ErrServiceOffline), errors.Is(err, types.ErrClientOffline):
		return metrics.OutcomeAborted
	default:
		return metrics.OutcomeFailed
	}
}

func (b *Broker[C]) newRequestIDLocked() types.RequestID {
	for {
		id := types.RequestID(b.rand())
		if id == 0 {
			continue
		}
		if _, ok := b.pending[id]; !ok {
			return id
		}
	}
}

// closeConn 关闭可能为零值的连接
func closeConn[C io.Closer](c C) {
	v := reflect.ValueOf(c)
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return
		}
	}
	_ = c.Close()
}
