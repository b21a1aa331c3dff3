package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/internal/util/logger"
)

var log = logger.Logger("channel")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrClosed 通道已关闭
	ErrClosed = errors.New("channel closed")

	// ErrSendQueueFull 发送队列已满
	ErrSendQueueFull = errors.New("channel send queue full")

	// ErrUnknownComponent 未登记的组件
	ErrUnknownComponent = errors.New("channel: message for unregistered component")

	// ErrStarted 通道已进入异步模式
	ErrStarted = errors.New("channel already started")
)

// Handler 组件消息处理器
//
// 在通道 Locker 保护下调用；返回错误会关闭通道。
type Handler func(tag wire.Tag, payload []byte) error

// Config 通道参数
type Config struct {
	// MaxMessage 入站帧上限，可由 SetMaxMessage 调整
	MaxMessage int

	// SendQueue 发送队列长度
	SendQueue int

	// Locker 分发消息时持有的锁，为 nil 时使用通道私有锁
	Locker sync.Locker

	// Clock 时间源
	Clock clock.Clock

	// OnError 通道因错误关闭时异步调用
	OnError func(ch *Channel, err error)
}

// outFrame 发送队列元素；flushed 非 nil 时为 Flush 标记
type outFrame struct {
	body    []byte
	flushed chan struct{}
}

// Channel 分帧消息通道
type Channel struct {
	conn    net.Conn
	clock   clock.Clock
	locker  sync.Locker
	onError func(*Channel, error)

	hmu      sync.RWMutex
	handlers [256]Handler

	maxMessage atomic.Int64
	lastInput  atomic.Int64
	lastOutput atomic.Int64
	inputs     atomic.Uint64

	sendq   chan outFrame
	started atomic.Bool
	closed  atomic.Bool
	once    sync.Once
	done    chan struct{}

	errMu sync.Mutex
	err   error
}

// New 创建通道；此时尚未启动读写协程
func New(conn net.Conn, cfg Config) *Channel {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Locker == nil {
		cfg.Locker = &sync.Mutex{}
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 256
	}
	ch := &Channel{
		conn:    conn,
		clock:   cfg.Clock,
		locker:  cfg.Locker,
		onError: cfg.OnError,
		sendq:   make(chan outFrame, cfg.SendQueue),
		done:    make(chan struct{}),
	}
	ch.maxMessage.Store(int64(cfg.MaxMessage))
	now := ch.clock.Now().UnixNano()
	ch.lastInput.Store(now)
	ch.lastOutput.Store(now)
	return ch
}

// Conn 返回底层连接
func (ch *Channel) Conn() net.Conn { return ch.conn }

// RemoteAddr 返回对端地址
func (ch *Channel) RemoteAddr() net.Addr { return ch.conn.RemoteAddr() }

// Register 登记组件处理器，h 为 nil 时等同 Unregister
func (ch *Channel) Register(c wire.Component, h Handler) {
	ch.hmu.Lock()
	ch.handlers[c] = h
	ch.hmu.Unlock()
}

// Unregister 移除组件处理器
func (ch *Channel) Unregister(c wire.Component) {
	ch.Register(c, nil)
}

func (ch *Channel) handler(c wire.Component) Handler {
	ch.hmu.RLock()
	defer ch.hmu.RUnlock()
	return ch.handlers[c]
}

// SetMaxMessage 调整入站帧上限
func (ch *Channel) SetMaxMessage(n int) {
	ch.maxMessage.Store(int64(n))
}

// MaxMessage 返回入站帧上限
func (ch *Channel) MaxMessage() int {
	return int(ch.maxMessage.Load())
}

// LastInput 最近一次收到消息的时间
func (ch *Channel) LastInput() time.Time {
	return time.Unix(0, ch.lastInput.Load())
}

// LastOutput 最近一次发出消息的时间
func (ch *Channel) LastOutput() time.Time {
	return time.Unix(0, ch.lastOutput.Load())
}

// InputCount 已收到的消息数
func (ch *Channel) InputCount() uint64 {
	return ch.inputs.Load()
}

// Closed 通道是否已关闭
func (ch *Channel) Closed() bool {
	return ch.closed.Load()
}

// Done 通道关闭时关闭
func (ch *Channel) Done() <-chan struct{} {
	return ch.done
}

// Err 返回导致关闭的错误；显式关闭时为 ErrClosed
func (ch *Channel) Err() error {
	ch.errMu.Lock()
	defer ch.errMu.Unlock()
	return ch.err
}

// ============================================================================
//                              同步模式
// ============================================================================

// WriteSync 直接写出一条消息，仅在 Start 之前使用
func (ch *Channel) WriteSync(body []byte, deadline time.Time) error {
	if ch.started.Load() {
		return ErrStarted
	}
	if ch.closed.Load() {
		return ErrClosed
	}
	if err := ch.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	defer ch.conn.SetWriteDeadline(time.Time{})
	if err := wire.WriteFrame(ch.conn, body); err != nil {
		return err
	}
	ch.lastOutput.Store(ch.clock.Now().UnixNano())
	return nil
}

// ReadSync 直接读取一条消息，仅在 Start 之前使用
func (ch *Channel) ReadSync(deadline time.Time) (wire.Message, error) {
	if ch.started.Load() {
		return wire.Message{}, ErrStarted
	}
	if ch.closed.Load() {
		return wire.Message{}, ErrClosed
	}
	if err := ch.conn.SetReadDeadline(deadline); err != nil {
		return wire.Message{}, err
	}
	defer ch.conn.SetReadDeadline(time.Time{})
	body, err := wire.ReadFrame(ch.conn, ch.MaxMessage())
	if err != nil {
		return wire.Message{}, err
	}
	ch.lastInput.Store(ch.clock.Now().UnixNano())
	ch.inputs.Add(1)
	return wire.ParseBody(body)
}

// ============================================================================
//                              异步模式
// ============================================================================

// Start 启动读写协程
func (ch *Channel) Start() {
	if !ch.started.CompareAndSwap(false, true) {
		return
	}
	go ch.readLoop()
	go ch.writeLoop()
}

// Send 将消息放入发送队列，不阻塞
func (ch *Channel) Send(body []byte) error {
	if ch.closed.Load() {
		return ErrClosed
	}
	select {
	case ch.sendq <- outFrame{body: body}:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// SendMessage 组装并发送消息
func (ch *Channel) SendMessage(c wire.Component, t wire.Tag, payload []byte) error {
	return ch.Send(wire.Body(c, t, payload))
}

// Flush 等待此前排队的消息全部写出
func (ch *Channel) Flush(ctx context.Context) error {
	if ch.closed.Load() {
		return ErrClosed
	}
	flushed := make(chan struct{})
	select {
	case ch.sendq <- outFrame{flushed: flushed}:
	default:
		return ErrSendQueueFull
	}
	select {
	case <-flushed:
		return nil
	case <-ch.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 关闭通道，不触发 OnError
func (ch *Channel) Close() error {
	var err error
	ch.once.Do(func() {
		err = ch.shutdown(ErrClosed)
	})
	return err
}

// Fail 以错误关闭通道并异步通知 OnError
func (ch *Channel) Fail(err error) {
	ch.once.Do(func() {
		log.Debug("通道因错误关闭", "remote", ch.conn.RemoteAddr(), "err", err)
		_ = ch.shutdown(err)
		if ch.onError != nil {
			go ch.onError(ch, err)
		}
	})
}

func (ch *Channel) shutdown(cause error) error {
	ch.errMu.Lock()
	ch.err = cause
	ch.errMu.Unlock()
	ch.closed.Store(true)
	close(ch.done)
	return ch.conn.Close()
}

func (ch *Channel) readLoop() {
	for {
		body, err := wire.ReadFrame(ch.conn, ch.MaxMessage())
		if err != nil {
			if !ch.closed.Load() {
				ch.Fail(err)
			}
			return
		}
		ch.lastInput.Store(ch.clock.Now().UnixNano())
		ch.inputs.Add(1)

		msg, err := wire.ParseBody(body)
		if err != nil {
			ch.Fail(err)
			return
		}
		if err := ch.dispatch(msg); err != nil {
			ch.Fail(err)
			return
		}
	}
}

func (ch *Channel) dispatch(msg wire.Message) error {
	ch.locker.Lock()
	defer ch.locker.Unlock()
	if ch.closed.Load() {
		return nil
	}
	h := ch.handler(msg.Component)
	if h == nil {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, msg.Component)
	}
	return h(msg.Tag, msg.Payload)
}

func (ch *Channel) writeLoop() {
	for {
		select {
		case f := <-ch.sendq:
			if f.flushed != nil {
				close(f.flushed)
				continue
			}
			if err := wire.WriteFrame(ch.conn, f.body); err != nil {
				ch.Fail(err)
				return
			}
			ch.lastOutput.Store(ch.clock.Now().UnixNano())
		case <-ch.done:
			return
		}
	}
}
