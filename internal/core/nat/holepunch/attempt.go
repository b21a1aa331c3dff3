package holepunch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-vport/internal/core/relay"
	"github.com/dep2p/go-vport/internal/core/rendezvous"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/internal/util/logger"
	"github.com/dep2p/go-vport/pkg/types"
)

var log = logger.Logger("holepunch")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNoRendezvousAddress 会合服务器地址无法解析
	ErrNoRendezvousAddress = errors.New("holepunch: no rendezvous address")

	// ErrTokenMismatch 令牌不符
	ErrTokenMismatch = errors.New("holepunch: token mismatch")

	// ErrTraversalFailed 直连期限内无路径成功
	ErrTraversalFailed = errors.New("holepunch: traversal failed")

	// ErrAborted 连接尝试已中止
	ErrAborted = errors.New("holepunch: aborted")
)

// ============================================================================
//                              attempt - 一次连接尝试的公共部分
// ============================================================================

// attempt 连接器共用的状态与资源
type attempt[C io.Closer] struct {
	cfg    Config
	target rendezvous.Target
	auth   rendezvous.AuthFunc
	done   func(rendezvous.Outcome[C])
	relay  *relay.Client

	ctx    context.Context
	cancel context.CancelFunc
	hashes chan []byte

	mu      sync.Mutex
	state   State
	closers []io.Closer
}

func newAttempt[C io.Closer](cfg Config, t rendezvous.Target, auth rendezvous.AuthFunc, done func(rendezvous.Outcome[C]), initial State) *attempt[C] {
	cfg = cfg.withDefaults()
	if t.Options.BufferSize > 0 {
		cfg.BufferSize = t.Options.BufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &attempt[C]{
		cfg:    cfg,
		target: t,
		auth:   auth,
		done:   done,
		relay:  relay.NewClient(&net.Dialer{Control: socketControl(cfg.BufferSize, false)}, cfg.Clock),
		ctx:    ctx,
		cancel: cancel,
		hashes: make(chan []byte, 1),
		state:  initial,
	}
}

// bufferSize 套接字缓冲区提示，单次选项优先于配置
func (a *attempt[C]) bufferSize() int { return a.cfg.BufferSize }

// State 返回当前状态
func (a *attempt[C]) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// setState 切换状态；已完成时返回 false
func (a *attempt[C]) setState(s State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateCompleted {
		return false
	}
	log.Debug("连接器状态变化",
		"transport", a.cfg.Transport,
		"connID", a.target.ConnectionID,
		"from", a.state,
		"to", s)
	a.state = s
	return true
}

// own 登记由本次尝试拥有的资源；已完成时立即关闭并返回 false
func (a *attempt[C]) own(c io.Closer) bool {
	a.mu.Lock()
	if a.state != StateCompleted {
		a.closers = append(a.closers, c)
		a.mu.Unlock()
		return true
	}
	a.mu.Unlock()
	_ = c.Close()
	return false
}

// DeliverAuthHash 交付协调服务器返回的认证结果
func (a *attempt[C]) DeliverAuthHash(hash []byte) {
	select {
	case a.hashes <- hash:
	default:
		log.Debug("忽略重复的认证结果", "connID", a.target.ConnectionID)
	}
}

// Abort 中止尝试，不报告结果
func (a *attempt[C]) Abort() {
	a.mu.Lock()
	if a.state == StateCompleted {
		a.mu.Unlock()
		return
	}
	a.state = StateCompleted
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	a.cancel()
	if err := closeAll(closers, nil); err != nil {
		log.Debug("中止时关闭套接字出错", "connID", a.target.ConnectionID, "err", err)
	}
	log.Debug("连接尝试已中止", "transport", a.cfg.Transport, "connID", a.target.ConnectionID)
}

// complete 进入 COMPLETED 并报告结果；只有第一次调用生效
//
// keep 是结果中仍需保留的已登记资源，其余资源全部关闭。
func (a *attempt[C]) complete(o rendezvous.Outcome[C], keep io.Closer) bool {
	a.mu.Lock()
	if a.state == StateCompleted {
		a.mu.Unlock()
		if o.Err == nil {
			_ = o.Conn.Close()
		}
		return false
	}
	a.state = StateCompleted
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	a.cancel()
	if err := closeAll(closers, keep); err != nil {
		log.Debug("释放套接字出错", "connID", a.target.ConnectionID, "err", err)
	}
	if o.Err != nil {
		log.Debug("连接尝试失败", "transport", a.cfg.Transport, "connID", a.target.ConnectionID, "err", o.Err)
		if !errors.Is(o.Err, types.ErrConnectionAttemptFailed) {
			o.Err = fmt.Errorf("%w: %v", types.ErrConnectionAttemptFailed, o.Err)
		}
	} else {
		log.Debug("连接尝试成功", "transport", a.cfg.Transport, "connID", a.target.ConnectionID, "mode", o.Mode)
	}
	a.done(o)
	return true
}

func closeAll(closers []io.Closer, keep io.Closer) error {
	var err error
	for _, c := range closers {
		if keep != nil && c == keep {
			continue
		}
		err = multierr.Append(err, c.Close())
	}
	return err
}

// ============================================================================
//                              公共步骤
// ============================================================================

// resolveRendezvous 解析会合服务器地址，未带端口时使用配置端口
func (a *attempt[C]) resolveRendezvous(ctx context.Context) (netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(a.target.Address)
	port := a.cfg.Port
	if err != nil {
		host = a.target.Address
	} else {
		p, perr := strconv.ParseUint(portStr, 10, 16)
		if perr != nil {
			return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrNoRendezvousAddress, a.target.Address)
		}
		port = int(p)
	}
	if host == "" || port <= 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrNoRendezvousAddress, a.target.Address)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(ip.Unmap(), uint16(port)), nil
	}
	if a.cfg.Resolver == nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrNoRendezvousAddress, host)
	}
	addrs, err := a.cfg.Resolver.Resolve(ctx, host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrNoRendezvousAddress, err)
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrNoRendezvousAddress, host)
	}
	return netip.AddrPortFrom(addrs[0].Unmap(), uint16(port)), nil
}

// authenticate 完成控制通道上的挑战应答
func (a *attempt[C]) authenticate(ctx context.Context, ctl *control) error {
	hello := wire.ControlHello{ConnectionID: uint64(a.target.ConnectionID), Role: wire.RoleClient}
	if err := ctl.send(wire.TagHello, hello.Payload()); err != nil {
		return err
	}
	msg, err := ctl.expect(ctx, wire.TagChallenge)
	if err != nil {
		return err
	}
	challenge, err := wire.ParseAuthData(msg.Payload)
	if err != nil {
		return err
	}
	if err := a.auth(challenge.Data); err != nil {
		return fmt.Errorf("holepunch: relay challenge: %w", err)
	}

	var hash []byte
	select {
	case hash = <-a.hashes:
	case <-ctl.ch.Done():
		return fmt.Errorf("%w: %v", ErrControlClosed, ctl.ch.Err())
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := ctl.send(wire.TagAuthResponse, wire.AuthData{Data: hash}.Payload()); err != nil {
		return err
	}
	_, err = ctl.expect(ctx, wire.TagAuthOK)
	return err
}

// requestProxy 发送 PROXY_REQUEST（或在直连失败后 P2P_FAILED）并等待中继端口
func (a *attempt[C]) requestProxy(ctx context.Context, ctl *control, tag wire.Tag, rzv netip.AddrPort) (netip.AddrPort, error) {
	if !a.setState(StateProxyMode) {
		return netip.AddrPort{}, ErrAborted
	}
	if err := ctl.send(tag, nil); err != nil {
		return netip.AddrPort{}, err
	}
	msg, err := ctl.expect(ctx, wire.TagProxyData)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return relayAddr(msg.Payload, rzv)
}

// relayAddr 中继地址：会合服务器的 IP 加上服务器给出的端口
func relayAddr(payload []byte, rzv netip.AddrPort) (netip.AddrPort, error) {
	pd, err := wire.ParseProxyData(payload)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(rzv.Addr(), pd.RelayPort), nil
}

// newToken 生成 16 字节令牌
func newToken() []byte {
	id := uuid.New()
	return id[:]
}
