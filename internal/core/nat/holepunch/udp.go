package holepunch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-vport/internal/core/rendezvous"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/pkg/types"
)

// errAttachExhausted 挂接包发完仍未收到直连参数
var errAttachExhausted = errors.New("holepunch: no p2p data after attach")

// ============================================================================
//                              DatagramConn
// ============================================================================

// DatagramConn 绑定到单个远端的 UDP 连接
//
// Read 只返回来自远端的数据报，并丢弃残留的打洞包与代理头回显。
type DatagramConn struct {
	*net.UDPConn
	remote netip.AddrPort
	connID types.ConnectionID
}

var _ net.Conn = (*DatagramConn)(nil)

// Remote 返回远端地址（直连时为观察到的对端地址，代理时为中继地址）
func (c *DatagramConn) Remote() netip.AddrPort { return c.remote }

// RemoteAddr 实现 net.Conn
func (c *DatagramConn) RemoteAddr() net.Addr {
	return net.UDPAddrFromAddrPort(c.remote)
}

// Read 读取一个来自远端的数据报
func (c *DatagramConn) Read(b []byte) (int, error) {
	for {
		n, from, err := c.UDPConn.ReadFromUDPAddrPort(b)
		if err != nil {
			return n, err
		}
		if unmap(from) != c.remote {
			continue
		}
		if _, ok := wire.ParsePunch(b[:n]); ok {
			continue
		}
		if wire.IsProxyHeader(b[:n], uint64(c.connID)) {
			continue
		}
		return n, nil
	}
}

// Write 向远端发送一个数据报
func (c *DatagramConn) Write(b []byte) (int, error) {
	return c.UDPConn.WriteToUDPAddrPort(b, c.remote)
}

// ============================================================================
//                              UDPConnector
// ============================================================================

// UDPConnector UDP 对等连接器
type UDPConnector struct {
	*attempt[*DatagramConn]
}

var _ rendezvous.Connector = (*UDPConnector)(nil)

// NewUDPConnector 创建 UDP 连接器
func NewUDPConnector(cfg Config, t rendezvous.Target, auth rendezvous.AuthFunc, done func(rendezvous.Outcome[*DatagramConn])) *UDPConnector {
	cfg.Transport = types.TransportUDP
	return &UDPConnector{attempt: newAttempt(cfg, t, auth, done, StateInitial)}
}

// Start 异步开始连接
func (c *UDPConnector) Start() {
	go c.run()
}

func (c *UDPConnector) run() {
	conn, mode, err := c.connect(c.ctx)
	var keep io.Closer
	if err == nil {
		keep = conn.UDPConn
	}
	c.complete(rendezvous.Outcome[*DatagramConn]{Conn: conn, Mode: mode, Err: err}, keep)
}

func (c *UDPConnector) connect(ctx context.Context) (*DatagramConn, types.ConnectMode, error) {
	rzv, err := c.resolveRendezvous(ctx)
	if err != nil {
		return nil, 0, err
	}
	fam := familyOf(rzv.Addr())

	dialer := &net.Dialer{Control: socketControl(c.bufferSize(), false)}
	ctl, err := openControl(ctx, dialer, fam.tcp, rzv, c.cfg.Clock)
	if err != nil {
		return nil, 0, err
	}
	if !c.own(ctl) {
		return nil, 0, ErrAborted
	}

	lc := net.ListenConfig{Control: socketControl(c.bufferSize(), false)}
	pc, err := lc.ListenPacket(ctx, fam.udp, netip.AddrPortFrom(fam.any, 0).String())
	if err != nil {
		return nil, 0, fmt.Errorf("holepunch: open udp socket: %w", err)
	}
	udp := pc.(*net.UDPConn)
	if !c.own(udp) {
		return nil, 0, ErrAborted
	}

	if err := c.authenticate(ctx, ctl); err != nil {
		return nil, 0, err
	}
	if !c.cfg.EnableP2P || c.target.Options.ProxyOnly {
		relay, err := c.requestProxy(ctx, ctl, wire.TagProxyRequest, rzv)
		if err != nil {
			return nil, 0, err
		}
		return c.proxy(ctx, udp, relay)
	}

	identity := newToken()
	private := netip.AddrPortFrom(ctl.localAddr().Addr(), localPort(udp))
	req := wire.P2PRequest{LocalToken: identity, Private: private}
	if err := ctl.send(wire.TagP2PRequest, req.Payload()); err != nil {
		return nil, 0, err
	}
	if !c.setState(StateP2PMode) {
		return nil, 0, ErrAborted
	}

	data, relay, err := c.attach(ctx, ctl, udp, rzv, identity)
	switch {
	case err == nil && relay.IsValid():
		// 服务器直接给出中继端口
		if !c.setState(StateProxyMode) {
			return nil, 0, ErrAborted
		}
		return c.proxy(ctx, udp, relay)
	case err == nil:
		if !bytes.Equal(data.LocalToken, identity) {
			return nil, 0, ErrTokenMismatch
		}
		if !c.setState(StateP2PHandshake) {
			return nil, 0, ErrAborted
		}
		remote, perr := c.punch(ctx, ctl, udp, fam, identity, data)
		if perr == nil {
			if err := ctl.notify(ctx, wire.TagP2POK, nil); err != nil {
				log.Debug("发送 P2P_OK 失败", "connID", c.target.ConnectionID, "err", err)
			}
			return &DatagramConn{UDPConn: udp, remote: remote, connID: c.target.ConnectionID}, types.ModeP2P, nil
		}
		if !errors.Is(perr, ErrTraversalFailed) {
			return nil, 0, perr
		}
		err = perr
	case !errors.Is(err, errAttachExhausted):
		return nil, 0, err
	}
	if ctx.Err() != nil {
		return nil, 0, ctx.Err()
	}

	log.Debug("UDP 直连失败，回退代理", "connID", c.target.ConnectionID, "err", err)
	relay, err = c.requestProxy(ctx, ctl, wire.TagP2PFailed, rzv)
	if err != nil {
		return nil, 0, err
	}
	return c.proxy(ctx, udp, relay)
}

func (c *UDPConnector) proxy(ctx context.Context, udp *net.UDPConn, relay netip.AddrPort) (*DatagramConn, types.ConnectMode, error) {
	pctx, cancel := c.cfg.Clock.WithTimeout(ctx, c.cfg.ProxyTimeout)
	defer cancel()
	if err := c.relay.HandshakeUDP(pctx, udp, relay, c.target.ConnectionID); err != nil {
		return nil, 0, err
	}
	return &DatagramConn{UDPConn: udp, remote: relay, connID: c.target.ConnectionID}, types.ModeProxy, nil
}

// ============================================================================
//                              挂接
// ============================================================================

// attach 向会合服务器发送挂接包，直到收到 P2P_DATA 或 PROXY_DATA
//
// 第 n 个挂接包之后等待 200ms·(n+1)，8 个之后再等待 500ms。
func (c *UDPConnector) attach(ctx context.Context, ctl *control, udp *net.UDPConn, rzv netip.AddrPort, identity []byte) (wire.P2PData, netip.AddrPort, error) {
	pkt := wire.Attach(uint64(c.target.ConnectionID), [wire.TokenSize]byte(identity))
	for n := 0; n <= AttachAttempts; n++ {
		wait := AttachGrace
		if n < AttachAttempts {
			if _, err := udp.WriteToUDPAddrPort(pkt, rzv); err != nil {
				log.Debug("发送挂接包失败", "rzv", rzv, "err", err)
			}
			wait = AttachBasePeriod * time.Duration(n+1)
		}

		msg, ok, err := c.nextWithin(ctx, ctl, wait)
		if err != nil {
			return wire.P2PData{}, netip.AddrPort{}, err
		}
		if !ok {
			continue
		}
		switch msg.Tag {
		case wire.TagP2PData:
			data, err := wire.ParseP2PData(msg.Payload)
			return data, netip.AddrPort{}, err
		case wire.TagProxyData:
			relay, err := relayAddr(msg.Payload, rzv)
			return wire.P2PData{}, relay, err
		}
	}
	return wire.P2PData{}, netip.AddrPort{}, errAttachExhausted
}

// nextWithin 在 d 内等待 P2P_DATA / PROXY_DATA；超时返回 ok=false
func (c *UDPConnector) nextWithin(ctx context.Context, ctl *control, d time.Duration) (wire.Message, bool, error) {
	wctx, cancel := c.cfg.Clock.WithTimeout(ctx, d)
	defer cancel()
	msg, err := ctl.expect(wctx, wire.TagP2PData, wire.TagProxyData)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return wire.Message{}, false, nil
		}
		return wire.Message{}, false, err
	}
	return msg, true, nil
}

// ============================================================================
//                              打洞
// ============================================================================

// punch 向候选地址发送三轮打洞包，双向确认后返回观察到的对端地址
func (c *UDPConnector) punch(ctx context.Context, ctl *control, udp *net.UDPConn, fam family, identity []byte, data wire.P2PData) (netip.AddrPort, error) {
	cands := fam.candidates(data.Public, data.Private)
	if len(cands) == 0 {
		return netip.AddrPort{}, ErrTraversalFailed
	}

	ctx, cancel := c.cfg.Clock.WithTimeout(ctx, c.cfg.TraversalTimeout)
	defer cancel()

	received := make(chan netip.AddrPort, 1)
	confirmed := make(chan struct{}, 1)
	ctlErr := make(chan error, 1)

	g, gctx := errgroup.WithContext(ctx)
	context.AfterFunc(gctx, func() { _ = udp.SetReadDeadline(time.Unix(1, 0)) })

	g.Go(func() error {
		buf := make([]byte, 64)
		for {
			n, from, err := udp.ReadFromUDPAddrPort(buf)
			if err != nil {
				return nil
			}
			tok, ok := wire.ParsePunch(buf[:n])
			if !ok || !bytes.Equal(tok, data.RemoteToken) {
				continue
			}
			select {
			case received <- unmap(from):
			default:
			}
		}
	})
	g.Go(func() error {
		pkt := wire.Punch(identity)
		for i := 0; i < PunchBursts; i++ {
			if i > 0 {
				select {
				case <-c.cfg.Clock.After(PunchInterval):
				case <-gctx.Done():
					return nil
				}
			}
			for _, cand := range cands {
				if _, err := udp.WriteToUDPAddrPort(pkt, cand); err != nil {
					log.Debug("发送打洞包失败", "addr", cand, "err", err)
				}
			}
		}
		return nil
	})
	g.Go(func() error {
		for {
			msg, err := ctl.next(gctx)
			if err != nil {
				if gctx.Err() == nil {
					ctlErr <- err
				}
				return nil
			}
			if msg.Tag != wire.TagPeerPunched {
				ctlErr <- fmt.Errorf("%w: tag %d", ErrUnexpectedControl, msg.Tag)
				return nil
			}
			select {
			case confirmed <- struct{}{}:
			default:
			}
		}
	})

	var (
		observed netip.AddrPort
		acked    bool
		err      error
	)
	for err == nil && !(observed.IsValid() && acked) {
		select {
		case from := <-received:
			if observed.IsValid() {
				continue
			}
			observed = from
			log.Debug("收到对端打洞包", "connID", c.target.ConnectionID, "from", from)
			if serr := ctl.send(wire.TagPunched, wire.Punched{Observed: from}.Payload()); serr != nil {
				err = serr
			}
		case <-confirmed:
			acked = true
		case err = <-ctlErr:
		case <-ctx.Done():
			err = ErrTraversalFailed
		}
	}

	cancel()
	_ = g.Wait()
	// 读协程因截止时间退出后恢复套接字
	_ = udp.SetReadDeadline(time.Time{})

	if err != nil {
		return netip.AddrPort{}, err
	}
	return observed, nil
}

func localPort(udp *net.UDPConn) uint16 {
	if ua, ok := udp.LocalAddr().(*net.UDPAddr); ok {
		return uint16(ua.Port)
	}
	return 0
}
