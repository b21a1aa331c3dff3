package holepunch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-vport/internal/core/rendezvous"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/pkg/types"
)

// ============================================================================
//                              TCPConnector
// ============================================================================

// TCPConnector TCP 对等连接器
type TCPConnector struct {
	*attempt[net.Conn]
}

var _ rendezvous.Connector = (*TCPConnector)(nil)

// NewTCPConnector 创建 TCP 连接器
func NewTCPConnector(cfg Config, t rendezvous.Target, auth rendezvous.AuthFunc, done func(rendezvous.Outcome[net.Conn])) *TCPConnector {
	cfg.Transport = types.TransportTCP
	return &TCPConnector{attempt: newAttempt(cfg, t, auth, done, StateP2PMode)}
}

// Start 异步开始连接
func (c *TCPConnector) Start() {
	go c.run()
}

func (c *TCPConnector) run() {
	conn, mode, err := c.connect(c.ctx)
	c.complete(rendezvous.Outcome[net.Conn]{Conn: conn, Mode: mode, Err: err}, nil)
}

func (c *TCPConnector) connect(ctx context.Context) (net.Conn, types.ConnectMode, error) {
	rzv, err := c.resolveRendezvous(ctx)
	if err != nil {
		return nil, 0, err
	}
	fam := familyOf(rzv.Addr())
	p2p := c.cfg.EnableP2P && !c.target.Options.ProxyOnly

	dialer := &net.Dialer{Control: socketControl(c.bufferSize(), false)}
	ctl, err := openControl(ctx, dialer, fam.tcp, rzv, c.cfg.Clock)
	if err != nil {
		return nil, 0, err
	}
	if !c.own(ctl) {
		return nil, 0, ErrAborted
	}
	local := ctl.localAddr()

	var ln *net.TCPListener
	if p2p {
		ln, err = c.listen(ctx, fam, local)
		switch {
		case err == nil:
			if !c.own(ln) {
				return nil, 0, ErrAborted
			}
		case c.cfg.Strict:
			log.Debug("直连监听失败，仅请求代理", "local", local, "err", err)
			p2p = false
		default:
			log.Debug("直连监听失败，减少直连策略", "local", local, "err", err)
		}
	}

	if err := c.authenticate(ctx, ctl); err != nil {
		return nil, 0, err
	}
	if !p2p {
		relay, err := c.requestProxy(ctx, ctl, wire.TagProxyRequest, rzv)
		if err != nil {
			return nil, 0, err
		}
		return c.dialProxy(ctx, relay)
	}

	token := newToken()
	req := wire.P2PRequest{LocalToken: token, Private: local}
	if err := ctl.send(wire.TagP2PRequest, req.Payload()); err != nil {
		return nil, 0, err
	}
	msg, err := ctl.expect(ctx, wire.TagP2PData, wire.TagProxyData)
	if err != nil {
		return nil, 0, err
	}
	if msg.Tag == wire.TagProxyData {
		// 对端不支持直连，服务器直接给出中继端口
		if !c.setState(StateProxyMode) {
			return nil, 0, ErrAborted
		}
		relay, err := relayAddr(msg.Payload, rzv)
		if err != nil {
			return nil, 0, err
		}
		return c.dialProxy(ctx, relay)
	}

	data, err := wire.ParseP2PData(msg.Payload)
	if err != nil {
		return nil, 0, err
	}
	if !bytes.Equal(data.LocalToken, token) {
		return nil, 0, ErrTokenMismatch
	}
	if !c.setState(StateP2PHandshake) {
		return nil, 0, ErrAborted
	}

	conn, err := c.race(ctx, fam, ln, local, token, data)
	if err == nil {
		if err := ctl.notify(ctx, wire.TagP2POK, nil); err != nil {
			log.Debug("发送 P2P_OK 失败", "connID", c.target.ConnectionID, "err", err)
		}
		return conn, types.ModeP2P, nil
	}
	if ctx.Err() != nil {
		return nil, 0, ctx.Err()
	}

	log.Debug("TCP 直连失败，回退代理", "connID", c.target.ConnectionID, "err", err)
	relay, err := c.requestProxy(ctx, ctl, wire.TagP2PFailed, rzv)
	if err != nil {
		return nil, 0, err
	}
	return c.dialProxy(ctx, relay)
}

// listen 在控制连接的本地端口上监听
func (c *TCPConnector) listen(ctx context.Context, fam family, local netip.AddrPort) (*net.TCPListener, error) {
	if !local.IsValid() {
		return nil, fmt.Errorf("holepunch: no local address")
	}
	lc := net.ListenConfig{Control: socketControl(c.bufferSize(), true)}
	ln, err := lc.Listen(ctx, fam.tcp, local.String())
	if err != nil {
		return nil, err
	}
	return ln.(*net.TCPListener), nil
}

func (c *TCPConnector) dialProxy(ctx context.Context, relay netip.AddrPort) (net.Conn, types.ConnectMode, error) {
	if !c.setState(StateProxyHandshake) {
		return nil, 0, ErrAborted
	}
	pctx, cancel := c.cfg.Clock.WithTimeout(ctx, c.cfg.ProxyTimeout)
	defer cancel()
	conn, err := c.relay.DialTCP(pctx, relay, c.target.ConnectionID)
	if err != nil {
		return nil, 0, err
	}
	return conn, types.ModeProxy, nil
}

// ============================================================================
//                              直连竞速
// ============================================================================

// race 在期限内并行尝试直连，返回第一个通过令牌校验的连接
func (c *TCPConnector) race(ctx context.Context, fam family, ln *net.TCPListener, local netip.AddrPort, token []byte, data wire.P2PData) (net.Conn, error) {
	ctx, cancel := c.cfg.Clock.WithTimeout(ctx, c.cfg.TraversalTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		winner net.Conn
	)
	claim := func(conn net.Conn) bool {
		mu.Lock()
		defer mu.Unlock()
		if winner != nil || ctx.Err() != nil {
			return false
		}
		winner = conn
		cancel()
		return true
	}
	offer := func(conn net.Conn, path string) {
		if err := exchangeTokens(ctx, conn, token, data.RemoteToken); err != nil {
			log.Debug("令牌校验失败", "path", path, "remote", conn.RemoteAddr(), "err", err)
			conn.Close()
			return
		}
		if !claim(conn) {
			conn.Close()
			return
		}
		log.Debug("TCP 直连成功", "path", path, "remote", conn.RemoteAddr())
	}

	g, gctx := errgroup.WithContext(ctx)
	var laddr *net.TCPAddr
	if ln != nil {
		laddr = net.TCPAddrFromAddrPort(local)
	}
	for i, cand := range fam.candidates(data.Public, data.Private) {
		path := "public"
		if i > 0 {
			path = "private"
		}
		g.Go(func() error {
			c.dialLoop(gctx, fam, laddr, cand, path, offer)
			return nil
		})
	}
	if ln != nil {
		g.Go(func() error {
			c.acceptLoop(gctx, ln, offer)
			return nil
		})
	}
	_ = g.Wait()

	mu.Lock()
	defer mu.Unlock()
	if winner == nil {
		return nil, ErrTraversalFailed
	}
	return winner, nil
}

// dialLoop 反复拨号候选地址直到期限或成功
func (c *TCPConnector) dialLoop(ctx context.Context, fam family, laddr *net.TCPAddr, cand netip.AddrPort, path string, offer func(net.Conn, string)) {
	d := &net.Dialer{Control: socketControl(c.bufferSize(), laddr != nil)}
	if laddr != nil {
		d.LocalAddr = laddr
	}
	for {
		conn, err := d.DialContext(ctx, fam.tcp, cand.String())
		if err == nil {
			offer(conn, path)
		} else if ctx.Err() == nil {
			log.Debug("TCP 直连尝试失败", "path", path, "addr", cand, "err", err)
		}
		select {
		case <-c.cfg.Clock.After(DialRetryInterval):
		case <-ctx.Done():
			return
		}
	}
}

// acceptLoop 接受对端的入站直连
func (c *TCPConnector) acceptLoop(ctx context.Context, ln *net.TCPListener, offer func(net.Conn, string)) {
	stop := context.AfterFunc(ctx, func() { _ = ln.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			if ctx.Err() == nil {
				log.Debug("接受直连失败", "err", err)
			}
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			offer(conn, "accept")
		}()
	}
}

// exchangeTokens 发送本端令牌并校验对端令牌
func exchangeTokens(ctx context.Context, conn net.Conn, local, remote []byte) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })

	errc := make(chan error, 1)
	go func() {
		_, err := conn.Write(local)
		errc <- err
	}()
	got := make([]byte, wire.TokenSize)
	_, rerr := io.ReadFull(conn, got)
	werr := <-errc

	if !stop() {
		return ctx.Err()
	}
	if werr != nil {
		return werr
	}
	if rerr != nil {
		return rerr
	}
	if !bytes.Equal(got, remote) {
		return ErrTokenMismatch
	}
	return nil
}
