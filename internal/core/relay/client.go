package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/internal/util/logger"
	"github.com/dep2p/go-vport/pkg/types"
)

var log = logger.Logger("relay")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrBadEcho 中继回显与代理头不一致
	ErrBadEcho = errors.New("relay: unexpected header echo")

	// ErrInvalidRelay 中继地址无效
	ErrInvalidRelay = errors.New("relay: invalid relay address")
)

// DefaultResendInterval UDP 代理头重发间隔
const DefaultResendInterval = 500 * time.Millisecond

// ============================================================================
//                              Client
// ============================================================================

// Client 中继客户端
type Client struct {
	dialer *net.Dialer
	clock  clock.Clock
	resend time.Duration
}

// NewClient 创建中继客户端；dialer 为 nil 时使用零值 Dialer
func NewClient(dialer *net.Dialer, clk clock.Clock) *Client {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Client{dialer: dialer, clock: clk, resend: DefaultResendInterval}
}

// DialTCP 连接中继端口并完成代理头交换
func (c *Client) DialTCP(ctx context.Context, addr netip.AddrPort, connID types.ConnectionID) (net.Conn, error) {
	if !addr.IsValid() || addr.Port() == 0 {
		return nil, ErrInvalidRelay
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("relay: dial %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	header := wire.ProxyHeader(uint64(connID))
	if _, err := conn.Write(header); err != nil {
		conn.Close()
		return nil, fmt.Errorf("relay: write header: %w", err)
	}
	echo := make([]byte, wire.ProxyHeaderSize)
	if _, err := io.ReadFull(conn, echo); err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("relay: read echo: %w", err)
	}
	if !bytes.Equal(echo, header) {
		conn.Close()
		return nil, ErrBadEcho
	}
	if !stop() {
		conn.Close()
		return nil, ctx.Err()
	}
	log.Debug("TCP 中继握手完成", "relay", addr, "connID", connID)
	return conn, nil
}

// HandshakeUDP 在已有数据报套接字上完成代理头交换
//
// 来自其他地址或内容不符的数据报被忽略；ctx 结束前按间隔重发代理头。
func (c *Client) HandshakeUDP(ctx context.Context, pc *net.UDPConn, addr netip.AddrPort, connID types.ConnectionID) error {
	if !addr.IsValid() || addr.Port() == 0 {
		return ErrInvalidRelay
	}
	header := wire.ProxyHeader(uint64(connID))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = pc.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()

	go func() {
		ticker := c.clock.Ticker(c.resend)
		defer ticker.Stop()
		for {
			if _, err := pc.WriteToUDPAddrPort(header, addr); err != nil {
				log.Debug("发送 UDP 代理头失败", "relay", addr, "err", err)
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	buf := make([]byte, 64)
	for {
		n, from, err := pc.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("relay: read echo: %w", err)
		}
		if !sameEndpoint(from, addr) {
			continue
		}
		if !wire.IsProxyHeader(buf[:n], uint64(connID)) {
			log.Debug("忽略无效的 UDP 中继回显", "relay", addr, "len", n)
			continue
		}
		if !stop() {
			return ctx.Err()
		}
		cancel()
		// 恢复读超时，套接字之后交给调用方使用
		_ = pc.SetReadDeadline(time.Time{})
		log.Debug("UDP 中继握手完成", "relay", addr, "connID", connID)
		return nil
	}
}

func sameEndpoint(a, b netip.AddrPort) bool {
	return a.Addr().Unmap() == b.Addr().Unmap() && a.Port() == b.Port()
}
