package relay

import (
	"context"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-vport/internal/core/wire"
)

func tcpRelay(t *testing.T, reply func([]byte) []byte) netip.AddrPort {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, wire.ProxyHeaderSize)
		if _, err := io.ReadFull(c, buf); err != nil {
			return
		}
		_, _ = c.Write(reply(buf))
		_, _ = io.Copy(c, c)
	}()
	return netip.MustParseAddrPort(ln.Addr().String())
}

// TestClient_DialTCP 测试 TCP 代理头回显
func TestClient_DialTCP(t *testing.T) {
	addr := tcpRelay(t, func(b []byte) []byte { return b })
	c := NewClient(nil, nil)

	conn, err := c.DialTCP(context.Background(), addr, 42)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

// TestClient_DialTCPBadEcho 测试回显不符时失败
func TestClient_DialTCPBadEcho(t *testing.T) {
	addr := tcpRelay(t, func([]byte) []byte { return wire.ProxyHeader(7) })
	_, err := NewClient(nil, nil).DialTCP(context.Background(), addr, 42)
	assert.ErrorIs(t, err, ErrBadEcho)
}

// TestClient_DialTCPCancelled 测试中继不回应时随 ctx 结束
func TestClient_DialTCPCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
			time.Sleep(2 * time.Second)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = NewClient(nil, nil).DialTCP(ctx, netip.MustParseAddrPort(ln.Addr().String()), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestClient_InvalidRelay 测试无效中继地址
func TestClient_InvalidRelay(t *testing.T) {
	c := NewClient(nil, nil)
	_, err := c.DialTCP(context.Background(), netip.AddrPort{}, 1)
	assert.ErrorIs(t, err, ErrInvalidRelay)
	assert.ErrorIs(t, c.HandshakeUDP(context.Background(), nil, netip.MustParseAddrPort("127.0.0.1:0"), 1), ErrInvalidRelay)
}

// TestClient_HandshakeUDP 测试 UDP 代理头重发与回显
func TestClient_HandshakeUDP(t *testing.T) {
	relay, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer relay.Close()
	stray, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer stray.Close()

	go func() {
		buf := make([]byte, 64)
		// 丢弃第一个代理头，迫使客户端重发
		if _, _, err := relay.ReadFromUDPAddrPort(buf); err != nil {
			return
		}
		n, from, err := relay.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}
		_, _ = stray.WriteToUDPAddrPort(buf[:n], from)
		_, _ = relay.WriteToUDPAddrPort([]byte("junk"), from)
		_, _ = relay.WriteToUDPAddrPort(buf[:n], from)
	}()

	pc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer pc.Close()

	c := NewClient(nil, nil)
	c.resend = 50 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.HandshakeUDP(ctx, pc, netip.MustParseAddrPort(relay.LocalAddr().String()), 9))
}

// TestClient_HandshakeUDPTimeout 测试无回显时超时
func TestClient_HandshakeUDPTimeout(t *testing.T) {
	relay, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer relay.Close()
	pc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer pc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err = NewClient(nil, nil).HandshakeUDP(ctx, pc, netip.MustParseAddrPort(relay.LocalAddr().String()), 9)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
