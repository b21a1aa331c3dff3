package holepunch

import (
	"bytes"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-vport/internal/core/rendezvous"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/pkg/types"
)

func startUDP(t *testing.T, cfg Config, target rendezvous.Target) (*UDPConnector, *results[*DatagramConn]) {
	t.Helper()
	res := newResults[*DatagramConn]()
	var c *UDPConnector
	c = NewUDPConnector(cfg, target, hashAuth(func() rendezvous.Connector { return c }), res.done)
	t.Cleanup(c.Abort)
	c.Start()
	return c, res
}

// udpPeer 对端套接字：持续向目标发送打洞包直到 stop
func udpPeer(t *testing.T, token []byte) (*net.UDPConn, func(netip.AddrPort), func()) {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	peer := pc.(*net.UDPConn)
	t.Cleanup(func() { peer.Close() })

	quit := make(chan struct{})
	var wg sync.WaitGroup
	start := func(to netip.AddrPort) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tick := time.NewTicker(50 * time.Millisecond)
			defer tick.Stop()
			for {
				_, _ = peer.WriteToUDPAddrPort(wire.Punch(token), to)
				select {
				case <-tick.C:
				case <-quit:
					return
				}
			}
		}()
	}
	var once sync.Once
	stop := func() {
		once.Do(func() { close(quit) })
		wg.Wait()
	}
	t.Cleanup(stop)
	return peer, start, stop
}

func closedUDPPort(t *testing.T) netip.AddrPort {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := netip.MustParseAddrPort(pc.LocalAddr().String())
	require.NoError(t, pc.Close())
	return addr
}

// readPayload 在 conn 上读取一个非打洞数据报
func readPayload(t *testing.T, conn *net.UDPConn) (string, netip.AddrPort) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testWait)))
	buf := make([]byte, 256)
	for {
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		require.NoError(t, err)
		if _, ok := wire.ParsePunch(buf[:n]); ok {
			continue
		}
		return string(buf[:n]), unmap(from)
	}
}

// TestUDPConnector_P2P 测试打洞成功
func TestUDPConnector_P2P(t *testing.T) {
	s := newFakeRzv(t)
	if s.udp == nil {
		t.Skip("rendezvous udp port unavailable")
	}
	c, res := startUDP(t, Config{EnableP2P: true, TraversalTimeout: 3 * time.Second}, testTarget(s.addr, 21))

	ctl := s.accept()
	ctl.authenticate(21)
	req, err := wire.ParseP2PRequest(ctl.expect(wire.TagP2PRequest))
	require.NoError(t, err)
	observed := s.readAttach(21)
	assert.Equal(t, req.Private, observed)
	assert.Equal(t, StateP2PMode, c.State())

	peerToken := bytes.Repeat([]byte{5}, wire.TokenSize)
	peer, punch, stop := udpPeer(t, peerToken)
	peerAddr := netip.MustParseAddrPort(peer.LocalAddr().String())
	punch(observed)
	ctl.send(wire.TagP2PData, wire.P2PData{
		LocalToken:  req.LocalToken,
		RemoteToken: peerToken,
		Public:      peerAddr,
	}.Payload())

	punched, err := wire.ParsePunched(ctl.expect(wire.TagPunched))
	require.NoError(t, err)
	assert.Equal(t, peerAddr, punched.Observed)
	ctl.send(wire.TagPeerPunched, nil)
	ctl.expect(wire.TagP2POK)

	o := res.wait(t)
	require.NoError(t, o.Err)
	defer o.Conn.Close()
	assert.Equal(t, types.ModeP2P, o.Mode)
	assert.Equal(t, peerAddr, o.Conn.Remote())
	stop()

	// 对端 → 本端：残留打洞包被过滤
	_, err = peer.WriteToUDPAddrPort([]byte("data"), observed)
	require.NoError(t, err)
	require.NoError(t, o.Conn.SetReadDeadline(time.Now().Add(testWait)))
	buf := make([]byte, 64)
	n, err := o.Conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf[:n]))

	// 本端 → 对端
	_, err = o.Conn.Write([]byte("back"))
	require.NoError(t, err)
	got, from := readPayload(t, peer)
	assert.Equal(t, "back", got)
	assert.Equal(t, observed, from)

	ctl.closed()
}

// TestUDPConnector_ProxyOnly 测试仅代理模式
func TestUDPConnector_ProxyOnly(t *testing.T) {
	s := newFakeRzv(t)
	target := testTarget(s.addr, 22)
	target.Options.ProxyOnly = true
	c, res := startUDP(t, Config{EnableP2P: true}, target)

	ctl := s.accept()
	ctl.authenticate(22)
	ctl.expect(wire.TagProxyRequest)
	relayPort := udpRelay(t)
	ctl.send(wire.TagProxyData, wire.ProxyData{RelayPort: relayPort}.Payload())

	o := res.wait(t)
	require.NoError(t, o.Err)
	defer o.Conn.Close()
	assert.Equal(t, types.ModeProxy, o.Mode)
	assert.Equal(t, netip.AddrPortFrom(s.addr.Addr(), relayPort), o.Conn.Remote())
	assert.Equal(t, StateCompleted, c.State())

	_, err := o.Conn.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, o.Conn.SetReadDeadline(time.Now().Add(testWait)))
	buf := make([]byte, 64)
	n, err := o.Conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	ctl.closed()
}

// TestUDPConnector_FallbackToProxy 测试打洞期限到达后回退代理
func TestUDPConnector_FallbackToProxy(t *testing.T) {
	s := newFakeRzv(t)
	_, res := startUDP(t, Config{EnableP2P: true, TraversalTimeout: 300 * time.Millisecond}, testTarget(s.addr, 23))

	ctl := s.accept()
	ctl.authenticate(23)
	req, err := wire.ParseP2PRequest(ctl.expect(wire.TagP2PRequest))
	require.NoError(t, err)
	ctl.send(wire.TagP2PData, wire.P2PData{
		LocalToken:  req.LocalToken,
		RemoteToken: bytes.Repeat([]byte{6}, wire.TokenSize),
		Public:      closedUDPPort(t),
	}.Payload())

	ctl.expect(wire.TagP2PFailed)
	ctl.send(wire.TagProxyData, wire.ProxyData{RelayPort: udpRelay(t)}.Payload())

	o := res.wait(t)
	require.NoError(t, o.Err)
	defer o.Conn.Close()
	assert.Equal(t, types.ModeProxy, o.Mode)
}

// TestUDPConnector_ProxyDataDuringAttach 测试挂接阶段收到中继端口
func TestUDPConnector_ProxyDataDuringAttach(t *testing.T) {
	s := newFakeRzv(t)
	_, res := startUDP(t, Config{EnableP2P: true}, testTarget(s.addr, 24))

	ctl := s.accept()
	ctl.authenticate(24)
	ctl.expect(wire.TagP2PRequest)
	ctl.send(wire.TagProxyData, wire.ProxyData{RelayPort: udpRelay(t)}.Payload())

	o := res.wait(t)
	require.NoError(t, o.Err)
	defer o.Conn.Close()
	assert.Equal(t, types.ModeProxy, o.Mode)
}

// TestUDPConnector_FailedDuringPunch 测试打洞阶段服务器报告失败
func TestUDPConnector_FailedDuringPunch(t *testing.T) {
	s := newFakeRzv(t)
	_, res := startUDP(t, Config{EnableP2P: true, TraversalTimeout: 3 * time.Second}, testTarget(s.addr, 25))

	ctl := s.accept()
	ctl.authenticate(25)
	req, err := wire.ParseP2PRequest(ctl.expect(wire.TagP2PRequest))
	require.NoError(t, err)
	ctl.send(wire.TagP2PData, wire.P2PData{
		LocalToken:  req.LocalToken,
		RemoteToken: bytes.Repeat([]byte{6}, wire.TokenSize),
		Public:      closedUDPPort(t),
	}.Payload())
	ctl.send(wire.TagFailed, wire.Failed{Code: 3}.Payload())

	o := res.wait(t)
	assert.ErrorIs(t, o.Err, types.ErrConnectionAttemptFailed)
	assert.ErrorContains(t, o.Err, "code 3")
	ctl.closed()
}

// TestUDPConnector_Abort 测试挂接阶段中止
func TestUDPConnector_Abort(t *testing.T) {
	s := newFakeRzv(t)
	c, res := startUDP(t, Config{EnableP2P: true}, testTarget(s.addr, 26))

	ctl := s.accept()
	ctl.authenticate(26)
	ctl.expect(wire.TagP2PRequest)
	c.Abort()

	ctl.closed()
	assert.Equal(t, StateCompleted, c.State())
	assert.Never(t, func() bool { return res.count.Load() > 0 }, 300*time.Millisecond, 20*time.Millisecond)
}

// TestDatagramConn_Filters 测试数据报过滤
func TestDatagramConn_Filters(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	local := pc.(*net.UDPConn)
	defer local.Close()

	remote, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer remote.Close()
	stranger, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer stranger.Close()

	conn := &DatagramConn{UDPConn: local, remote: netip.MustParseAddrPort(remote.LocalAddr().String()), connID: 8}
	to := local.LocalAddr()
	_, _ = stranger.WriteTo([]byte("stranger"), to)
	_, _ = remote.WriteTo(wire.Punch(bytes.Repeat([]byte{1}, wire.TokenSize)), to)
	_, _ = remote.WriteTo(wire.ProxyHeader(8), to)
	_, _ = remote.WriteTo([]byte("payload"), to)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testWait)))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf[:n]))
	assert.Equal(t, remote.LocalAddr().String(), conn.RemoteAddr().String())
}
