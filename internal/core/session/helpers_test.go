package session

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-vport/config"
	"github.com/dep2p/go-vport/internal/core/channel"
	"github.com/dep2p/go-vport/internal/core/scheduler"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/pkg/types"
)

// fakeServer 接受连接并交给测试逐步驱动
type fakeServer struct {
	ln    net.Listener
	conns chan net.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{ln: ln, conns: make(chan net.Conn, 8)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			s.conns <- c
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) host() string {
	return s.ln.Addr().String()
}

func (s *fakeServer) next(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func readMsg(t *testing.T, c net.Conn) wire.Message {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	body, err := wire.ReadFrame(c, 0)
	require.NoError(t, err)
	msg, err := wire.ParseBody(body)
	require.NoError(t, err)
	return msg
}

func writeMsg(t *testing.T, c net.Conn, comp wire.Component, tag wire.Tag, payload []byte) {
	t.Helper()
	require.NoError(t, wire.WriteFrame(c, wire.Body(comp, tag, payload)))
}

// acceptOpen 完成非口令类别的 OPEN 握手
func acceptOpen(t *testing.T, c net.Conn, sessionID string) wire.Open {
	t.Helper()
	msg := readMsg(t, c)
	require.Equal(t, wire.TagOpen, msg.Tag)
	open, err := wire.ParseOpen(msg.Payload)
	require.NoError(t, err)
	writeMsg(t, c, wire.ComponentHandshake, wire.TagOpenOK2, wire.Accepted{SessionID: []byte(sessionID)}.Payload())
	return open
}

type staticResolver struct {
	err error
}

func (r staticResolver) Resolve(context.Context, string) ([]netip.Addr, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []netip.Addr{netip.MustParseAddr("127.0.0.1")}, nil
}

// recordingDependent 记录依赖方回调
type recordingDependent struct {
	mu          sync.Mutex
	established int
	installed   int
	disconnects []error
}

func (d *recordingDependent) Established(*channel.Channel) {
	d.mu.Lock()
	d.established++
	d.mu.Unlock()
}

func (d *recordingDependent) Installed() {
	d.mu.Lock()
	d.installed++
	d.mu.Unlock()
}

func (d *recordingDependent) Disconnected(err error) {
	d.mu.Lock()
	d.disconnects = append(d.disconnects, err)
	d.mu.Unlock()
}

func (d *recordingDependent) counts() (int, int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.established, d.installed, len(d.disconnects)
}

type recordingPeriods struct {
	mu     sync.Mutex
	local  time.Duration
	remote time.Duration
}

func (p *recordingPeriods) SetLocalPeriod(d time.Duration) {
	p.mu.Lock()
	p.local = d
	p.mu.Unlock()
}

func (p *recordingPeriods) SetRemotePeriod(d time.Duration) {
	p.mu.Lock()
	p.remote = d
	p.mu.Unlock()
}

func (p *recordingPeriods) get() (time.Duration, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local, p.remote
}

type testEnv struct {
	mock    *clock.Mock
	sched   *scheduler.Scheduler
	m       *Manager
	srv     *fakeServer
	dep     *recordingDependent
	periods *recordingPeriods
}

func newTestEnv(t *testing.T, id types.Identity, res Resolver, installer Installer) *testEnv {
	t.Helper()
	srv := newFakeServer(t)
	if id.ServerHost == "" {
		id.ServerHost = srv.host()
	}
	if id.ClientKey == "" {
		id.ClientKey = "client-1"
	}
	if res == nil {
		res = staticResolver{}
	}

	mock := clock.NewMock()
	sched := scheduler.New(mock)
	workers := scheduler.NewWorkers(2, 16)
	cfg := config.DefaultSessionConfig()
	cfg.HandshakeTimeout = config.Duration(3 * time.Second)

	m, err := NewManager(Params{
		Context:   NewContext(sched, workers, nil),
		Config:    cfg,
		Identity:  id,
		Resolver:  res,
		Installer: installer,
	})
	require.NoError(t, err)

	env := &testEnv{mock: mock, sched: sched, m: m, srv: srv, dep: &recordingDependent{}, periods: &recordingPeriods{}}
	m.AddDependent(env.dep)
	m.SetPingPeriods(env.periods)
	t.Cleanup(func() {
		m.Close()
		workers.Close()
		sched.Stop()
	})
	return env
}

func (e *testEnv) waitState(t *testing.T, want types.ConnectivityState) types.Connectivity {
	t.Helper()
	var got types.Connectivity
	require.Eventually(t, func() bool {
		got = e.m.Connectivity()
		return got.State == want
	}, 3*time.Second, 5*time.Millisecond, "want state %s", want)
	return got
}

// waitRetry 等待重连任务登记后推进模拟时钟
func (e *testEnv) waitRetry(t *testing.T, d time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool { return e.sched.Len() == 1 }, 3*time.Second, 5*time.Millisecond)
	e.mock.Add(d)
}
