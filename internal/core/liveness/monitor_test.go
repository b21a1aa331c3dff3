package liveness

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-vport/internal/core/channel"
	"github.com/dep2p/go-vport/internal/core/scheduler"
	"github.com/dep2p/go-vport/internal/core/session"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/pkg/types"
)

type testEnv struct {
	mock  *clock.Mock
	sched *scheduler.Scheduler
	sctx  *session.Context
	mon   *Monitor
	ch    *channel.Channel
	peer  net.Conn
	in    chan wire.Message
}

func newTestEnv(t *testing.T, remote time.Duration) *testEnv {
	t.Helper()
	mock := clock.NewMock()
	mock.Add(time.Hour)
	sched := scheduler.New(mock)
	sctx := session.NewContext(sched, nil, nil)

	a, b := net.Pipe()
	ch := channel.New(a, channel.Config{MaxMessage: 1024, Clock: mock, Locker: sctx.Locker()})
	env := &testEnv{
		mock:  mock,
		sched: sched,
		sctx:  sctx,
		mon:   NewMonitor(sctx),
		ch:    ch,
		peer:  b,
		in:    make(chan wire.Message, 16),
	}
	go func() {
		for {
			body, err := wire.ReadFrame(b, 0)
			if err != nil {
				return
			}
			msg, err := wire.ParseBody(body)
			if err != nil {
				return
			}
			env.in <- msg
		}
	}()
	t.Cleanup(func() {
		ch.Close()
		b.Close()
		sched.Stop()
	})

	sctx.Lock()
	if remote > 0 {
		env.mon.SetRemotePeriod(remote)
	}
	env.mon.Established(ch)
	ch.Start()
	env.mon.Installed()
	sctx.Unlock()
	return env
}

// sync 等待进行中的定时检查结束
func (e *testEnv) sync() {
	e.sctx.Lock()
	e.sctx.Unlock() //nolint:staticcheck
}

func (e *testEnv) expect(t *testing.T, tag wire.Tag) {
	t.Helper()
	select {
	case msg := <-e.in:
		require.Equal(t, wire.ComponentLiveness, msg.Component)
		require.Equal(t, tag, msg.Tag)
	case <-time.After(2 * time.Second):
		t.Fatalf("expected liveness tag %d", tag)
	}
	e.sync()
}

func (e *testEnv) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case msg := <-e.in:
		t.Fatalf("unexpected message %v/%d", msg.Component, msg.Tag)
	case <-time.After(100 * time.Millisecond):
	}
}

func (e *testEnv) write(t *testing.T, tag wire.Tag) {
	t.Helper()
	require.NoError(t, wire.WriteFrame(e.peer, wire.Body(wire.ComponentLiveness, tag, nil)))
}

// TestMonitor_PingBeforePeriod 测试在周期结束前 3 秒发送 Ping
func TestMonitor_PingBeforePeriod(t *testing.T) {
	env := newTestEnv(t, 0)

	env.mock.Add(296 * time.Second)
	env.expectNothing(t)

	env.mock.Add(time.Second)
	env.expect(t, wire.TagPing)
	assert.False(t, env.ch.Closed())
}

// TestMonitor_PongClearsPing 测试收到 Pong 后不再超时
func TestMonitor_PongClearsPing(t *testing.T) {
	env := newTestEnv(t, 0)

	env.mock.Add(297 * time.Second)
	env.expect(t, wire.TagPing)

	env.write(t, wire.TagPong)
	require.Eventually(t, func() bool { return env.ch.InputCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.mock.Add(LongTolerance)
	env.sync()
	assert.Never(t, env.ch.Closed, 200*time.Millisecond, 20*time.Millisecond)
	env.expectNothing(t)
}

// TestMonitor_PingTimeout 测试未收到回应时关闭通道
func TestMonitor_PingTimeout(t *testing.T) {
	env := newTestEnv(t, 0)

	env.mock.Add(297 * time.Second)
	env.expect(t, wire.TagPing)

	env.mock.Add(LongTolerance - time.Second)
	env.sync()
	assert.False(t, env.ch.Closed())

	env.mock.Add(time.Second)
	require.Eventually(t, env.ch.Closed, 2*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, env.ch.Err(), ErrPingTimeout)
	assert.Equal(t, types.ClassNetwork, types.AsConnectivityError(env.ch.Err()).Class)
}

// TestMonitor_ShortPeriodTolerance 测试短周期下容忍时间等于周期
func TestMonitor_ShortPeriodTolerance(t *testing.T) {
	env := newTestEnv(t, 30*time.Second)

	env.mock.Add(27 * time.Second)
	env.expect(t, wire.TagPing)

	env.mock.Add(29 * time.Second)
	env.sync()
	assert.False(t, env.ch.Closed())

	env.mock.Add(time.Second)
	require.Eventually(t, env.ch.Closed, 2*time.Second, 10*time.Millisecond)
}

// TestMonitor_AnswersServerPing 测试回应服务器的 Ping
func TestMonitor_AnswersServerPing(t *testing.T) {
	env := newTestEnv(t, 0)

	env.write(t, wire.TagPing)
	env.expect(t, wire.TagPong)

	env.write(t, wire.TagKeepAlive)
	require.Eventually(t, func() bool { return env.ch.InputCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, env.ch.Closed())
}

// TestMonitor_UnknownTag 测试未知标签关闭通道
func TestMonitor_UnknownTag(t *testing.T) {
	env := newTestEnv(t, 0)

	env.write(t, wire.Tag(9))
	require.Eventually(t, env.ch.Closed, 2*time.Second, 10*time.Millisecond)
	assert.True(t, errors.Is(env.ch.Err(), wire.ErrUnknownTag))
}

// TestMonitor_PeriodChangeKeepsPingTime 测试周期变更不重置 Ping 的发送时间
func TestMonitor_PeriodChangeKeepsPingTime(t *testing.T) {
	env := newTestEnv(t, 30*time.Second)

	env.mock.Add(27 * time.Second)
	env.expect(t, wire.TagPing)

	env.mock.Add(10 * time.Second)
	env.sync()

	env.sctx.Lock()
	env.mon.SetRemotePeriod(100 * time.Second)
	env.sctx.Unlock()
	assert.Equal(t, 1, env.sched.Len())

	// 原定于 30 秒后的检查已取消，容忍时间变为 60 秒
	env.mock.Add(20 * time.Second)
	env.sync()
	assert.False(t, env.ch.Closed())

	env.mock.Add(29 * time.Second)
	env.sync()
	assert.False(t, env.ch.Closed())

	env.mock.Add(time.Second)
	require.Eventually(t, env.ch.Closed, 2*time.Second, 10*time.Millisecond)
}

// TestMonitor_KeepAlive 测试长周期下发送 KEEP_ALIVE
func TestMonitor_KeepAlive(t *testing.T) {
	env := newTestEnv(t, 600*time.Second)
	env.expect(t, wire.TagKeepAlive)

	env.mock.Add(MaxSilence - PingLead)
	env.expect(t, wire.TagKeepAlive)
	assert.False(t, env.ch.Closed())
}

// TestMonitor_Period 测试有效周期的优先级
func TestMonitor_Period(t *testing.T) {
	m := NewMonitor(nil)
	assert.Equal(t, DefaultPeriod, m.Period())
	m.local = 120 * time.Second
	assert.Equal(t, 120*time.Second, m.Period())
	assert.Equal(t, LongTolerance, m.tolerance())
	m.remote = 20 * time.Second
	assert.Equal(t, 20*time.Second, m.Period())
	assert.Equal(t, 20*time.Second, m.tolerance())
	assert.Equal(t, 17*time.Second, m.lead())
}

// TestMonitor_DisconnectedCancels 测试断开后取消定时检查
func TestMonitor_DisconnectedCancels(t *testing.T) {
	env := newTestEnv(t, 0)
	assert.Equal(t, 1, env.sched.Len())

	env.sctx.Lock()
	env.mon.Disconnected(nil)
	env.sctx.Unlock()
	assert.Equal(t, 0, env.sched.Len())

	env.mock.Add(DefaultPeriod)
	env.expectNothing(t)
}

// TestMonitor_FiredCheckSupersededByRearm 测试已触发的检查被周期变更取代后不再执行
func TestMonitor_FiredCheckSupersededByRearm(t *testing.T) {
	env := newTestEnv(t, 0)

	env.sctx.Lock()
	env.mock.Add(297 * time.Second)
	// 定时器已触发，回调正在等待会话锁
	require.Eventually(t, func() bool { return env.sched.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	env.mon.SetLocalPeriod(200 * time.Second)
	env.sctx.Unlock()

	env.expect(t, wire.TagPing)
	time.Sleep(50 * time.Millisecond)
	env.sync()
	assert.Equal(t, 1, env.sched.Len())
	env.expectNothing(t)

	// 唯一的检查在容忍时间后判定超时
	env.mock.Add(59 * time.Second)
	env.sync()
	assert.False(t, env.ch.Closed())
	env.mock.Add(time.Second)
	require.Eventually(t, env.ch.Closed, 2*time.Second, 10*time.Millisecond)
}
