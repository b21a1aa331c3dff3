package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-vport/internal/core/channel"
	"github.com/dep2p/go-vport/internal/core/discovery/dns"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/pkg/types"
)

// TestManager_CredentialedOpen 测试口令类别的完整握手
func TestManager_CredentialedOpen(t *testing.T) {
	env := newTestEnv(t, types.Identity{Scheme: types.SchemeMultiService, Password: "secret"}, nil, nil)
	env.m.Connect()
	assert.Equal(t, types.AttemptingToConnect, env.m.Connectivity().State)

	conn := env.srv.next(t)
	msg := readMsg(t, conn)
	require.Equal(t, wire.ComponentHandshake, msg.Component)
	require.Equal(t, wire.TagOpen, msg.Tag)
	open, err := wire.ParseOpen(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(wire.ProtocolVersion), open.Version)
	assert.Equal(t, uint64(wire.EndpointTypeClient), open.EndpointType)
	assert.Equal(t, uint64(types.CategoryMultiService|types.CategoryCredentialed), open.Category)
	assert.Equal(t, "client-1", open.ClientKey)
	assert.Empty(t, open.SessionID)

	salt := []byte("salt-0123456789")
	serverKey := []byte("server-key")
	writeMsg(t, conn, wire.ComponentHandshake, wire.TagSaltAndKey1, wire.SaltAndKey{Salt: salt, ServerKey: serverKey}.Payload())

	msg = readMsg(t, conn)
	require.Equal(t, wire.TagHashAndKey2, msg.Tag)
	hk, err := wire.ParseHashAndKey(msg.Payload)
	require.NoError(t, err)
	want, err := PasswordHash("secret", salt, serverKey, hk.ClientSecurityKey)
	require.NoError(t, err)
	assert.Equal(t, want, hk.PasswordHash)
	assert.Len(t, hk.PasswordHash, PasswordHashSize)

	writeMsg(t, conn, wire.ComponentHandshake, wire.TagOpenOK, wire.Accepted{SessionID: []byte("s-1")}.Payload())

	env.waitState(t, types.Connected)
	est, inst, disc := env.dep.counts()
	assert.Equal(t, 1, est)
	assert.Equal(t, 1, inst)
	assert.Equal(t, 0, disc)
}

// TestManager_RestoreAfterDrop 测试断线后使用 RESTORE 恢复会话
func TestManager_RestoreAfterDrop(t *testing.T) {
	env := newTestEnv(t, types.Identity{}, nil, nil)
	env.m.Connect()

	first := env.srv.next(t)
	acceptOpen(t, first, "s-42")
	env.waitState(t, types.Connected)

	first.Close()
	got := env.waitState(t, types.AttemptingToConnect)
	require.Error(t, got.Err)
	ce := types.AsConnectivityError(got.Err)
	assert.Equal(t, types.ClassNetwork, ce.Class)

	env.waitRetry(t, time.Second)

	second := env.srv.next(t)
	msg := readMsg(t, second)
	require.Equal(t, wire.TagRestore, msg.Tag)
	restore, err := wire.ParseOpen(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("s-42"), restore.SessionID)
	writeMsg(t, second, wire.ComponentHandshake, wire.TagRestoreOK, nil)

	env.waitState(t, types.Connected)
	_, inst, disc := env.dep.counts()
	assert.Equal(t, 2, inst)
	assert.Equal(t, 1, disc)
}

// TestManager_InvalidPasswordGoesDown 测试口令错误进入 Down
func TestManager_InvalidPasswordGoesDown(t *testing.T) {
	env := newTestEnv(t, types.Identity{Password: "wrong"}, nil, nil)
	env.m.Connect()

	conn := env.srv.next(t)
	readMsg(t, conn)
	writeMsg(t, conn, wire.ComponentHandshake, wire.TagSaltAndKey1, wire.SaltAndKey{Salt: []byte{1}, ServerKey: []byte{2}}.Payload())
	readMsg(t, conn)
	writeMsg(t, conn, wire.ComponentHandshake, wire.TagHandshakeError,
		wire.HandshakeError{Code: uint64(types.CodeInvalidPassword), Text: "bad password"}.Payload())

	got := env.waitState(t, types.Down)
	ce := types.AsConnectivityError(got.Err)
	assert.Equal(t, types.ClassCredential, ce.Class)
	assert.Equal(t, types.CodeInvalidPassword, ce.Code)
	assert.Equal(t, 0, env.sched.Len(), "no retry scheduled")

	// 显式 Connect 可以从 Down 恢复
	env.m.Connect()
	env.srv.next(t)
	assert.Equal(t, types.AttemptingToConnect, env.m.Connectivity().State)
}

// TestManager_DataInconsistentDropsSession 测试端点数据不一致时丢弃会话 ID
func TestManager_DataInconsistentDropsSession(t *testing.T) {
	env := newTestEnv(t, types.Identity{}, nil, nil)
	env.m.Connect()

	first := env.srv.next(t)
	acceptOpen(t, first, "s-1")
	env.waitState(t, types.Connected)
	first.Close()
	env.waitRetry(t, time.Second)

	second := env.srv.next(t)
	msg := readMsg(t, second)
	require.Equal(t, wire.TagRestore, msg.Tag)
	writeMsg(t, second, wire.ComponentHandshake, wire.TagHandshakeError,
		wire.HandshakeError{Code: uint64(types.CodeEndpointDataInconsistent)}.Payload())

	env.waitState(t, types.AttemptingToConnect)
	env.waitRetry(t, time.Second)

	third := env.srv.next(t)
	msg = readMsg(t, third)
	assert.Equal(t, wire.TagOpen, msg.Tag)
}

// TestManager_UnresolvableHostGoesDown 测试名字不存在时进入 Down
func TestManager_UnresolvableHostGoesDown(t *testing.T) {
	res := staticResolver{err: fmt.Errorf("%w: nowhere", dns.ErrHostNotFound)}
	env := newTestEnv(t, types.Identity{ServerHost: "nowhere.test"}, res, nil)
	env.m.Connect()

	got := env.waitState(t, types.Down)
	assert.Equal(t, types.ClassResolution, types.AsConnectivityError(got.Err).Class)
}

// TestManager_TransientResolveRetries 测试暂时性解析失败按退避重试
func TestManager_TransientResolveRetries(t *testing.T) {
	res := staticResolver{err: errors.New("i/o timeout")}
	env := newTestEnv(t, types.Identity{ServerHost: "flaky.test"}, res, nil)
	env.m.Connect()

	require.Eventually(t, func() bool {
		c := env.m.Connectivity()
		return c.State == types.AttemptingToConnect && c.Err != nil
	}, 3*time.Second, 5*time.Millisecond)
	env.waitRetry(t, time.Second)

	require.Eventually(t, func() bool {
		env.m.sctx.Lock()
		defer env.m.sctx.Unlock()
		return env.m.backoff.Attempt() == 2
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, types.AttemptingToConnect, env.m.Connectivity().State)
}

// TestManager_DisconnectAndClose 测试断开与关闭
func TestManager_DisconnectAndClose(t *testing.T) {
	env := newTestEnv(t, types.Identity{}, nil, nil)
	env.m.Connect()
	acceptOpen(t, env.srv.next(t), "s-1")
	env.waitState(t, types.Connected)

	env.m.Disconnect()
	assert.Equal(t, types.Disconnected, env.m.Connectivity().State)
	_, _, disc := env.dep.counts()
	assert.Equal(t, 1, disc)
	env.dep.mu.Lock()
	assert.Nil(t, env.dep.disconnects[0])
	env.dep.mu.Unlock()

	env.m.Close()
	env.m.Connect()
	assert.Equal(t, types.Disconnected, env.m.Connectivity().State)
	select {
	case <-env.srv.conns:
		t.Fatal("connect after close must be a no-op")
	case <-time.After(100 * time.Millisecond):
	}
}

// TestManager_ConnectIsIdempotent 测试重复 Connect 无操作
func TestManager_ConnectIsIdempotent(t *testing.T) {
	env := newTestEnv(t, types.Identity{}, nil, nil)
	env.m.Connect()
	env.m.Connect()

	acceptOpen(t, env.srv.next(t), "s-1")
	env.waitState(t, types.Connected)
	select {
	case <-env.srv.conns:
		t.Fatal("second connect opened another connection")
	case <-time.After(100 * time.Millisecond):
	}
}

// TestManager_StateComponent 测试心跳周期与重启消息
func TestManager_StateComponent(t *testing.T) {
	env := newTestEnv(t, types.Identity{}, nil, nil)
	env.m.SetLocalPingPeriod(90 * time.Second)
	env.m.Connect()

	conn := env.srv.next(t)
	acceptOpen(t, conn, "s-1")
	env.waitState(t, types.Connected)

	msg := readMsg(t, conn)
	require.Equal(t, wire.ComponentState, msg.Component)
	pp, err := wire.ParsePingPeriod(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), pp.Seconds)

	writeMsg(t, conn, wire.ComponentState, wire.TagPingPeriod, wire.PingPeriod{Seconds: 30}.Payload())
	require.Eventually(t, func() bool {
		local, remote := env.periods.get()
		return local == 90*time.Second && remote == 30*time.Second
	}, 3*time.Second, 5*time.Millisecond)

	writeMsg(t, conn, wire.ComponentState, wire.TagRestart, nil)
	got := env.waitState(t, types.AttemptingToConnect)
	assert.Equal(t, types.ClassRestart, types.AsConnectivityError(got.Err).Class)
}

// TestManager_UnknownHandshakeTag 测试握手阶段的非预期消息
func TestManager_UnknownHandshakeTag(t *testing.T) {
	env := newTestEnv(t, types.Identity{}, nil, nil)
	env.m.Connect()

	conn := env.srv.next(t)
	readMsg(t, conn)
	// 非口令类别不应收到 OPEN_OK
	writeMsg(t, conn, wire.ComponentHandshake, wire.TagOpenOK, wire.Accepted{SessionID: []byte("x")}.Payload())

	var got types.Connectivity
	require.Eventually(t, func() bool {
		got = env.m.Connectivity()
		return got.Err != nil
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, types.ClassProtocol, types.AsConnectivityError(got.Err).Class)
}

// TestManager_Installer 测试上层安装完成后才进入 Connected
func TestManager_Installer(t *testing.T) {
	release := make(chan struct{})
	installer := InstallerFunc(func(ctx context.Context, ch *channel.Channel) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	env := newTestEnv(t, types.Identity{}, nil, installer)
	env.m.Connect()
	acceptOpen(t, env.srv.next(t), "s-1")

	require.Eventually(t, func() bool {
		est, _, _ := env.dep.counts()
		return est == 1
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, types.AttemptingToConnect, env.m.Connectivity().State)

	close(release)
	env.waitState(t, types.Connected)
}

// TestManager_CloseKeepsDown 测试关闭不改写 Down 状态
func TestManager_CloseKeepsDown(t *testing.T) {
	env := newTestEnv(t, types.Identity{Password: "wrong"}, nil, nil)
	env.m.Connect()

	conn := env.srv.next(t)
	readMsg(t, conn)
	writeMsg(t, conn, wire.ComponentHandshake, wire.TagSaltAndKey1, wire.SaltAndKey{Salt: []byte{1}, ServerKey: []byte{2}}.Payload())
	readMsg(t, conn)
	writeMsg(t, conn, wire.ComponentHandshake, wire.TagHandshakeError,
		wire.HandshakeError{Code: uint64(types.CodeDuplicateKey)}.Payload())
	env.waitState(t, types.Down)

	env.m.Close()
	got := env.m.Connectivity()
	assert.Equal(t, types.Down, got.State)
	assert.Equal(t, types.CodeDuplicateKey, types.AsConnectivityError(got.Err).Code)

	// 关闭后 Connect 无效
	env.m.Connect()
	assert.Equal(t, types.Down, env.m.Connectivity().State)
}
