package session

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-vport/internal/core/channel"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/pkg/types"
)

// TestPasswordHash 测试摘要派生
func TestPasswordHash(t *testing.T) {
	a, err := PasswordHash("pw", []byte("salt"), []byte("sk"), []byte("ck"))
	require.NoError(t, err)
	b, err := PasswordHash("pw", []byte("salt"), []byte("sk"), []byte("ck"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, PasswordHashSize)

	c, err := PasswordHash("pw", []byte("salt"), []byte("sk"), []byte("other"))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

// TestHandshake_Accepts 测试确认消息与阶段的匹配
func TestHandshake_Accepts(t *testing.T) {
	plain := &handshake{identity: types.Identity{}}
	assert.True(t, plain.accepts(wire.TagOpenOK2))
	assert.False(t, plain.accepts(wire.TagOpenOK))
	assert.False(t, plain.accepts(wire.TagRestoreOK))

	cred := &handshake{identity: types.Identity{Password: "x"}}
	assert.False(t, cred.accepts(wire.TagOpenOK), "confirmation before challenge")
	cred.phase = awaitingConfirmation
	assert.True(t, cred.accepts(wire.TagOpenOK))
	assert.False(t, cred.accepts(wire.TagOpenOK2))

	restore := &handshake{identity: types.Identity{}, restore: true, sessionID: []byte("s")}
	assert.True(t, restore.accepts(wire.TagRestoreOK))
	assert.False(t, restore.accepts(wire.TagOpenOK2))
}

// TestClassify 测试错误分类
func TestClassify(t *testing.T) {
	assert.Equal(t, types.ClassProtocol, classify(wire.ErrMalformed).Class)
	assert.Equal(t, types.ClassProtocol, classify(channel.ErrUnknownComponent).Class)
	assert.Equal(t, types.ClassProtocol, classify(ErrUnexpectedMessage).Class)
	assert.Equal(t, types.ClassNetwork, classify(io.EOF).Class)
	assert.Equal(t, types.ClassRestart, classify(types.NewRestartError()).Class)

	wrapped := classify(errors.Join(errors.New("ctx"), wire.ErrFrameTooLarge))
	assert.Equal(t, types.ClassProtocol, wrapped.Class)
}
