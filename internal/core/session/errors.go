package session

import (
	"errors"

	"github.com/dep2p/go-vport/internal/core/channel"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrUnexpectedMessage 握手或状态组件收到非预期消息
	ErrUnexpectedMessage = errors.New("session: unexpected message")

	// ErrEmptySessionID 服务器未分配会话 ID
	ErrEmptySessionID = errors.New("session: server returned empty session id")

	// ErrNoAddress 服务器名没有可用地址
	ErrNoAddress = errors.New("session: no server address")

	// ErrManagerClosed 会话管理器已关闭
	ErrManagerClosed = errors.New("session: manager closed")
)

// classify 把通道/握手错误归入连通性错误分类
func classify(err error) *types.ConnectivityError {
	var ce *types.ConnectivityError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, wire.ErrMalformed),
		errors.Is(err, wire.ErrShortMessage),
		errors.Is(err, wire.ErrUnknownTag),
		errors.Is(err, wire.ErrFrameTooLarge),
		errors.Is(err, wire.ErrMissingField),
		errors.Is(err, channel.ErrUnknownComponent),
		errors.Is(err, ErrUnexpectedMessage),
		errors.Is(err, ErrEmptySessionID):
		return types.NewProtocolError(err)
	}
	return types.NewNetworkError(err)
}
