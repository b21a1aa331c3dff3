package vport

import (
	"errors"

	"github.com/dep2p/go-vport/pkg/types"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 端点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrEndpointClosed 端点已关闭
	ErrEndpointClosed = errors.New("endpoint closed")

	// ────────────────────────────────────────────────────────────────────────
	// 连接结果错误（与 pkg/types 相同，便于调用方直接比较）
	// ────────────────────────────────────────────────────────────────────────

	// ErrServiceOffline 目标服务不在线
	ErrServiceOffline = types.ErrServiceOffline

	// ErrClientOffline 本端未在线
	ErrClientOffline = types.ErrClientOffline

	// ErrAccessDenied 无权访问
	ErrAccessDenied = types.ErrAccessDenied

	// ErrPortUnreachable 虚拟端口不可达
	ErrPortUnreachable = types.ErrPortUnreachable

	// ErrConnectionAttemptFailed 连接尝试失败
	ErrConnectionAttemptFailed = types.ErrConnectionAttemptFailed

	// ErrTimeoutExpired 等待超时
	ErrTimeoutExpired = types.ErrTimeoutExpired
)
