package types

// ServiceID 远端服务标识
type ServiceID string

// String 返回字符串
func (s ServiceID) String() string { return string(s) }

// ShortString 返回便于日志的短形式
func (s ServiceID) ShortString() string {
	if len(s) > 8 {
		return string(s[:8])
	}
	return string(s)
}

// RequestID 连接请求标识（会话内唯一）
type RequestID uint32

// ConnectionID 会合服务器分配的连接标识
type ConnectionID uint64

// ServiceRef 远端服务引用
//
// 由外部成员管理层提供；核心只需要标识与在线状态。
type ServiceRef interface {
	ID() ServiceID
	Online() bool
}
