package holepunch

// State 连接器状态
type State int

const (
	// StateInitial UDP 初始状态：挂接会合服务器
	StateInitial State = iota
	// StateP2PMode 已请求直连参数
	StateP2PMode
	// StateP2PHandshake 直连竞速中
	StateP2PHandshake
	// StateProxyMode 已请求代理
	StateProxyMode
	// StateProxyHandshake 中继握手中
	StateProxyHandshake
	// StateCompleted 终止状态
	StateCompleted
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateP2PMode:
		return "p2p-mode"
	case StateP2PHandshake:
		return "p2p-handshake"
	case StateProxyMode:
		return "proxy-mode"
	case StateProxyHandshake:
		return "proxy-handshake"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}
