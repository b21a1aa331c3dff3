package types

// ============================================================================
//                              Scheme - 端点形态
// ============================================================================

// Scheme 端点形态：单服务或多服务
type Scheme int

const (
	// SchemeSingleService 单服务端点
	SchemeSingleService Scheme = iota
	// SchemeMultiService 多服务端点
	SchemeMultiService
)

// String 返回形态名称
func (s Scheme) String() string {
	switch s {
	case SchemeSingleService:
		return "single"
	case SchemeMultiService:
		return "multi"
	default:
		return "unknown"
	}
}

// ParseScheme 解析形态名称
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "single", "":
		return SchemeSingleService, nil
	case "multi":
		return SchemeMultiService, nil
	default:
		return 0, ErrInvalidScheme
	}
}

// ============================================================================
//                              Category - 握手类别位
// ============================================================================

// Category 握手时上报的端点类别（位集合）
type Category uint8

const (
	// CategoryMultiService 多服务
	CategoryMultiService Category = 1 << iota
	// CategoryStateful 有状态
	CategoryStateful
	// CategoryCredentialed 需要口令
	CategoryCredentialed
)

// Has 检查是否包含某一位
func (c Category) Has(bit Category) bool {
	return c&bit != 0
}

// ============================================================================
//                              ConnectivityState - 连通状态
// ============================================================================

// ConnectivityState 端点连通状态
type ConnectivityState int

const (
	// Disconnected 未连接
	Disconnected ConnectivityState = iota
	// AttemptingToConnect 正在连接（含退避等待）
	AttemptingToConnect
	// Connected 已在线
	Connected
	// Down 终止状态，需显式 Connect 才会恢复
	Down
)

// String 返回状态名称
func (s ConnectivityState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case AttemptingToConnect:
		return "attempting"
	case Connected:
		return "connected"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// Connectivity 连通状态快照
type Connectivity struct {
	// State 当前状态
	State ConnectivityState

	// Err 导致本次状态变化的最近错误（可为 nil）
	Err error
}

// ============================================================================
//                              Transport / ConnectMode
// ============================================================================

// Transport 虚拟端口的传输类型
type Transport int

const (
	// TransportTCP TCP 虚拟端口
	TransportTCP Transport = iota
	// TransportUDP UDP 虚拟端口
	TransportUDP
)

// String 返回传输名称
func (t Transport) String() string {
	if t == TransportUDP {
		return "udp"
	}
	return "tcp"
}

// ConnectMode 连接建立方式
type ConnectMode int

const (
	// ModeP2P 直连（打洞成功）
	ModeP2P ConnectMode = iota
	// ModeProxy 服务器中继
	ModeProxy
)

// String 返回模式名称
func (m ConnectMode) String() string {
	if m == ModeProxy {
		return "proxy"
	}
	return "p2p"
}
