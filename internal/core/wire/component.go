package wire

// Component 组件 ID，帧体第 0 字节
type Component byte

// 组件 ID
const (
	// ComponentHandshake 会话握手；在会合控制通道上同一 ID 表示控制消息
	ComponentHandshake Component = 0
	// ComponentLiveness 心跳
	ComponentLiveness Component = 1
	// ComponentState 状态/心跳周期协商
	ComponentState Component = 2
	// ComponentTCPBroker TCP 连接代理
	ComponentTCPBroker Component = 3
	// ComponentUDPBroker UDP 连接代理
	ComponentUDPBroker Component = 4
	// ComponentRPC 外部 RPC 层保留
	ComponentRPC Component = 5
	// ComponentEvent 外部事件层保留
	ComponentEvent Component = 6
	// ComponentMembership 外部成员层保留
	ComponentMembership Component = 7
	// ComponentServiceGroup 外部服务组层保留
	ComponentServiceGroup Component = 8

	// ComponentControl 会合控制通道
	ComponentControl = ComponentHandshake
)

// String 返回组件名
func (c Component) String() string {
	switch c {
	case ComponentHandshake:
		return "handshake"
	case ComponentLiveness:
		return "liveness"
	case ComponentState:
		return "state"
	case ComponentTCPBroker:
		return "tcp-broker"
	case ComponentUDPBroker:
		return "udp-broker"
	case ComponentRPC:
		return "rpc"
	case ComponentEvent:
		return "event"
	case ComponentMembership:
		return "membership"
	case ComponentServiceGroup:
		return "service-group"
	default:
		return "unknown"
	}
}

// Tag 消息标签，帧体第 1 字节
type Tag byte

// 握手标签
const (
	TagOpen        Tag = 1
	TagRestore     Tag = 2
	TagHashAndKey2 Tag = 3

	TagSaltAndKey1    Tag = 10
	TagOpenOK         Tag = 11
	TagRestoreOK      Tag = 12
	TagOpenOK2        Tag = 13
	TagHandshakeError Tag = 14
)

// 心跳标签
const (
	TagPing      Tag = 1
	TagPong      Tag = 2
	TagKeepAlive Tag = 3
)

// 状态标签
const (
	TagPingPeriod Tag = 1
	TagRestart    Tag = 2
)

// 连接代理标签
const (
	TagRequest Tag = 1
	TagAuth    Tag = 2

	TagRzvData      Tag = 10
	TagRequestError Tag = 11
	TagAuthHash     Tag = 12
	TagAuthError    Tag = 13
)

// 会合控制通道标签
const (
	TagChallenge   Tag = 1
	TagAuthOK      Tag = 2
	TagP2PData     Tag = 3
	TagProxyData   Tag = 4
	TagPeerPunched Tag = 5
	TagFailed      Tag = 6

	TagHello        Tag = 10
	TagAuthResponse Tag = 11
	TagP2PRequest   Tag = 12
	TagProxyRequest Tag = 13
	TagP2PFailed    Tag = 14
	TagPunched      Tag = 15
	TagP2POK        Tag = 16
)

// Message 一条已拆帧的消息
type Message struct {
	Component Component
	Tag       Tag
	Payload   []byte
}

// Body 组装帧体
func Body(c Component, t Tag, payload []byte) []byte {
	b := make([]byte, 2, 2+len(payload))
	b[0] = byte(c)
	b[1] = byte(t)
	return append(b, payload...)
}

// ParseBody 拆分帧体
//
// 返回的 Payload 与 body 共享内存。
func ParseBody(body []byte) (Message, error) {
	if len(body) < 2 {
		return Message{}, ErrShortMessage
	}
	return Message{
		Component: Component(body[0]),
		Tag:       Tag(body[1]),
		Payload:   body[2:],
	}, nil
}
