package holepunch

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-vport/config"
	"github.com/dep2p/go-vport/internal/core/session"
	"github.com/dep2p/go-vport/pkg/types"
)

// 固定参数
const (
	// ControlMaxMessage 控制通道单条消息上限
	ControlMaxMessage = 4 << 10

	// AttachAttempts UDP 挂接包发送次数
	AttachAttempts = 8

	// AttachBasePeriod UDP 挂接包基础间隔，第 n 次后等待 (n+1) 倍
	AttachBasePeriod = 200 * time.Millisecond

	// AttachGrace 挂接包发完后等待 P2P_DATA 的时间
	AttachGrace = 500 * time.Millisecond

	// PunchBursts 每个候选地址的打洞包个数
	PunchBursts = 3

	// PunchInterval 打洞包间隔
	PunchInterval = time.Second

	// DialRetryInterval TCP 直连失败后的重试间隔
	DialRetryInterval = 100 * time.Millisecond

	// DefaultProxyTimeout 中继握手期限
	DefaultProxyTimeout = 10 * time.Second
)

// Config 连接器配置
type Config struct {
	Transport types.Transport

	// Port 会合服务器默认端口（地址未带端口时使用）
	Port int

	// TraversalTimeout 直连竞速期限
	TraversalTimeout time.Duration

	// ProxyTimeout 中继握手期限
	ProxyTimeout time.Duration

	// EnableP2P 是否尝试直连
	EnableP2P bool

	// Strict 可选套接字失败即放弃直连
	Strict bool

	// BufferSize 套接字缓冲区提示
	BufferSize int

	// Resolver 会合服务器名解析，可为 nil（仅接受 IP 地址）
	Resolver session.Resolver

	Clock clock.Clock
}

// ConfigFrom 从全局配置取出指定传输的连接器配置
func ConfigFrom(cfg *config.Config, t types.Transport) Config {
	rc := cfg.Rendezvous
	c := Config{
		Transport:        t,
		Port:             rc.TCPPort,
		TraversalTimeout: rc.TCPTraversalTimeout.Duration(),
		ProxyTimeout:     DefaultProxyTimeout,
		EnableP2P:        rc.EnableP2P,
		Strict:           rc.SetupPolicy == config.SetupStrict,
		BufferSize:       rc.SocketBufferSize,
	}
	if t == types.TransportUDP {
		c.Port = rc.UDPPort
		c.TraversalTimeout = rc.UDPTraversalTimeout.Duration()
	}
	return c
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.ProxyTimeout <= 0 {
		c.ProxyTimeout = DefaultProxyTimeout
	}
	if c.TraversalTimeout <= 0 {
		c.TraversalTimeout = 4 * time.Second
		if c.Transport == types.TransportUDP {
			c.TraversalTimeout = 7 * time.Second
		}
	}
	return c
}
