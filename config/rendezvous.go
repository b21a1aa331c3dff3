package config

import (
	"fmt"
	"time"
)

// 打洞准备阶段的可选套接字策略
const (
	// SetupTolerant 可选套接字绑定失败只减少直连策略
	SetupTolerant = "tolerant"
	// SetupStrict 任一可选套接字失败即放弃直连，仅请求代理
	SetupStrict = "strict"
)

// RendezvousConfig 会合、打洞与代理配置
type RendezvousConfig struct {
	// TCPPort TCP 会合服务端口
	TCPPort int `json:"tcp_port"`

	// UDPPort UDP 会合服务端口（控制连接与 attach 报文共用）
	UDPPort int `json:"udp_port"`

	// TCPWaitBudget TCP 连接请求整体等待时间
	TCPWaitBudget Duration `json:"tcp_wait_budget"`

	// UDPWaitBudget UDP 连接请求整体等待时间
	UDPWaitBudget Duration `json:"udp_wait_budget"`

	// TCPTraversalTimeout TCP 直连竞速期限
	TCPTraversalTimeout Duration `json:"tcp_traversal_timeout"`

	// UDPTraversalTimeout UDP 打洞竞速期限
	UDPTraversalTimeout Duration `json:"udp_traversal_timeout"`

	// EnableP2P 是否尝试直连；关闭后总是请求代理
	EnableP2P bool `json:"enable_p2p"`

	// SetupPolicy 可选套接字失败策略（tolerant / strict）
	SetupPolicy string `json:"setup_policy"`

	// SocketBufferSize 套接字缓冲区提示，0 表示系统默认
	SocketBufferSize int `json:"socket_buffer_size,omitempty"`
}

// DefaultRendezvousConfig 返回默认会合配置
func DefaultRendezvousConfig() RendezvousConfig {
	return RendezvousConfig{
		TCPPort:             8701,
		UDPPort:             8702,
		TCPWaitBudget:       Duration(30 * time.Second),
		UDPWaitBudget:       Duration(40 * time.Second),
		TCPTraversalTimeout: Duration(4 * time.Second),
		UDPTraversalTimeout: Duration(7 * time.Second),
		EnableP2P:           true,
		SetupPolicy:         SetupTolerant,
	}
}

// Validate 校验会合配置
func (c *RendezvousConfig) Validate() error {
	for name, p := range map[string]int{"tcp_port": c.TCPPort, "udp_port": c.UDPPort} {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("rendezvous: %s out of range", name)
		}
	}
	if c.TCPTraversalTimeout <= 0 || c.UDPTraversalTimeout <= 0 {
		return fmt.Errorf("rendezvous: traversal timeouts must be positive")
	}
	if c.TCPWaitBudget <= c.TCPTraversalTimeout || c.UDPWaitBudget <= c.UDPTraversalTimeout {
		return fmt.Errorf("rendezvous: wait budget must exceed traversal timeout")
	}
	switch c.SetupPolicy {
	case SetupTolerant, SetupStrict:
	case "":
		c.SetupPolicy = SetupTolerant
	default:
		return fmt.Errorf("rendezvous: unknown setup_policy %q", c.SetupPolicy)
	}
	if c.SocketBufferSize < 0 {
		return fmt.Errorf("rendezvous: socket_buffer_size must be >= 0")
	}
	return nil
}
