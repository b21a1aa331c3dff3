package config

import (
	"fmt"

	"github.com/dep2p/go-vport/pkg/types"
)

// EndpointConfig 端点身份配置
type EndpointConfig struct {
	// ServerHost 协调服务器主机名（可带端口）
	ServerHost string `json:"server_host"`

	// ClientKey 客户端键
	ClientKey string `json:"client_key"`

	// Scheme "single" 或 "multi"
	Scheme string `json:"scheme"`

	// Stateful 是否有状态端点
	Stateful bool `json:"stateful"`

	// Password 口令，非空时使用口令握手
	Password string `json:"password,omitempty"`
}

// DefaultEndpointConfig 返回默认端点配置
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{Scheme: "single"}
}

// Identity 转换为 types.Identity
func (c *EndpointConfig) Identity() (types.Identity, error) {
	scheme, err := types.ParseScheme(c.Scheme)
	if err != nil {
		return types.Identity{}, err
	}
	id := types.Identity{
		Scheme:     scheme,
		Stateful:   c.Stateful,
		ClientKey:  c.ClientKey,
		ServerHost: c.ServerHost,
		Password:   c.Password,
	}
	return id, id.Validate()
}

// Validate 校验端点配置
func (c *EndpointConfig) Validate() error {
	if _, err := c.Identity(); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	return nil
}
