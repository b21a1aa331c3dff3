// Package config 提供 vport 的统一配置
//
// 结构与约定：
//   - 主 Config 聚合各子配置，每个子配置在独立文件中定义
//   - 每个子配置提供 DefaultXxxConfig() 与 Validate()
//   - 时长字段使用 Duration，JSON 中可写 "30s" 或纳秒数
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Endpoint.ServerHost = "coord.example.com"
//	cfg.Endpoint.ClientKey = "device-42"
//
//	cfg, err := config.LoadFile("vport.json")
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config vport 完整配置
type Config struct {
	// Endpoint 端点身份
	Endpoint EndpointConfig `json:"endpoint"`

	// Session 会话通道
	Session SessionConfig `json:"session"`

	// Liveness 存活检测
	Liveness LivenessConfig `json:"liveness"`

	// Rendezvous 会合与打洞
	Rendezvous RendezvousConfig `json:"rendezvous"`

	// Workers 回调工作池
	Workers WorkersConfig `json:"workers"`

	// Metrics 指标
	Metrics MetricsConfig `json:"metrics"`

	// Resolver 服务器名解析
	Resolver ResolverConfig `json:"resolver"`
}

// NewConfig 创建默认配置
//
// Endpoint 中的 ServerHost / ClientKey 没有默认值，需要调用方填写。
func NewConfig() *Config {
	return &Config{
		Endpoint:   DefaultEndpointConfig(),
		Session:    DefaultSessionConfig(),
		Liveness:   DefaultLivenessConfig(),
		Rendezvous: DefaultRendezvousConfig(),
		Workers:    DefaultWorkersConfig(),
		Metrics:    DefaultMetricsConfig(),
		Resolver:   DefaultResolverConfig(),
	}
}

// Validate 依次校验所有子配置
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.Endpoint,
		&c.Session,
		&c.Liveness,
		&c.Rendezvous,
		&c.Workers,
		&c.Metrics,
		&c.Resolver,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FromJSON 在默认配置之上解析 JSON
//
// JSON 中未出现的字段保持默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从文件加载配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return FromJSON(data)
}

// ToJSON 序列化为带缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
