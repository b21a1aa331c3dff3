package config

import (
	"errors"
	"time"
)

// ResolverConfig 服务器名解析配置
type ResolverConfig struct {
	// Timeout 单次解析超时
	Timeout Duration `json:"timeout"`

	// CacheTTL 成功结果的缓存时间
	CacheTTL Duration `json:"cache_ttl"`

	// CacheSize 缓存条目上限
	CacheSize int `json:"cache_size"`

	// CustomResolver 自定义 DNS 服务器 "ip:port"，为空使用系统解析器
	CustomResolver string `json:"custom_resolver,omitempty"`
}

// DefaultResolverConfig 返回默认解析配置
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Timeout:   Duration(5 * time.Second),
		CacheTTL:  Duration(5 * time.Minute),
		CacheSize: 64,
	}
}

// Validate 校验解析配置
func (c *ResolverConfig) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("resolver: timeout must be positive")
	}
	if c.CacheSize < 1 {
		return errors.New("resolver: cache_size must be >= 1")
	}
	return nil
}
