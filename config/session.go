package config

import (
	"errors"
	"time"
)

// SessionConfig 会话通道配置
type SessionConfig struct {
	// Port 会话服务端口（ServerHost 未带端口时使用）
	Port int `json:"port"`

	// ConnectTimeout 单次 TCP 拨号超时
	ConnectTimeout Duration `json:"connect_timeout"`

	// HandshakeTimeout 握手整体超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// HandshakeMaxMessage 握手阶段单条报文上限
	HandshakeMaxMessage int `json:"handshake_max_message"`

	// MaxMessage 握手完成后单条报文上限
	MaxMessage int `json:"max_message"`

	// SendQueue 发送队列长度
	SendQueue int `json:"send_queue"`
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Port:                8700,
		ConnectTimeout:      Duration(10 * time.Second),
		HandshakeTimeout:    Duration(20 * time.Second),
		HandshakeMaxMessage: 4 * 1024,
		MaxMessage:          16 * 1024 * 1024,
		SendQueue:           256,
	}
}

// Validate 校验会话配置
func (c *SessionConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("session: port out of range")
	}
	if c.ConnectTimeout <= 0 || c.HandshakeTimeout <= 0 {
		return errors.New("session: timeouts must be positive")
	}
	if c.HandshakeMaxMessage <= 0 || c.MaxMessage < c.HandshakeMaxMessage {
		return errors.New("session: max_message must be >= handshake_max_message > 0")
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	return nil
}
