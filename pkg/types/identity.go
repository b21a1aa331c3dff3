package types

import "strings"

// Identity 端点身份，构造后不可变
type Identity struct {
	// Scheme 单服务/多服务
	Scheme Scheme

	// Stateful 是否有状态
	Stateful bool

	// ClientKey 客户端键
	ClientKey string

	// ServerHost 协调服务器主机名，可带端口
	ServerHost string

	// Password 口令（为空表示非口令类别）
	Password string
}

// Validate 校验身份
func (id Identity) Validate() error {
	if strings.TrimSpace(id.ServerHost) == "" {
		return ErrEmptyServerHost
	}
	if id.ClientKey == "" {
		return ErrEmptyClientKey
	}
	if id.Scheme != SchemeSingleService && id.Scheme != SchemeMultiService {
		return ErrInvalidScheme
	}
	return nil
}

// Category 计算握手类别
func (id Identity) Category() Category {
	var c Category
	if id.Scheme == SchemeMultiService {
		c |= CategoryMultiService
	}
	if id.Stateful {
		c |= CategoryStateful
	}
	if id.Password != "" {
		c |= CategoryCredentialed
	}
	return c
}

// Credentialed 是否需要口令握手
func (id Identity) Credentialed() bool {
	return id.Password != ""
}
