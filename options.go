package vport

import (
	"context"
	"errors"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-vport/config"
	"github.com/dep2p/go-vport/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// ServiceDirectory 外部成员管理层提供的服务在线查询
type ServiceDirectory interface {
	IsOnline(id types.ServiceID) bool
}

// InstallFunc 会话建立后的上层安装流程
//
// 在工作池中执行，返回错误会拆除会话通道并按错误类别重连。
type InstallFunc func(ctx context.Context) error

// options 内部选项结构
type options struct {
	// 完整配置（WithConfig），其余选项在其上覆盖
	config *config.Config

	// 身份覆盖
	serverHost *string
	clientKey  *string
	password   *string

	directory ServiceDirectory
	installer InstallFunc

	clock    clock.Clock
	registry prometheus.Registerer

	fxOptions []fx.Option
}

func newOptions() *options {
	return &options{}
}

// toConfig 合并为最终配置
func (o *options) toConfig() (*config.Config, error) {
	cfg := o.config
	if cfg == nil {
		cfg = config.NewConfig()
	} else {
		// 不修改调用方持有的配置
		cp := *cfg
		cfg = &cp
	}
	if o.serverHost != nil {
		cfg.Endpoint.ServerHost = *o.serverHost
	}
	if o.clientKey != nil {
		cfg.Endpoint.ClientKey = *o.clientKey
	}
	if o.password != nil {
		cfg.Endpoint.Password = *o.password
	}
	if o.registry != nil {
		cfg.Metrics.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              选项函数
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置（通常来自 config.LoadFile）
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("vport: nil config")
		}
		o.config = cfg
		return nil
	}
}

// WithServerHost 设置协调服务器主机名，可带端口
func WithServerHost(host string) Option {
	return func(o *options) error {
		if host == "" {
			return errors.New("vport: empty server host")
		}
		o.serverHost = &host
		return nil
	}
}

// WithClientKey 设置客户端键
func WithClientKey(key string) Option {
	return func(o *options) error {
		if key == "" {
			return errors.New("vport: empty client key")
		}
		o.clientKey = &key
		return nil
	}
}

// WithPassword 设置口令；非空时使用口令握手
func WithPassword(password string) Option {
	return func(o *options) error {
		o.password = &password
		return nil
	}
}

// WithServiceDirectory 设置服务在线查询
//
// 未设置时所有服务视为在线，离线由协调服务器的 REQUEST_ERROR 报告。
func WithServiceDirectory(d ServiceDirectory) Option {
	return func(o *options) error {
		o.directory = d
		return nil
	}
}

// WithInstaller 设置会话建立后的上层安装流程
func WithInstaller(fn InstallFunc) Option {
	return func(o *options) error {
		o.installer = fn
		return nil
	}
}

// WithClock 使用指定时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithRegistry 把指标注册到指定注册表，并启用指标
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registry = reg
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
