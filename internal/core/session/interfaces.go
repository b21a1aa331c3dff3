package session

import (
	"context"
	"net/netip"
	"time"

	"github.com/dep2p/go-vport/internal/core/channel"
)

// Dependent 会话通道的依赖方
//
// 全部方法在会话锁内调用。
type Dependent interface {
	// Established 握手完成，通道尚未开始分发消息，可在此登记处理器
	Established(ch *channel.Channel)

	// Installed 上层安装完成，端点进入 Connected
	Installed()

	// Disconnected 通道已拆除；err 为 nil 表示显式断开
	Disconnected(err error)
}

// Installer 上层安装流程（服务/契约协商）
//
// 在工作池中执行，不持有会话锁；返回错误会拆除通道。
type Installer interface {
	Install(ctx context.Context, ch *channel.Channel) error
}

// InstallerFunc 函数形式的 Installer
type InstallerFunc func(ctx context.Context, ch *channel.Channel) error

// Install 实现 Installer
func (f InstallerFunc) Install(ctx context.Context, ch *channel.Channel) error {
	return f(ctx, ch)
}

// Resolver 服务器名解析
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]netip.Addr, error)
}

// PingPeriods 接收心跳周期变化，在会话锁内调用
type PingPeriods interface {
	SetLocalPeriod(d time.Duration)
	SetRemotePeriod(d time.Duration)
}
