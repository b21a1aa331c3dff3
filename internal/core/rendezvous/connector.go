package rendezvous

import (
	"io"

	"github.com/dep2p/go-vport/pkg/types"
)

// Options 单次连接的传输选项
type Options struct {
	// BufferSize 套接字缓冲区提示，0 表示使用配置
	BufferSize int

	// ProxyOnly 跳过直连，直接请求代理
	ProxyOnly bool
}

// Target RZV_DATA 给出的会合参数
type Target struct {
	RequestID    types.RequestID
	ConnectionID types.ConnectionID
	RzvServerID  uint64

	// Address 会合服务器地址，"host:port" 或仅 host
	Address string

	Options Options
}

// Outcome 连接器的最终结果
type Outcome[C io.Closer] struct {
	Conn C
	Mode types.ConnectMode
	Err  error
}

// AuthFunc 把会合服务器的挑战经会话转交给协调服务器
type AuthFunc func(challenge []byte) error

// Connector 一次对等连接尝试
//
// Start 不得阻塞；结果通过 Dialer.NewConnector 给出的回调恰好报告一次。
// Abort 可在任何状态调用，只停止进度并释放资源，不报告结果。
type Connector interface {
	Start()
	DeliverAuthHash(hash []byte)
	Abort()
}

// Dialer 按传输创建连接器
type Dialer[C io.Closer] interface {
	NewConnector(t Target, auth AuthFunc, done func(Outcome[C])) Connector
}

// DialerFunc 函数形式的 Dialer
type DialerFunc[C io.Closer] func(t Target, auth AuthFunc, done func(Outcome[C])) Connector

// NewConnector 实现 Dialer
func (f DialerFunc[C]) NewConnector(t Target, auth AuthFunc, done func(Outcome[C])) Connector {
	return f(t, auth, done)
}
