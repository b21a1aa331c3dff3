package vport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-vport/config"
	"github.com/dep2p/go-vport/internal/core/eventbus"
	"github.com/dep2p/go-vport/internal/core/liveness"
	"github.com/dep2p/go-vport/internal/core/nat/holepunch"
	"github.com/dep2p/go-vport/internal/core/rendezvous"
	"github.com/dep2p/go-vport/internal/core/session"
	"github.com/dep2p/go-vport/internal/util/logger"
	"github.com/dep2p/go-vport/pkg/types"
)

var log = logger.Logger("vport")

// stopTimeout 关闭时等待各模块停止的期限
const stopTimeout = 10 * time.Second

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

// ConnectOptions 单次连接的传输选项
type ConnectOptions = rendezvous.Options

// DatagramConn 绑定到单个远端的 UDP 连接
type DatagramConn = holepunch.DatagramConn

// TCPResult TCP 连接结果
type TCPResult = rendezvous.Result[net.Conn]

// UDPResult UDP 连接结果
type UDPResult = rendezvous.Result[*DatagramConn]

// ════════════════════════════════════════════════════════════════════════════
//                              Endpoint
// ════════════════════════════════════════════════════════════════════════════

// Endpoint 虚拟端口客户端端点
//
// 维持与协调服务器的会话通道，并通过会合服务器建立到远端服务虚拟端口
// 的 TCP/UDP 连接（优先直连，失败回退代理）。
//
// 使用示例：
//
//	ep, err := vport.New(ctx,
//	    vport.WithServerHost("coord.example.com"),
//	    vport.WithClientKey("my-client"),
//	)
//	if err != nil { ... }
//	defer ep.Close()
//
//	ep.Connect()
//	err = ep.ConnectTCP("svc-1", 80, vport.ConnectOptions{}, func(r vport.TCPResult) {
//	    if r.Err != nil { ... }
//	    defer r.Conn.Close()
//	}, nil)
type Endpoint struct {
	app       *fx.App
	cfg       *config.Config
	directory ServiceDirectory

	// 由 fx 填充
	manager *session.Manager
	monitor *liveness.Monitor
	tcp     *rendezvous.Broker[net.Conn]
	udp     *rendezvous.Broker[*holepunch.DatagramConn]
	bus     *eventbus.Bus

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New 创建并启动端点
//
// 端点启动后处于 Disconnected，调用 Connect 开始连接协调服务器。
func New(ctx context.Context, opts ...Option) (*Endpoint, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	cfg, err := o.toConfig()
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	e := &Endpoint{
		cfg:       cfg,
		directory: o.directory,
	}
	e.app = buildFxApp(cfg, o, e)
	if err := e.app.Err(); err != nil {
		return nil, fmt.Errorf("build endpoint: %w", err)
	}
	if err := e.app.Start(ctx); err != nil {
		return nil, fmt.Errorf("start endpoint: %w", err)
	}
	log.Info("端点已创建", "server", cfg.Endpoint.ServerHost, "client", cfg.Endpoint.ClientKey)
	return e, nil
}

// Config 返回生效配置
func (e *Endpoint) Config() *config.Config { return e.cfg }

// Identity 返回端点身份
func (e *Endpoint) Identity() types.Identity { return e.manager.Identity() }

// ════════════════════════════════════════════════════════════════════════════
//                              会话
// ════════════════════════════════════════════════════════════════════════════

// Connect 开始连接协调服务器，断线后自动重连
func (e *Endpoint) Connect() {
	e.manager.Connect()
}

// Disconnect 断开会话并停止自动重连
func (e *Endpoint) Disconnect() {
	e.manager.Disconnect()
}

// Connectivity 返回当前连通状态
func (e *Endpoint) Connectivity() types.Connectivity {
	return e.manager.Connectivity()
}

// SetPingPeriod 设置本地心跳周期，0 表示使用服务器要求或默认值
func (e *Endpoint) SetPingPeriod(d time.Duration) {
	e.manager.SetLocalPingPeriod(d)
}

// PingPeriod 返回当前生效的心跳周期
func (e *Endpoint) PingPeriod() time.Duration {
	sctx := e.manager.Context()
	sctx.Lock()
	defer sctx.Unlock()
	return e.monitor.Period()
}

// OnConnectivityChange 登记连通状态回调
//
// 回调在独立协程中按顺序执行；登记时会先收到当前状态（若已有变化）。
// 回调处理过慢时较早的事件会被丢弃，最新状态总会送达。
// 返回的 cancel 取消登记，可重复调用。
func (e *Endpoint) OnConnectivityChange(fn func(types.EvtConnectivityChanged)) (cancel func(), err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEndpointClosed
	}
	sub, err := eventbus.Subscribe[types.EvtConnectivityChanged](e.bus)
	if err != nil {
		return nil, err
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for evt := range sub.Out() {
			fn(evt)
		}
	}()
	return func() { _ = sub.Close() }, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              虚拟端口连接
// ════════════════════════════════════════════════════════════════════════════

// ConnectTCP 请求到远端服务虚拟端口的 TCP 连接
//
// 服务或本端不在线时同步返回错误，onResult 不会被调用；
// 否则 onResult 在工作池中恰好调用一次。
func (e *Endpoint) ConnectTCP(service types.ServiceID, port uint32, opts ConnectOptions, onResult func(TCPResult), attachment any) error {
	if e.isClosed() {
		return ErrEndpointClosed
	}
	return e.tcp.Connect(e.service(service), port, opts, onResult, attachment)
}

// ConnectUDP 请求到远端服务虚拟端口的 UDP 连接
func (e *Endpoint) ConnectUDP(service types.ServiceID, port uint32, opts ConnectOptions, onResult func(UDPResult), attachment any) error {
	if e.isClosed() {
		return ErrEndpointClosed
	}
	return e.udp.Connect(e.service(service), port, opts, onResult, attachment)
}

// ServiceOffline 外部成员管理层报告服务离线，以 ErrServiceOffline 结束相关请求
func (e *Endpoint) ServiceOffline(service types.ServiceID) {
	e.tcp.ServiceOffline(service)
	e.udp.ServiceOffline(service)
}

// PendingRequests 返回指定传输的待决请求数
func (e *Endpoint) PendingRequests(t types.Transport) int {
	if t == types.TransportUDP {
		return e.udp.Pending()
	}
	return e.tcp.Pending()
}

func (e *Endpoint) service(id types.ServiceID) types.ServiceRef {
	return serviceRef{id: id, dir: e.directory}
}

// serviceRef 由目录判断在线状态的服务引用
type serviceRef struct {
	id  types.ServiceID
	dir ServiceDirectory
}

func (s serviceRef) ID() types.ServiceID { return s.id }

func (s serviceRef) Online() bool {
	return s.dir == nil || s.dir.IsOnline(s.id)
}

// ════════════════════════════════════════════════════════════════════════════
//                              关闭
// ════════════════════════════════════════════════════════════════════════════

// Close 关闭端点
//
// 断开会话，所有待决请求以 ErrClientOffline 结束，状态回调收到最后的
// Disconnected 后退出。
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	// 停止顺序：会话 → 事件总线（关闭全部订阅）→ 工作池
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err := e.app.Stop(ctx)
	e.wg.Wait()

	log.Info("端点已关闭")
	return err
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
