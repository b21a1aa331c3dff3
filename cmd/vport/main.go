// Package main 提供 vport 命令行入口
//
// 连接协调服务器后，可选地打开一条到远端服务虚拟端口的连接，
// 并把标准输入/输出接到该连接上。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	vport "github.com/dep2p/go-vport"
	"github.com/dep2p/go-vport/internal/util/logger"
	"github.com/dep2p/go-vport/pkg/types"
)

var log = logger.Logger("vport/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 身份（覆盖配置文件与环境变量）
	// ─────────────────────────────────────────────────────────────────────
	configFile = flag.String("config", "", "配置文件路径（JSON）")
	serverHost = flag.String("server", "", "协调服务器主机名，可带端口")
	clientKey  = flag.String("client", "", "客户端键")
	password   = flag.String("password", "", "口令（非空时使用口令握手）")

	// ─────────────────────────────────────────────────────────────────────
	// 虚拟端口连接
	// ─────────────────────────────────────────────────────────────────────
	service    = flag.String("service", "", "远端服务 ID（为空时只维持会话）")
	remotePort = flag.Uint64("port", 0, "远端虚拟端口")
	useUDP     = flag.Bool("udp", false, "使用 UDP 连接")
	proxyOnly  = flag.Bool("proxy-only", false, "跳过直连，只走代理")

	// ─────────────────────────────────────────────────────────────────────
	// 其它
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(vport.VersionInfo())
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("启动 vport 客户端", "version", vport.Version, "commit", vport.GitCommit)
	ep, err := vport.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = ep.Close() }()

	stopWatch, err := ep.OnConnectivityChange(printConnectivity)
	if err != nil {
		return err
	}
	defer stopWatch()

	id := ep.Identity()
	fmt.Printf("客户端 %s → %s\n", id.ClientKey, id.ServerHost)
	ep.Connect()

	if *service == "" {
		fmt.Println("会话已启动，按 Ctrl+C 退出")
		<-ctx.Done()
		fmt.Println("\n正在关闭...")
		return nil
	}

	conn, mode, err := dial(ctx, ep)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Fprintf(os.Stderr, "已连接 %s:%d（%s）\n", *service, *remotePort, mode)
	return pipe(ctx, conn)
}

// buildOptions 构建选项
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（VPORT_* 前缀）
//  3. 配置文件
//  4. 默认值
func buildOptions() ([]vport.Option, error) {
	cfg, err := loadConfig(*configFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置文件失败: %w", err)
	}
	applyEnvOverrides(cfg)

	opts := []vport.Option{vport.WithConfig(cfg)}
	if *serverHost != "" {
		opts = append(opts, vport.WithServerHost(*serverHost))
	}
	if *clientKey != "" {
		opts = append(opts, vport.WithClientKey(*clientKey))
	}
	if isFlagSet("password") {
		opts = append(opts, vport.WithPassword(*password))
	}
	return opts, nil
}

// dial 等待会话就绪后打开虚拟端口连接
func dial(ctx context.Context, ep *vport.Endpoint) (net.Conn, types.ConnectMode, error) {
	if *remotePort == 0 || *remotePort > 0xFFFFFFFF {
		return nil, 0, fmt.Errorf("无效的虚拟端口: %d", *remotePort)
	}
	if err := waitConnected(ctx, ep); err != nil {
		return nil, 0, err
	}

	done := make(chan connResult, 1)
	copts := vport.ConnectOptions{ProxyOnly: *proxyOnly}
	id := types.ServiceID(*service)
	port := uint32(*remotePort)

	if *useUDP {
		err := ep.ConnectUDP(id, port, copts, func(r vport.UDPResult) {
			if r.Err != nil {
				done <- connResult{err: r.Err}
				return
			}
			done <- connResult{conn: r.Conn, mode: r.Mode}
		}, nil)
		if err != nil {
			return nil, 0, err
		}
	} else {
		err := ep.ConnectTCP(id, port, copts, func(r vport.TCPResult) {
			done <- connResult{conn: r.Conn, mode: r.Mode, err: r.Err}
		}, nil)
		if err != nil {
			return nil, 0, err
		}
	}

	r, err := awaitResult(ctx, done)
	if err != nil {
		return nil, 0, err
	}
	if r.err != nil {
		return nil, 0, fmt.Errorf("连接 %s:%d 失败: %w", id, port, r.err)
	}
	return r.conn, r.mode, nil
}

// connResult 连接回调的结果
type connResult struct {
	conn net.Conn
	mode types.ConnectMode
	err  error
}

// awaitResult 等待连接结果；ctx 先结束时在后台关闭迟到的连接
func awaitResult(ctx context.Context, done <-chan connResult) (connResult, error) {
	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return connResult{}, ctx.Err()
	}
}

// waitConnected 轮询直到会话进入 Connected
func waitConnected(ctx context.Context, ep *vport.Endpoint) error {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for ep.Connectivity().State != types.Connected {
		select {
		case <-tick.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// pipe 双向拷贝标准输入输出与连接，任一方向结束即返回
func pipe(ctx context.Context, conn net.Conn) error {
	errc := make(chan error, 2)
	go func() {
		_, err := io.Copy(conn, os.Stdin)
		errc <- err
	}()
	go func() {
		_, err := io.Copy(os.Stdout, conn)
		errc <- err
	}()

	select {
	case err := <-errc:
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return nil
	}
}

func printConnectivity(evt types.EvtConnectivityChanged) {
	if evt.Current.Err != nil {
		fmt.Fprintf(os.Stderr, "连通状态: %s → %s（%v）\n", evt.Previous, evt.Current.State, evt.Current.Err)
		return
	}
	fmt.Fprintf(os.Stderr, "连通状态: %s → %s\n", evt.Previous, evt.Current.State)
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
