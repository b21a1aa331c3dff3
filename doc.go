// Package vport 提供虚拟端口客户端的传输核心
//
// 端点（Endpoint）与协调服务器维持一条长期会话通道，并借助会合服务器
// 建立到远端服务虚拟端口的 TCP 或 UDP 连接：先并行尝试直连（TCP 同时
// 拨号与监听，UDP 打洞），期限内未成功则回退到中继代理。
//
// # 核心概念
//
//   - Endpoint: 用户交互的主入口，管理会话与连接请求
//   - Session: 与协调服务器之间的分帧消息通道，握手、自动重连、心跳
//   - Broker: 把连接请求转交协调服务器，并为每个会合参数启动连接器
//   - Connector: 一次对等连接尝试，直连与代理竞速，结果恰好报告一次
//
// # 快速开始
//
//	import "github.com/dep2p/go-vport"
//
//	ep, err := vport.New(ctx,
//	    vport.WithServerHost("coord.example.com"),
//	    vport.WithClientKey("client-1"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ep.Close()
//
//	cancel, _ := ep.OnConnectivityChange(func(evt types.EvtConnectivityChanged) {
//	    fmt.Println(evt.Previous, "->", evt.Current.State)
//	})
//	defer cancel()
//	ep.Connect()
//
//	err = ep.ConnectTCP("service-1", 80, vport.ConnectOptions{}, func(r vport.TCPResult) {
//	    if r.Err != nil {
//	        return
//	    }
//	    defer r.Conn.Close()
//	    // r.Mode: p2p 或 proxy
//	}, nil)
//
// # 连通状态
//
//	Disconnected ─Connect─► AttemptingToConnect ─握手+安装─► Connected
//	      ▲                        ▲                            │
//	      │                        └──── 网络/协议错误（退避）───┘
//	      └──── Disconnect / 凭据错误 / 不可重试的服务器错误 ─────┘
//
// # 文件组织
//
//   - endpoint.go: Endpoint 门面
//   - options.go: 配置选项
//   - fx.go: Fx 模块装配
//   - errors.go: 公共错误
//   - version.go: 版本信息
package vport
