// Package types 定义 vport 的基础类型
//
// 包括：
//   - 端点身份（Identity / Scheme / Category）
//   - 连通状态（Connectivity / ConnectivityState）
//   - 传输类型与连接模式（Transport / ConnectMode）
//   - 错误分类（ErrorClass / ConnectivityError）与应用级错误
//   - 事件类型（EvtConnectivityChanged）
package types
