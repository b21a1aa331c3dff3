// Package metrics 提供基于 Prometheus 的指标收集
//
// 覆盖会话连接/断开、重连等待、连通状态、通道消息计数、
// 待决连接请求数以及对端连接结果（按传输、模式、结果划分）。
//
// 未启用时 New 返回 nil；*Metrics 的全部方法对 nil 接收者安全，
// 调用方无需判断。
package metrics
