// Package recovery 提供会话重连的退避策略
//
// 退避表按尝试次数索引（网络类错误）：
//
//	尝试次数: 0  1  2  3  4   5   6   7+
//	等待秒数: 1  1  2  5  10  20  40  60
//
// 非网络类的可重试错误固定等待 60 秒；不可重试的错误（口令、
// 配置、版本不兼容等）不再自动重连。尝试计数在 11 处饱和。
package recovery
