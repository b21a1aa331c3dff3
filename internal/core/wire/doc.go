// Package wire 定义会话通道与会合控制通道的消息格式
//
// 帧格式：
//
//	+----------------+-----------+-----+------------------+
//	| length (4, BE) | component | tag | payload (TLV)    |
//	+----------------+-----------+-----+------------------+
//
// component 决定消息路由到通道上的哪个处理器，tag 为该组件内的
// 消息类型，payload 使用 protowire 编码的字段序列。
//
// 除帧消息外，本包还定义三种定长数据报：UDP 挂接包（VATT）、
// 打洞包（VPUN）和代理头（VPRX）。
//
// 未知的组件、标签或代码一律作为格式错误拒绝。
package wire
