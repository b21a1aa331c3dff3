// Package session 管理与协调服务器之间的会话通道
//
// Manager 负责连接、断开、关闭与握手，并维护连通状态：
//
//	Disconnected -> AttemptingToConnect -> Connected -> Disconnected | Down
//
// 一次连接尝试依次执行：解析服务器名 -> TCP 拨号 -> 握手（OPEN 或
// RESTORE，口令类别额外一轮 SALT/HASH 交换）。握手成功后提升通道
// 报文上限，通知各依赖方（Dependent），再经 Installer 完成上层安装，
// 此后状态才为 Connected。
//
// 失败按错误分类处理：网络、协议、重启类错误按退避表自动重连；
// 口令错误等不可重试错误使状态进入 Down，直到再次显式 Connect。
//
// 会话内的状态变更、心跳与连接代理的簿记共享 Context 中的一把锁；
// 通道处理器与 Dependent 回调都在该锁内执行。阻塞 I/O（解析、拨号、
// 握手）在独立协程中进行，不持有锁。
package session
