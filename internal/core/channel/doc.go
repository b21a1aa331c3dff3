// Package channel 实现分帧消息通道
//
// Channel 包装一条流式连接，按帧收发完整消息，并按帧体首字节
// （组件 ID）把入站消息路由到登记的处理器。会话通道与会合控制
// 通道都使用该抽象。
//
// 生命周期：
//
//	New -> [WriteSync/ReadSync 握手] -> SetMaxMessage -> Start -> Close
//
// Start 之后由读协程分发消息，由写协程发送队列中的消息；Send
// 不阻塞调用方。处理器在构造时传入的 Locker 保护下执行，这样会话
// 内各组件共享同一把锁，依赖方在锁内检查 Closed() 即可。
//
// 读写错误、未登记的组件以及处理器返回的错误都会关闭通道，并
// 异步调用 OnError。显式 Close 不触发 OnError。
package channel
