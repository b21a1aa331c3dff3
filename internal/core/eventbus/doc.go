// Package eventbus 实现类型化的事件总线
//
// 每个事件类型对应一个节点，节点持有订阅者列表与（有状态模式下）
// 最近一次事件。订阅者通过带缓冲的通道接收事件；缓冲区满时丢弃
// 最旧的事件并周期性告警，最新事件总会进入缓冲区，发射方永不阻塞。
//
// 有状态发射器（Stateful）会让晚到的订阅者立即收到最近一次事件，
// 连通状态事件即以此方式发布。
package eventbus
