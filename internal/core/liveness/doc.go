// Package liveness 实现会话通道的心跳检测
//
// 有效心跳周期：服务器要求的周期优先于本地配置，二者都未设置时
// 为 300 秒。
//
// 检查由单个定时任务驱动，每次执行后重新安排：
//
//   - 没有未决 Ping：对端静默达到 period-3 秒即发送 PING；否则按
//     剩余时间重新安排。若本端静默将在下次检查前超过 300 秒上限，
//     先发送 KEEP_ALIVE，避免服务器一侧超时。
//   - 有未决 Ping：发送之后收到过任何消息即清除；超过容忍时间
//     （周期大于 60 秒时为 60 秒，否则为整个周期）仍无输入，则以
//     网络错误关闭通道，由会话管理器决定重连。
//
// 周期变更时按当前时间重新计算剩余等待，不重置 Ping 的发送时间。
package liveness
