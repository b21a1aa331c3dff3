// Package scheduler 提供定时任务与回调工作池
//
// Scheduler 在指定延迟后执行一次回调，支持取消；时间源为
// github.com/benbjohnson/clock，测试中可替换为 Mock 时钟。
//
// Workers 是固定大小的工作池，用于把用户回调与 I/O 路径隔离：
// 回调不会在读循环或定时器协程上执行，也不会持有端点锁。
//
// 取消与触发的竞争由 Task 内部状态 CAS 决定：Cancel 返回 true
// 表示回调一定不会执行；返回 false 表示回调已开始或已被取消。
package scheduler
