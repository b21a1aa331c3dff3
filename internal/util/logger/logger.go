// Package logger 提供 vport 的分子系统日志
//
// 基于标准库 log/slog：
//   - 每个子系统一个 *slog.Logger，按需创建并缓存
//   - 通过 VPORT_LOG_LEVEL / VPORT_LOG_FORMAT / VPORT_LOG_ADD_SOURCE 配置
//   - 运行期可调整级别，已派生的 Logger（With(...)）同步生效
//
// 使用示例:
//
//	var log = logger.Logger("session")
//
//	log.Info("会话已建立", "sessionID", id)
//	log.Warn("连接失败，准备重试", "attempt", n, "err", err)
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 子系统 -> *slog.Logger
	loggers sync.Map

	// levels 子系统 -> *slog.LevelVar
	levels sync.Map
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回同一实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	lv := new(slog.LevelVar)
	lv.Set(cfg.LevelForSubsystem(subsystem))

	l := slog.New(newHandler(subsystem, lv, cfg))
	actual, loaded := loggers.LoadOrStore(subsystem, l)
	if !loaded {
		levels.Store(subsystem, lv)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统日志级别
func SetLevel(subsystem string, level slog.Level) {
	if lv, ok := levels.Load(subsystem); ok {
		lv.(*slog.LevelVar).Set(level)
	}
}

// SetGlobalLevel 设置所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	levels.Range(func(_, value any) bool {
		value.(*slog.LevelVar).Set(level)
		return true
	})
}

// Discard 返回丢弃所有输出的 Logger（测试用）
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// SetOutput 设置所有 Logger 的输出目标
//
// 已创建的 Logger 也会切换到新的 writer。
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}
