package session

import (
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-vport/internal/core/metrics"
	"github.com/dep2p/go-vport/internal/core/scheduler"
)

// Context 会话上下文，由同一端点的各组件共享
type Context struct {
	mu sync.Mutex

	Scheduler *scheduler.Scheduler
	Workers   *scheduler.Workers
	Metrics   *metrics.Metrics
}

// NewContext 创建会话上下文
func NewContext(s *scheduler.Scheduler, w *scheduler.Workers, m *metrics.Metrics) *Context {
	return &Context{Scheduler: s, Workers: w, Metrics: m}
}

// Lock 获取会话锁
func (c *Context) Lock() { c.mu.Lock() }

// Unlock 释放会话锁
func (c *Context) Unlock() { c.mu.Unlock() }

// Locker 返回会话锁
func (c *Context) Locker() sync.Locker { return &c.mu }

// Clock 返回时间源
func (c *Context) Clock() clock.Clock { return c.Scheduler.Clock() }
