package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-vport/internal/util/logger"
)

var log = logger.Logger("scheduler")

// 任务状态
const (
	taskPending int32 = iota
	taskFired
	taskCancelled
)

// Task 一次性定时任务
type Task struct {
	owner *Scheduler
	timer *clock.Timer
	state atomic.Int32
	fn    func()
}

// Cancel 取消任务
//
// 返回 true 表示回调不会再执行。
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	if !t.state.CompareAndSwap(taskPending, taskCancelled) {
		return false
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.owner.forget(t)
	return true
}

// Pending 任务是否仍在等待触发
func (t *Task) Pending() bool {
	return t != nil && t.state.Load() == taskPending
}

func (t *Task) fire() {
	if !t.state.CompareAndSwap(taskPending, taskFired) {
		return
	}
	t.owner.forget(t)
	defer func() {
		if r := recover(); r != nil {
			log.Error("定时任务 panic", "panic", r)
		}
	}()
	t.fn()
}

// Scheduler 定时任务服务
type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	tasks   map[*Task]struct{}
	stopped bool
}

// New 创建定时任务服务，clk 为 nil 时使用真实时钟
func New(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock: clk,
		tasks: make(map[*Task]struct{}),
	}
}

// Clock 返回时间源
func (s *Scheduler) Clock() clock.Clock { return s.clock }

// Now 返回当前时间
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// Schedule 在 delay 之后执行 fn 一次
//
// 服务已停止时返回一个已取消的任务。
func (s *Scheduler) Schedule(delay time.Duration, fn func()) *Task {
	t := &Task{owner: s, fn: fn}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		t.state.Store(taskCancelled)
		return t
	}
	s.tasks[t] = struct{}{}
	s.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	t.timer = s.clock.AfterFunc(delay, t.fire)
	return t
}

// Len 返回未触发的任务数
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop 取消全部任务，之后的 Schedule 不再生效
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	pending := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		pending = append(pending, t)
	}
	s.mu.Unlock()

	for _, t := range pending {
		t.Cancel()
	}
	log.Debug("定时任务服务已停止", "cancelled", len(pending))
}

func (s *Scheduler) forget(t *Task) {
	s.mu.Lock()
	delete(s.tasks, t)
	s.mu.Unlock()
}
