package scheduler

import (
	"errors"
	"sync"
)

// ErrWorkersClosed 工作池已关闭
var ErrWorkersClosed = errors.New("worker pool closed")

// Workers 固定大小的回调工作池
//
// 队列不设上限，Submit 从不阻塞，持有会话锁时也可以提交。
type Workers struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	hint    int
	closed  bool
}

// NewWorkers 创建工作池，queue 为队列的初始容量
func NewWorkers(size, queue int) *Workers {
	if size < 1 {
		size = 1
	}
	if queue < 1 {
		queue = 1
	}
	w := &Workers{
		pending: make([]func(), 0, queue),
		hint:    queue,
	}
	w.cond = sync.NewCond(&w.mu)
	w.wg.Add(size)
	for i := 0; i < size; i++ {
		go w.loop()
	}
	return w
}

// Submit 提交回调；工作池关闭后返回 ErrWorkersClosed
func (w *Workers) Submit(fn func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkersClosed
	}
	w.pending = append(w.pending, fn)
	w.cond.Signal()
	return nil
}

// Go 提交回调，失败时仅记录日志
func (w *Workers) Go(fn func()) {
	if err := w.Submit(fn); err != nil {
		log.Debug("回调被丢弃", "err", err)
	}
}

// Len 返回排队中的回调数
func (w *Workers) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Close 关闭工作池并等待正在执行的回调结束
//
// 已排队但未执行的回调会被执行完。
func (w *Workers) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Workers) loop() {
	defer w.wg.Done()
	for {
		fn, ok := w.next()
		if !ok {
			return
		}
		w.run(fn)
	}
}

// next 取出下一个回调；关闭且队列为空时返回 false
func (w *Workers) next() (func(), bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.pending) == 0 && !w.closed {
		w.cond.Wait()
	}
	if len(w.pending) == 0 {
		return nil, false
	}
	fn := w.pending[0]
	w.pending[0] = nil
	w.pending = w.pending[1:]
	if len(w.pending) == 0 {
		w.pending = make([]func(), 0, w.hint)
	}
	return fn, true
}

func (w *Workers) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("回调 panic", "panic", r)
		}
	}()
	fn()
}
