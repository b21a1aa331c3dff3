package eventbus

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// Subscription 实现
// ============================================================================

// Subscription 订阅
type Subscription[T any] struct {
	node      *node[T]
	out       chan T
	closeOnce sync.Once
}

// Out 返回事件通道，订阅关闭后通道关闭
func (s *Subscription[T]) Out() <-chan T {
	return s.out
}

// Close 取消订阅，可重复调用
func (s *Subscription[T]) Close() error {
	if s.node.remove(s) {
		s.closeOut()
	}
	return nil
}

func (s *Subscription[T]) closeOut() {
	s.closeOnce.Do(func() {
		close(s.out)
	})
}

// ============================================================================
// Emitter 实现
// ============================================================================

// Emitter 事件发射器
type Emitter[T any] struct {
	node   *node[T]
	closed atomic.Bool
}

// Emit 发射事件，不阻塞
func (e *Emitter[T]) Emit(evt T) error {
	if e.closed.Load() {
		return ErrEmitterClosed
	}
	e.node.emit(evt)
	return nil
}

// Close 关闭发射器
func (e *Emitter[T]) Close() error {
	e.closed.Store(true)
	return nil
}
