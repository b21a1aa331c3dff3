package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-vport/internal/util/logger"
)

var log = logger.Logger("eventbus")

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrClosed 事件总线已关闭
	ErrClosed = errors.New("eventbus closed")

	// ErrEmitterClosed 发射器已关闭
	ErrEmitterClosed = errors.New("emitter closed")
)

// ============================================================================
// Bus 实现
// ============================================================================

// Bus 事件总线
type Bus struct {
	mu     sync.Mutex
	nodes  map[reflect.Type]any
	closed bool
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{nodes: make(map[reflect.Type]any)}
}

// node 单个事件类型的节点
type node[T any] struct {
	lk        sync.Mutex
	sinks     []*Subscription[T]
	keepLast  bool
	last      *T
	dropCount atomic.Int64
}

func nodeFor[T any](b *Bus) (*node[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if n, ok := b.nodes[typ]; ok {
		return n.(*node[T]), nil
	}
	n := &node[T]{}
	b.nodes[typ] = n
	return n, nil
}

// Subscribe 订阅 T 类型事件
func Subscribe[T any](b *Bus, opts ...SubscriptionOpt) (*Subscription[T], error) {
	s := subscriptionSettings{buffer: 16}
	for _, opt := range opts {
		opt(&s)
	}
	n, err := nodeFor[T](b)
	if err != nil {
		return nil, err
	}

	sub := &Subscription[T]{node: n, out: make(chan T, s.buffer)}

	n.lk.Lock()
	n.sinks = append(n.sinks, sub)
	if n.keepLast && n.last != nil {
		select {
		case sub.out <- *n.last:
		default:
		}
	}
	n.lk.Unlock()

	return sub, nil
}

// NewEmitter 创建 T 类型事件的发射器
func NewEmitter[T any](b *Bus, opts ...EmitterOpt) (*Emitter[T], error) {
	s := emitterSettings{}
	for _, opt := range opts {
		opt(&s)
	}
	n, err := nodeFor[T](b)
	if err != nil {
		return nil, err
	}
	if s.stateful {
		n.lk.Lock()
		n.keepLast = true
		n.lk.Unlock()
	}
	return &Emitter[T]{node: n}, nil
}

// Close 关闭总线及其全部订阅
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	nodes := b.nodes
	b.nodes = make(map[reflect.Type]any)
	b.mu.Unlock()

	for _, n := range nodes {
		if c, ok := n.(interface{ closeAll() }); ok {
			c.closeAll()
		}
	}
	return nil
}

func (n *node[T]) emit(evt T) {
	n.lk.Lock()
	defer n.lk.Unlock()

	if n.keepLast {
		n.last = &evt
	}
	for _, sub := range n.sinks {
		n.deliver(sub, evt)
	}
}

// deliver 缓冲区满时丢弃最旧的事件，保证最新事件送达
//
// 须持有 n.lk；emit 是唯一的发送方。
func (n *node[T]) deliver(sub *Subscription[T], evt T) {
	for {
		select {
		case sub.out <- evt:
			return
		default:
		}
		select {
		case <-sub.out:
			dropped := n.dropCount.Add(1)
			if dropped%100 == 1 {
				log.Warn("慢消费者检测",
					"dropped", dropped,
					"type", reflect.TypeOf(evt),
					"reason", "subscriber buffer full, oldest event dropped")
			}
		default:
		}
	}
}

func (n *node[T]) remove(sub *Subscription[T]) bool {
	n.lk.Lock()
	defer n.lk.Unlock()
	for i, s := range n.sinks {
		if s == sub {
			n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
			return true
		}
	}
	return false
}

func (n *node[T]) closeAll() {
	n.lk.Lock()
	sinks := n.sinks
	n.sinks = nil
	n.lk.Unlock()
	for _, s := range sinks {
		s.closeOut()
	}
}
