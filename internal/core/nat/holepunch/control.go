package holepunch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-vport/internal/core/channel"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/pkg/types"
)

var (
	// ErrControlOverflow 控制消息积压
	ErrControlOverflow = errors.New("holepunch: control inbox overflow")

	// ErrControlClosed 控制连接已关闭
	ErrControlClosed = errors.New("holepunch: control channel closed")

	// ErrUnexpectedControl 控制消息时序错误
	ErrUnexpectedControl = errors.New("holepunch: unexpected control message")
)

const notifyTimeout = time.Second

// control 与会合服务器之间的短期控制通道
type control struct {
	ch    *channel.Channel
	inbox chan wire.Message
}

// openControl 拨号会合服务器并启动控制通道
func openControl(ctx context.Context, d *net.Dialer, network string, addr netip.AddrPort, clk clock.Clock) (*control, error) {
	conn, err := d.DialContext(ctx, network, addr.String())
	if err != nil {
		return nil, fmt.Errorf("holepunch: dial rendezvous %s: %w", addr, err)
	}
	c := &control{inbox: make(chan wire.Message, 16)}
	c.ch = channel.New(conn, channel.Config{MaxMessage: ControlMaxMessage, SendQueue: 16, Clock: clk})
	c.ch.Register(wire.ComponentControl, c.handle)
	c.ch.Start()
	return c, nil
}

func (c *control) handle(tag wire.Tag, payload []byte) error {
	msg := wire.Message{Component: wire.ComponentControl, Tag: tag, Payload: append([]byte(nil), payload...)}
	select {
	case c.inbox <- msg:
		return nil
	default:
		return ErrControlOverflow
	}
}

// localAddr 控制连接的本地地址
func (c *control) localAddr() netip.AddrPort {
	if ta, ok := c.ch.Conn().LocalAddr().(*net.TCPAddr); ok {
		return unmap(ta.AddrPort())
	}
	return netip.AddrPort{}
}

func (c *control) send(tag wire.Tag, payload []byte) error {
	return c.ch.SendMessage(wire.ComponentControl, tag, payload)
}

// notify 发送消息并等待写出，用于关闭前的最后通知
func (c *control) notify(ctx context.Context, tag wire.Tag, payload []byte) error {
	if err := c.send(tag, payload); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	return c.ch.Flush(ctx)
}

// next 返回下一条控制消息；FAILED 转换为错误
func (c *control) next(ctx context.Context) (wire.Message, error) {
	var msg wire.Message
	select {
	case msg = <-c.inbox:
	case <-c.ch.Done():
		select {
		case msg = <-c.inbox:
		default:
			return wire.Message{}, fmt.Errorf("%w: %v", ErrControlClosed, c.ch.Err())
		}
	case <-ctx.Done():
		return wire.Message{}, ctx.Err()
	}
	if msg.Tag == wire.TagFailed {
		f, err := wire.ParseFailed(msg.Payload)
		if err != nil {
			return wire.Message{}, err
		}
		return wire.Message{}, fmt.Errorf("%w: rendezvous failed with code %d", types.ErrConnectionAttemptFailed, f.Code)
	}
	return msg, nil
}

// expect 等待指定标签之一；PEER_PUNCHED 在非打洞阶段被忽略
func (c *control) expect(ctx context.Context, tags ...wire.Tag) (wire.Message, error) {
	for {
		msg, err := c.next(ctx)
		if err != nil {
			return wire.Message{}, err
		}
		if slices.Contains(tags, msg.Tag) {
			return msg, nil
		}
		if msg.Tag == wire.TagPeerPunched {
			continue
		}
		return wire.Message{}, fmt.Errorf("%w: tag %d", ErrUnexpectedControl, msg.Tag)
	}
}

// Close 关闭控制通道
func (c *control) Close() error {
	return c.ch.Close()
}
