package recovery

import (
	"time"

	"github.com/dep2p/go-vport/pkg/types"
)

// MaxAttempt 尝试计数上限
const MaxAttempt = 11

// NonNetworkDelay 非网络类可重试错误的固定等待
const NonNetworkDelay = 60 * time.Second

// schedule 网络类错误的等待表，长度为 MaxAttempt+1
var schedule = [MaxAttempt + 1]time.Duration{
	1 * time.Second,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	40 * time.Second,
	60 * time.Second,
	60 * time.Second,
	60 * time.Second,
	60 * time.Second,
	60 * time.Second,
}

// Delay 返回第 attempt 次尝试的网络类等待时间
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > MaxAttempt {
		attempt = MaxAttempt
	}
	return schedule[attempt]
}

// Decision 一次失败后的重连决定
type Decision struct {
	// Retry 是否自动重连；false 时连通状态进入 Down
	Retry bool

	// Delay 重连前等待
	Delay time.Duration

	// DropSession 丢弃已保存的会话 ID，下次使用 OPEN
	DropSession bool
}

// Backoff 重连尝试计数器
//
// 非并发安全，由会话锁保护。
type Backoff struct {
	attempt int
}

// Attempt 返回当前尝试次数
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Reset 清零尝试次数
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Next 根据错误给出重连决定并推进计数
func (b *Backoff) Next(err error) Decision {
	ce := types.AsConnectivityError(err)
	if !ce.Retryable() {
		return Decision{}
	}

	d := Decision{
		Retry:       true,
		DropSession: ce.Code == types.CodeEndpointDataInconsistent,
	}
	if ce.NetworkClass() {
		d.Delay = Delay(b.attempt)
	} else {
		d.Delay = NonNetworkDelay
	}
	if b.attempt < MaxAttempt {
		b.attempt++
	}
	return d
}
