package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWorkers_Submit 测试回调执行
func TestWorkers_Submit(t *testing.T) {
	w := NewWorkers(2, 8)
	defer w.Close()

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, w.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(20), count.Load())
}

// TestWorkers_Close 测试关闭后拒绝提交且排队回调执行完
func TestWorkers_Close(t *testing.T) {
	w := NewWorkers(1, 16)

	var count atomic.Int32
	block := make(chan struct{})
	require.NoError(t, w.Submit(func() { <-block }))
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Submit(func() { count.Add(1) }))
	}

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()
	close(block)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}
	assert.Equal(t, int32(5), count.Load())
	assert.ErrorIs(t, w.Submit(func() {}), ErrWorkersClosed)

	w.Close()
}

// TestWorkers_PanicRecovered 测试回调 panic 后工作协程继续运行
func TestWorkers_PanicRecovered(t *testing.T) {
	w := NewWorkers(1, 4)
	defer w.Close()

	require.NoError(t, w.Submit(func() { panic("boom") }))
	done := make(chan struct{})
	require.NoError(t, w.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}

// TestWorkers_SubmitNeverBlocks 测试工作协程忙且超出初始容量时提交不阻塞
func TestWorkers_SubmitNeverBlocks(t *testing.T) {
	w := NewWorkers(1, 1)
	defer w.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, w.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	var count atomic.Int32
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i := 0; i < 10; i++ {
			_ = w.Submit(func() { count.Add(1) })
		}
	}()

	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("submit blocked while the worker was busy")
	}
	assert.Equal(t, 10, w.Len())

	close(block)
	require.Eventually(t, func() bool { return count.Load() == 10 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, w.Len())
}
