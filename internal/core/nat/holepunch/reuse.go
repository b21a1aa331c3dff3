package holepunch

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// socketControl 返回设置端口复用与缓冲区提示的 Control 函数
//
// strict 为 false 时 SO_REUSEPORT 失败只记录日志；缓冲区设置失败总是忽略。
func socketControl(bufferSize int, strict bool) func(string, string, syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
				opErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
				return
			}
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
				if strict {
					opErr = fmt.Errorf("set SO_REUSEPORT: %w", err)
					return
				}
				log.Warn("设置 SO_REUSEPORT 失败（某些系统不支持）", "err", err)
			}
			if bufferSize > 0 {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bufferSize); err != nil {
					log.Debug("设置 SO_RCVBUF 失败", "err", err)
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, bufferSize); err != nil {
					log.Debug("设置 SO_SNDBUF 失败", "err", err)
				}
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
