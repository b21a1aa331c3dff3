package wire

import (
	"bytes"
	"encoding/binary"
)

// TokenSize 令牌与连接器标识长度
const TokenSize = 16

var (
	attachMagic = []byte("VATT")
	punchMagic  = []byte("VPUN")
	proxyMagic  = []byte("VPRX")
)

// 数据报长度
const (
	AttachSize      = 4 + 8 + TokenSize
	PunchSize       = 4 + TokenSize
	ProxyHeaderSize = 4 + 1 + 8
)

// Attach 构造 UDP 挂接包
func Attach(connID uint64, identity [TokenSize]byte) []byte {
	b := make([]byte, 0, AttachSize)
	b = append(b, attachMagic...)
	b = binary.BigEndian.AppendUint64(b, connID)
	return append(b, identity[:]...)
}

// ParseAttach 解析 UDP 挂接包
func ParseAttach(b []byte) (connID uint64, identity [TokenSize]byte, ok bool) {
	if len(b) != AttachSize || !bytes.HasPrefix(b, attachMagic) {
		return 0, identity, false
	}
	connID = binary.BigEndian.Uint64(b[4:12])
	copy(identity[:], b[12:])
	return connID, identity, true
}

// Punch 构造打洞包
func Punch(token []byte) []byte {
	b := make([]byte, 0, PunchSize)
	b = append(b, punchMagic...)
	return append(b, token...)
}

// ParsePunch 解析打洞包，返回发送方令牌
func ParsePunch(b []byte) ([]byte, bool) {
	if len(b) != PunchSize || !bytes.HasPrefix(b, punchMagic) {
		return nil, false
	}
	return b[4:], true
}

// ProxyHeader 构造代理头
func ProxyHeader(connID uint64) []byte {
	b := make([]byte, 0, ProxyHeaderSize)
	b = append(b, proxyMagic...)
	b = append(b, RoleClient)
	return binary.BigEndian.AppendUint64(b, connID)
}

// IsProxyHeader 检查代理头
func IsProxyHeader(b []byte, connID uint64) bool {
	return bytes.Equal(b, ProxyHeader(connID))
}
