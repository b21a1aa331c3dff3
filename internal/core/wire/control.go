package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/netip"

	"google.golang.org/protobuf/encoding/protowire"
)

// RoleClient 连接方角色：客户端
const RoleClient = 1

// 会合控制字段号
const (
	fieldCtlConnID   protowire.Number = 1
	fieldCtlRole     protowire.Number = 2
	fieldCtlAuth     protowire.Number = 3
	fieldCtlLocal    protowire.Number = 4
	fieldCtlRemote   protowire.Number = 5
	fieldCtlPublic   protowire.Number = 6
	fieldCtlPrivate  protowire.Number = 7
	fieldCtlPort     protowire.Number = 8
	fieldCtlCode     protowire.Number = 9
	fieldCtlObserved protowire.Number = 10
)

// ============================================================================
//                              地址打包
// ============================================================================

// AppendEndpoint 追加 4 或 16 字节 IP 加 2 字节端口
func AppendEndpoint(dst []byte, ap netip.AddrPort) []byte {
	addr := ap.Addr()
	if addr.Is4() || addr.Is4In6() {
		a := addr.Unmap().As4()
		dst = append(dst, a[:]...)
	} else {
		a := addr.As16()
		dst = append(dst, a[:]...)
	}
	return binary.BigEndian.AppendUint16(dst, ap.Port())
}

// ParseEndpoint 解析打包地址
func ParseEndpoint(b []byte) (netip.AddrPort, error) {
	switch len(b) {
	case 6:
		addr := netip.AddrFrom4([4]byte(b[:4]))
		return netip.AddrPortFrom(addr, binary.BigEndian.Uint16(b[4:])), nil
	case 18:
		addr := netip.AddrFrom16([16]byte(b[:16]))
		return netip.AddrPortFrom(addr, binary.BigEndian.Uint16(b[16:])), nil
	default:
		return netip.AddrPort{}, fmt.Errorf("%w: endpoint length %d", ErrMalformed, len(b))
	}
}

func optionalEndpoint(f Fields, num protowire.Number) (netip.AddrPort, error) {
	b, ok := f.Bytes(num)
	if !ok {
		return netip.AddrPort{}, nil
	}
	return ParseEndpoint(b)
}

func endpointBytes(ap netip.AddrPort) []byte {
	if !ap.IsValid() {
		return nil
	}
	return AppendEndpoint(nil, ap)
}

// ============================================================================
//                              控制消息
// ============================================================================

// ControlHello HELLO 消息
type ControlHello struct {
	ConnectionID uint64
	Role         uint64
}

// Payload 编码
func (m ControlHello) Payload() []byte {
	var e Encoder
	e.Uint(fieldCtlConnID, m.ConnectionID).Uint(fieldCtlRole, m.Role)
	return e.Payload()
}

// ParseControlHello 解码 HELLO
func ParseControlHello(payload []byte) (ControlHello, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return ControlHello{}, err
	}
	var m ControlHello
	if m.ConnectionID, err = f.MustUint(fieldCtlConnID); err != nil {
		return ControlHello{}, err
	}
	m.Role, _ = f.Uint(fieldCtlRole)
	return m, nil
}

// AuthData CHALLENGE / AUTH_RESPONSE 消息
type AuthData struct {
	Data []byte
}

// Payload 编码
func (m AuthData) Payload() []byte {
	var e Encoder
	e.Bytes(fieldCtlAuth, m.Data)
	return e.Payload()
}

// ParseAuthData 解码 CHALLENGE / AUTH_RESPONSE
func ParseAuthData(payload []byte) (AuthData, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return AuthData{}, err
	}
	b, err := f.MustBytes(fieldCtlAuth)
	if err != nil {
		return AuthData{}, err
	}
	return AuthData{Data: b}, nil
}

// P2PRequest P2P_REQUEST 消息
type P2PRequest struct {
	LocalToken []byte
	// Private 本地私有地址，可为空
	Private netip.AddrPort
}

// Payload 编码
func (m P2PRequest) Payload() []byte {
	var e Encoder
	e.Bytes(fieldCtlLocal, m.LocalToken).Bytes(fieldCtlPrivate, endpointBytes(m.Private))
	return e.Payload()
}

// ParseP2PRequest 解码 P2P_REQUEST
func ParseP2PRequest(payload []byte) (P2PRequest, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return P2PRequest{}, err
	}
	var m P2PRequest
	if m.LocalToken, err = f.MustBytes(fieldCtlLocal); err != nil {
		return P2PRequest{}, err
	}
	if m.Private, err = optionalEndpoint(f, fieldCtlPrivate); err != nil {
		return P2PRequest{}, err
	}
	return m, nil
}

// P2PData P2P_DATA 消息
type P2PData struct {
	// LocalToken 本端令牌回显
	LocalToken []byte
	// RemoteToken 对端令牌
	RemoteToken []byte
	Public      netip.AddrPort
	// Private 对端私有地址，可为空
	Private netip.AddrPort
}

// Payload 编码
func (m P2PData) Payload() []byte {
	var e Encoder
	e.Bytes(fieldCtlLocal, m.LocalToken).
		Bytes(fieldCtlRemote, m.RemoteToken).
		Bytes(fieldCtlPublic, endpointBytes(m.Public)).
		Bytes(fieldCtlPrivate, endpointBytes(m.Private))
	return e.Payload()
}

// ParseP2PData 解码 P2P_DATA
func ParseP2PData(payload []byte) (P2PData, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return P2PData{}, err
	}
	var m P2PData
	if m.LocalToken, err = f.MustBytes(fieldCtlLocal); err != nil {
		return P2PData{}, err
	}
	if m.RemoteToken, err = f.MustBytes(fieldCtlRemote); err != nil {
		return P2PData{}, err
	}
	pub, err := f.MustBytes(fieldCtlPublic)
	if err != nil {
		return P2PData{}, err
	}
	if m.Public, err = ParseEndpoint(pub); err != nil {
		return P2PData{}, err
	}
	if m.Private, err = optionalEndpoint(f, fieldCtlPrivate); err != nil {
		return P2PData{}, err
	}
	return m, nil
}

// ProxyData PROXY_DATA 消息
type ProxyData struct {
	RelayPort uint16
}

// Payload 编码
func (m ProxyData) Payload() []byte {
	var e Encoder
	e.Uint(fieldCtlPort, uint64(m.RelayPort))
	return e.Payload()
}

// ParseProxyData 解码 PROXY_DATA
func ParseProxyData(payload []byte) (ProxyData, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return ProxyData{}, err
	}
	port, err := f.MustUint(fieldCtlPort)
	if err != nil {
		return ProxyData{}, err
	}
	if port == 0 || port > math.MaxUint16 {
		return ProxyData{}, fmt.Errorf("%w: relay port %d", ErrMalformed, port)
	}
	return ProxyData{RelayPort: uint16(port)}, nil
}

// Failed FAILED 消息
type Failed struct {
	Code uint64
}

// Payload 编码
func (m Failed) Payload() []byte {
	var e Encoder
	e.Uint(fieldCtlCode, m.Code)
	return e.Payload()
}

// ParseFailed 解码 FAILED
func ParseFailed(payload []byte) (Failed, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return Failed{}, err
	}
	code, _ := f.Uint(fieldCtlCode)
	return Failed{Code: code}, nil
}

// Punched PUNCHED 消息
type Punched struct {
	Observed netip.AddrPort
}

// Payload 编码
func (m Punched) Payload() []byte {
	var e Encoder
	e.Bytes(fieldCtlObserved, endpointBytes(m.Observed))
	return e.Payload()
}

// ParsePunched 解码 PUNCHED
func ParsePunched(payload []byte) (Punched, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return Punched{}, err
	}
	ap, err := optionalEndpoint(f, fieldCtlObserved)
	if err != nil {
		return Punched{}, err
	}
	return Punched{Observed: ap}, nil
}
