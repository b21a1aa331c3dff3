package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// 连接代理字段号
const (
	fieldRequestID   protowire.Number = 1
	fieldServiceID   protowire.Number = 2
	fieldVirtualPort protowire.Number = 3
	fieldConnID      protowire.Number = 4
	fieldRzvServerID protowire.Number = 5
	fieldAddress     protowire.Number = 6
	fieldCode        protowire.Number = 7
	fieldAuthData    protowire.Number = 8
)

// Request REQUEST 消息
type Request struct {
	RequestID   uint32
	ServiceID   []byte
	VirtualPort uint32
}

// Payload 编码
func (m Request) Payload() []byte {
	var e Encoder
	e.Uint(fieldRequestID, uint64(m.RequestID)).
		Bytes(fieldServiceID, m.ServiceID).
		Uint(fieldVirtualPort, uint64(m.VirtualPort))
	return e.Payload()
}

// ParseRequest 解码 REQUEST
func ParseRequest(payload []byte) (Request, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return Request{}, err
	}
	id, err := requestID(f)
	if err != nil {
		return Request{}, err
	}
	m := Request{RequestID: id}
	if m.ServiceID, err = f.MustBytes(fieldServiceID); err != nil {
		return Request{}, err
	}
	port, _ := f.Uint(fieldVirtualPort)
	m.VirtualPort = uint32(port)
	return m, nil
}

// Auth AUTH 消息：把会合服务器的挑战转交给会话
type Auth struct {
	RequestID   uint32
	RzvServerID uint64
	Challenge   []byte
}

// Payload 编码
func (m Auth) Payload() []byte {
	var e Encoder
	e.Uint(fieldRequestID, uint64(m.RequestID)).
		Uint(fieldRzvServerID, m.RzvServerID).
		Bytes(fieldAuthData, m.Challenge)
	return e.Payload()
}

// ParseAuth 解码 AUTH
func ParseAuth(payload []byte) (Auth, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return Auth{}, err
	}
	id, err := requestID(f)
	if err != nil {
		return Auth{}, err
	}
	m := Auth{RequestID: id}
	m.RzvServerID, _ = f.Uint(fieldRzvServerID)
	if m.Challenge, err = f.MustBytes(fieldAuthData); err != nil {
		return Auth{}, err
	}
	return m, nil
}

// RzvData RZV_DATA 消息
type RzvData struct {
	RequestID    uint32
	ConnectionID uint64
	RzvServerID  uint64
	// Address 会合服务器地址，"host:port" 或仅 host
	Address string
}

// Payload 编码
func (m RzvData) Payload() []byte {
	var e Encoder
	e.Uint(fieldRequestID, uint64(m.RequestID)).
		Uint(fieldConnID, m.ConnectionID).
		Uint(fieldRzvServerID, m.RzvServerID).
		String(fieldAddress, m.Address)
	return e.Payload()
}

// ParseRzvData 解码 RZV_DATA
func ParseRzvData(payload []byte) (RzvData, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return RzvData{}, err
	}
	id, err := requestID(f)
	if err != nil {
		return RzvData{}, err
	}
	m := RzvData{RequestID: id}
	if m.ConnectionID, err = f.MustUint(fieldConnID); err != nil {
		return RzvData{}, err
	}
	m.RzvServerID, _ = f.Uint(fieldRzvServerID)
	addr, err := f.MustBytes(fieldAddress)
	if err != nil {
		return RzvData{}, err
	}
	m.Address = string(addr)
	return m, nil
}

// RequestError REQUEST_ERROR / AUTH_ERROR 消息
type RequestError struct {
	RequestID uint32
	Code      uint64
}

// Payload 编码
func (m RequestError) Payload() []byte {
	var e Encoder
	e.Uint(fieldRequestID, uint64(m.RequestID)).Uint(fieldCode, m.Code)
	return e.Payload()
}

// ParseRequestError 解码 REQUEST_ERROR / AUTH_ERROR
func ParseRequestError(payload []byte) (RequestError, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return RequestError{}, err
	}
	id, err := requestID(f)
	if err != nil {
		return RequestError{}, err
	}
	code, _ := f.Uint(fieldCode)
	return RequestError{RequestID: id, Code: code}, nil
}

// AuthHash AUTH_HASH 消息
type AuthHash struct {
	RequestID uint32
	Hash      []byte
}

// Payload 编码
func (m AuthHash) Payload() []byte {
	var e Encoder
	e.Uint(fieldRequestID, uint64(m.RequestID)).Bytes(fieldAuthData, m.Hash)
	return e.Payload()
}

// ParseAuthHash 解码 AUTH_HASH
func ParseAuthHash(payload []byte) (AuthHash, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return AuthHash{}, err
	}
	id, err := requestID(f)
	if err != nil {
		return AuthHash{}, err
	}
	m := AuthHash{RequestID: id}
	if m.Hash, err = f.MustBytes(fieldAuthData); err != nil {
		return AuthHash{}, err
	}
	return m, nil
}

func requestID(f Fields) (uint32, error) {
	v, err := f.MustUint(fieldRequestID)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: request id %d out of range", ErrMalformed, v)
	}
	return uint32(v), nil
}
