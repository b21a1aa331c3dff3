package wire

import "google.golang.org/protobuf/encoding/protowire"

// ProtocolVersion 握手协议版本
const ProtocolVersion = 3

// EndpointTypeClient 端点类型：客户端
const EndpointTypeClient = 1

// 握手字段号
const (
	fieldVersion           protowire.Number = 1
	fieldEndpointType      protowire.Number = 2
	fieldCategory          protowire.Number = 3
	fieldClientKey         protowire.Number = 4
	fieldSessionID         protowire.Number = 5
	fieldSalt              protowire.Number = 6
	fieldServerKey         protowire.Number = 7
	fieldClientSecurityKey protowire.Number = 8
	fieldPasswordHash      protowire.Number = 9
	fieldErrorCode         protowire.Number = 10
	fieldErrorText         protowire.Number = 11
)

// Open OPEN/RESTORE 消息
//
// RESTORE 时 SessionID 非空。
type Open struct {
	Version      uint64
	EndpointType uint64
	Category     uint64
	ClientKey    string
	SessionID    []byte
}

// Payload 编码
func (m Open) Payload() []byte {
	var e Encoder
	e.Uint(fieldVersion, m.Version).
		Uint(fieldEndpointType, m.EndpointType).
		Uint(fieldCategory, m.Category).
		String(fieldClientKey, m.ClientKey).
		Bytes(fieldSessionID, m.SessionID)
	return e.Payload()
}

// ParseOpen 解码 OPEN/RESTORE
func ParseOpen(payload []byte) (Open, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return Open{}, err
	}
	var m Open
	if m.Version, err = f.MustUint(fieldVersion); err != nil {
		return Open{}, err
	}
	m.EndpointType, _ = f.Uint(fieldEndpointType)
	m.Category, _ = f.Uint(fieldCategory)
	m.ClientKey = f.String(fieldClientKey)
	m.SessionID, _ = f.Bytes(fieldSessionID)
	return m, nil
}

// SaltAndKey SALT_AND_KEY1 消息
type SaltAndKey struct {
	Salt      []byte
	ServerKey []byte
}

// Payload 编码
func (m SaltAndKey) Payload() []byte {
	var e Encoder
	e.Bytes(fieldSalt, m.Salt).Bytes(fieldServerKey, m.ServerKey)
	return e.Payload()
}

// ParseSaltAndKey 解码 SALT_AND_KEY1
func ParseSaltAndKey(payload []byte) (SaltAndKey, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return SaltAndKey{}, err
	}
	var m SaltAndKey
	if m.Salt, err = f.MustBytes(fieldSalt); err != nil {
		return SaltAndKey{}, err
	}
	if m.ServerKey, err = f.MustBytes(fieldServerKey); err != nil {
		return SaltAndKey{}, err
	}
	return m, nil
}

// HashAndKey HASH_AND_KEY2 消息
type HashAndKey struct {
	ClientSecurityKey []byte
	PasswordHash      []byte
}

// Payload 编码
func (m HashAndKey) Payload() []byte {
	var e Encoder
	e.Bytes(fieldClientSecurityKey, m.ClientSecurityKey).Bytes(fieldPasswordHash, m.PasswordHash)
	return e.Payload()
}

// ParseHashAndKey 解码 HASH_AND_KEY2
func ParseHashAndKey(payload []byte) (HashAndKey, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return HashAndKey{}, err
	}
	var m HashAndKey
	if m.ClientSecurityKey, err = f.MustBytes(fieldClientSecurityKey); err != nil {
		return HashAndKey{}, err
	}
	if m.PasswordHash, err = f.MustBytes(fieldPasswordHash); err != nil {
		return HashAndKey{}, err
	}
	return m, nil
}

// Accepted OPEN_OK/OPEN_OK2/RESTORE_OK 消息
type Accepted struct {
	SessionID []byte
}

// Payload 编码
func (m Accepted) Payload() []byte {
	var e Encoder
	e.Bytes(fieldSessionID, m.SessionID)
	return e.Payload()
}

// ParseAccepted 解码 OPEN_OK/OPEN_OK2/RESTORE_OK
func ParseAccepted(payload []byte) (Accepted, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return Accepted{}, err
	}
	id, _ := f.Bytes(fieldSessionID)
	return Accepted{SessionID: id}, nil
}

// HandshakeError ERROR 消息
type HandshakeError struct {
	Code uint64
	Text string
}

// Payload 编码
func (m HandshakeError) Payload() []byte {
	var e Encoder
	e.Uint(fieldErrorCode, m.Code).String(fieldErrorText, m.Text)
	return e.Payload()
}

// ParseHandshakeError 解码 ERROR
func ParseHandshakeError(payload []byte) (HandshakeError, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return HandshakeError{}, err
	}
	var m HandshakeError
	if m.Code, err = f.MustUint(fieldErrorCode); err != nil {
		return HandshakeError{}, err
	}
	m.Text = f.String(fieldErrorText)
	return m, nil
}

// PingPeriod 状态组件 PING_PERIOD 消息，单位秒
type PingPeriod struct {
	Seconds uint64
}

// Payload 编码
func (m PingPeriod) Payload() []byte {
	var e Encoder
	e.Uint(1, m.Seconds)
	return e.Payload()
}

// ParsePingPeriod 解码 PING_PERIOD
func ParsePingPeriod(payload []byte) (PingPeriod, error) {
	f, err := ParseFields(payload)
	if err != nil {
		return PingPeriod{}, err
	}
	s, err := f.MustUint(1)
	if err != nil {
		return PingPeriod{}, err
	}
	return PingPeriod{Seconds: s}, nil
}
