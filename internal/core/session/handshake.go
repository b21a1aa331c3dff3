package session

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/dep2p/go-vport/internal/core/channel"
	"github.com/dep2p/go-vport/internal/core/wire"
	"github.com/dep2p/go-vport/pkg/types"
)

// PasswordHashSize 口令摘要长度
const PasswordHashSize = 32

// clientKeySize 客户端临时安全密钥长度
const clientKeySize = 32

// phase 握手阶段
type phase int

const (
	awaitingChallenge phase = iota
	awaitingConfirmation
	established
)

// handshake 单次连接尝试的握手状态，成功或放弃后丢弃
type handshake struct {
	identity  types.Identity
	sessionID []byte
	restore   bool
	phase     phase

	salt      []byte
	serverKey []byte
	clientKey []byte
}

// PasswordHash 根据口令、盐与双方密钥派生摘要
//
// HKDF-SHA256(secret=password, salt=salt, info=serverKey||clientKey)
func PasswordHash(password string, salt, serverKey, clientKey []byte) ([]byte, error) {
	info := make([]byte, 0, len(serverKey)+len(clientKey))
	info = append(info, serverKey...)
	info = append(info, clientKey...)
	out := make([]byte, PasswordHashSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(password), salt, info), out); err != nil {
		return nil, err
	}
	return out, nil
}

// run 在同步模式的通道上执行握手，返回（新的或沿用的）会话 ID
func (h *handshake) run(ch *channel.Channel, deadline time.Time) ([]byte, error) {
	tag := wire.TagOpen
	if h.restore {
		tag = wire.TagRestore
	}
	open := wire.Open{
		Version:      wire.ProtocolVersion,
		EndpointType: wire.EndpointTypeClient,
		Category:     uint64(h.identity.Category()),
		ClientKey:    h.identity.ClientKey,
	}
	if h.restore {
		open.SessionID = h.sessionID
	}
	if err := ch.WriteSync(wire.Body(wire.ComponentHandshake, tag, open.Payload()), deadline); err != nil {
		return nil, err
	}

	for h.phase != established {
		msg, err := ch.ReadSync(deadline)
		if err != nil {
			return nil, err
		}
		if msg.Component != wire.ComponentHandshake {
			return nil, fmt.Errorf("%w: component %s during handshake", ErrUnexpectedMessage, msg.Component)
		}
		if err := h.step(ch, msg, deadline); err != nil {
			return nil, err
		}
	}
	return h.sessionID, nil
}

func (h *handshake) step(ch *channel.Channel, msg wire.Message, deadline time.Time) error {
	credentialed := h.identity.Credentialed()

	switch msg.Tag {
	case wire.TagSaltAndKey1:
		if !credentialed || h.phase != awaitingChallenge {
			return h.unexpected(msg.Tag)
		}
		sk, err := wire.ParseSaltAndKey(msg.Payload)
		if err != nil {
			return err
		}
		h.salt = sk.Salt
		h.serverKey = sk.ServerKey
		h.clientKey = make([]byte, clientKeySize)
		if _, err := rand.Read(h.clientKey); err != nil {
			return err
		}
		hash, err := PasswordHash(h.identity.Password, h.salt, h.serverKey, h.clientKey)
		if err != nil {
			return err
		}
		reply := wire.HashAndKey{ClientSecurityKey: h.clientKey, PasswordHash: hash}
		if err := ch.WriteSync(wire.Body(wire.ComponentHandshake, wire.TagHashAndKey2, reply.Payload()), deadline); err != nil {
			return err
		}
		h.phase = awaitingConfirmation
		return nil

	case wire.TagOpenOK, wire.TagOpenOK2, wire.TagRestoreOK:
		if !h.accepts(msg.Tag) {
			return h.unexpected(msg.Tag)
		}
		acc, err := wire.ParseAccepted(msg.Payload)
		if err != nil {
			return err
		}
		if len(acc.SessionID) > 0 {
			h.sessionID = append([]byte(nil), acc.SessionID...)
		} else if msg.Tag != wire.TagRestoreOK {
			return ErrEmptySessionID
		}
		h.phase = established
		return nil

	case wire.TagHandshakeError:
		e, err := wire.ParseHandshakeError(msg.Payload)
		if err != nil {
			return err
		}
		return types.NewServerError(types.ServerCode(e.Code), e.Text)

	default:
		return fmt.Errorf("%w: %d", wire.ErrUnknownTag, msg.Tag)
	}
}

// accepts 判断确认消息是否与当前请求和阶段匹配
func (h *handshake) accepts(tag wire.Tag) bool {
	want := awaitingChallenge
	if h.identity.Credentialed() {
		want = awaitingConfirmation
	}
	if h.phase != want {
		return false
	}
	switch tag {
	case wire.TagRestoreOK:
		return h.restore
	case wire.TagOpenOK:
		return !h.restore && h.identity.Credentialed()
	case wire.TagOpenOK2:
		return !h.restore && !h.identity.Credentialed()
	}
	return false
}

func (h *handshake) unexpected(tag wire.Tag) error {
	return fmt.Errorf("%w: handshake tag %d in phase %d", ErrUnexpectedMessage, tag, h.phase)
}
