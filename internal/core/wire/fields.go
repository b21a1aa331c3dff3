package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encoder 字段编码器
type Encoder struct {
	buf []byte
}

// Uint 追加 varint 字段
func (e *Encoder) Uint(num protowire.Number, v uint64) *Encoder {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
	return e
}

// Bytes 追加字节字段，空值不写
func (e *Encoder) Bytes(num protowire.Number, v []byte) *Encoder {
	if len(v) == 0 {
		return e
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
	return e
}

// String 追加字符串字段，空值不写
func (e *Encoder) String(num protowire.Number, v string) *Encoder {
	if v == "" {
		return e
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, v)
	return e
}

// Payload 返回编码结果
func (e *Encoder) Payload() []byte {
	return e.buf
}

// Fields 解码后的字段集合；同号字段后者覆盖前者
type Fields struct {
	varints map[protowire.Number]uint64
	bytes   map[protowire.Number][]byte
}

// ParseFields 解码 payload，未知的线型被跳过
func ParseFields(payload []byte) (Fields, error) {
	f := Fields{
		varints: make(map[protowire.Number]uint64),
		bytes:   make(map[protowire.Number][]byte),
	}
	b := payload
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return f, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			f.varints[num] = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return f, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			f.bytes[num] = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return f, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return f, nil
}

// Uint 读取 varint 字段
func (f Fields) Uint(num protowire.Number) (uint64, bool) {
	v, ok := f.varints[num]
	return v, ok
}

// Bytes 读取字节字段
func (f Fields) Bytes(num protowire.Number) ([]byte, bool) {
	v, ok := f.bytes[num]
	return v, ok
}

// String 读取字符串字段
func (f Fields) String(num protowire.Number) string {
	return string(f.bytes[num])
}

// MustUint 读取必需的 varint 字段
func (f Fields) MustUint(num protowire.Number) (uint64, error) {
	v, ok := f.varints[num]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrMissingField, num)
	}
	return v, nil
}

// MustBytes 读取必需的字节字段
func (f Fields) MustBytes(num protowire.Number) ([]byte, error) {
	v, ok := f.bytes[num]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMissingField, num)
	}
	return v, nil
}
