package wire

import "errors"

// ============================================================================
//                              格式错误
// ============================================================================

var (
	// ErrMalformed 消息格式错误
	ErrMalformed = errors.New("wire: malformed message")

	// ErrShortMessage 消息过短
	ErrShortMessage = errors.New("wire: message too short")

	// ErrUnknownTag 未知消息标签
	ErrUnknownTag = errors.New("wire: unknown message tag")

	// ErrFrameTooLarge 帧超过当前上限
	ErrFrameTooLarge = errors.New("wire: frame exceeds size limit")

	// ErrMissingField 缺少必需字段
	ErrMissingField = errors.New("wire: missing required field")
)
