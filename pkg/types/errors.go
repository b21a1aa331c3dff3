package types

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              身份相关错误
// ============================================================================

var (
	// ErrEmptyServerHost 未配置服务器地址
	ErrEmptyServerHost = errors.New("empty server host")

	// ErrEmptyClientKey 未配置客户端键
	ErrEmptyClientKey = errors.New("empty client key")

	// ErrInvalidScheme 无效的端点形态
	ErrInvalidScheme = errors.New("invalid endpoint scheme")
)

// ============================================================================
//                              应用级错误（只影响单个调用）
// ============================================================================

var (
	// ErrServiceOffline 目标服务不在线
	ErrServiceOffline = errors.New("service offline")

	// ErrClientOffline 本端未在线
	ErrClientOffline = errors.New("client offline")

	// ErrAccessDenied 无权访问
	ErrAccessDenied = errors.New("access denied")

	// ErrPortUnreachable 虚拟端口不可达
	ErrPortUnreachable = errors.New("virtual port unreachable")

	// ErrConnectionAttemptFailed 连接尝试失败
	ErrConnectionAttemptFailed = errors.New("connection attempt failed")

	// ErrTimeoutExpired 等待超时
	ErrTimeoutExpired = errors.New("timeout expired")
)

// ============================================================================
//                              ErrorClass - 错误分类
// ============================================================================

// ErrorClass 错误分类，决定重连策略
type ErrorClass int

const (
	// ClassNetwork 传输层 I/O 错误，按退避表重试
	ClassNetwork ErrorClass = iota
	// ClassProtocol 报文格式/时序错误，按网络错误处理
	ClassProtocol
	// ClassRestart 服务器要求重连
	ClassRestart
	// ClassCredential 口令错误或键冲突，终止
	ClassCredential
	// ClassServer 服务器端错误，按码表决定
	ClassServer
	// ClassApplication 应用级错误，不影响会话
	ClassApplication
	// ClassResolution 服务器名无法解析（非网络原因），终止
	ClassResolution
)

// String 返回分类名称
func (c ErrorClass) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassProtocol:
		return "protocol"
	case ClassRestart:
		return "restart"
	case ClassCredential:
		return "credential"
	case ClassServer:
		return "server"
	case ClassApplication:
		return "application"
	case ClassResolution:
		return "resolution"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              ServerCode - 握手错误码
// ============================================================================

// ServerCode 服务器在握手 ERROR 中返回的错误码
type ServerCode uint32

// 握手错误码
const (
	CodeInvalidPassword          ServerCode = 1
	CodeDuplicateKey             ServerCode = 2
	CodeServerBusy               ServerCode = 3
	CodeDBMSError                ServerCode = 4
	CodeConfigError              ServerCode = 5
	CodeDataIntegrity            ServerCode = 6
	CodeIncompatibleVersion      ServerCode = 7
	CodeEndpointDataInconsistent ServerCode = 8
	CodeFormatError              ServerCode = 9
	CodeRestartRequired          ServerCode = 10
)

// String 返回错误码名称
func (c ServerCode) String() string {
	switch c {
	case CodeInvalidPassword:
		return "invalid-password"
	case CodeDuplicateKey:
		return "duplicate-key"
	case CodeServerBusy:
		return "server-busy"
	case CodeDBMSError:
		return "dbms-error"
	case CodeConfigError:
		return "config-error"
	case CodeDataIntegrity:
		return "data-integrity"
	case CodeIncompatibleVersion:
		return "incompatible-version"
	case CodeEndpointDataInconsistent:
		return "endpoint-data-inconsistent"
	case CodeFormatError:
		return "format-error"
	case CodeRestartRequired:
		return "restart-required"
	default:
		return fmt.Sprintf("code-%d", uint32(c))
	}
}

// codePolicy 单个错误码的分类
type codePolicy struct {
	class     ErrorClass
	retryable bool
	network   bool // 是否使用网络退避表（否则固定 60s）
}

var serverCodeTable = map[ServerCode]codePolicy{
	CodeInvalidPassword:          {ClassCredential, false, false},
	CodeDuplicateKey:             {ClassCredential, false, false},
	CodeServerBusy:               {ClassServer, true, true},
	CodeDBMSError:                {ClassServer, true, false},
	CodeConfigError:              {ClassServer, false, false},
	CodeDataIntegrity:            {ClassServer, false, false},
	CodeIncompatibleVersion:      {ClassServer, false, false},
	CodeEndpointDataInconsistent: {ClassServer, true, true},
	CodeFormatError:              {ClassProtocol, true, true},
	CodeRestartRequired:          {ClassRestart, true, true},
}

// ============================================================================
//                              ConnectivityError
// ============================================================================

// ConnectivityError 会话层错误，携带分类与（可选）服务器错误码
type ConnectivityError struct {
	Class ErrorClass
	Code  ServerCode
	Err   error
}

// Error 实现 error 接口
func (e *ConnectivityError) Error() string {
	switch {
	case e.Code != 0 && e.Err != nil:
		return fmt.Sprintf("%s error (%s): %v", e.Class, e.Code, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("%s error (%s)", e.Class, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Class, e.Err)
	default:
		return e.Class.String() + " error"
	}
}

// Unwrap 返回底层错误
func (e *ConnectivityError) Unwrap() error { return e.Err }

// Retryable 是否允许自动重连
func (e *ConnectivityError) Retryable() bool {
	if e.Code != 0 {
		if p, ok := serverCodeTable[e.Code]; ok {
			return p.retryable
		}
		return true
	}
	switch e.Class {
	case ClassNetwork, ClassProtocol, ClassRestart:
		return true
	case ClassServer:
		return true
	default:
		return false
	}
}

// NetworkClass 是否按网络退避表计算等待时间
func (e *ConnectivityError) NetworkClass() bool {
	if e.Code != 0 {
		if p, ok := serverCodeTable[e.Code]; ok {
			return p.network
		}
		return true
	}
	switch e.Class {
	case ClassNetwork, ClassProtocol, ClassRestart:
		return true
	default:
		return false
	}
}

// NewNetworkError 包装网络错误
func NewNetworkError(err error) *ConnectivityError {
	return &ConnectivityError{Class: ClassNetwork, Err: err}
}

// NewProtocolError 包装协议错误
func NewProtocolError(err error) *ConnectivityError {
	return &ConnectivityError{Class: ClassProtocol, Err: err}
}

// NewResolutionError 包装非网络原因的解析错误
func NewResolutionError(err error) *ConnectivityError {
	return &ConnectivityError{Class: ClassResolution, Err: err}
}

// NewRestartError 服务器要求重连
func NewRestartError() *ConnectivityError {
	return &ConnectivityError{Class: ClassRestart, Code: CodeRestartRequired}
}

// NewServerError 根据握手错误码构造错误
func NewServerError(code ServerCode, text string) *ConnectivityError {
	class := ClassProtocol
	if p, ok := serverCodeTable[code]; ok {
		class = p.class
	}
	var err error
	if text != "" {
		err = errors.New(text)
	}
	return &ConnectivityError{Class: class, Code: code, Err: err}
}

// AsConnectivityError 提取 ConnectivityError，非此类错误按网络错误处理
func AsConnectivityError(err error) *ConnectivityError {
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return ce
	}
	return NewNetworkError(err)
}

// ============================================================================
//                              RequestCode - 连接请求错误码
// ============================================================================

// RequestCode REQUEST_ERROR / AUTH_ERROR 携带的错误码
type RequestCode uint32

// 连接请求错误码
const (
	RequestServiceOffline  RequestCode = 1
	RequestAccessDenied    RequestCode = 2
	RequestPortUnreachable RequestCode = 3
	RequestAttemptFailed   RequestCode = 4
	RequestClientOffline   RequestCode = 5
)

// RequestCodeError 将请求错误码映射为应用级错误
func RequestCodeError(code RequestCode) error {
	switch code {
	case RequestServiceOffline:
		return ErrServiceOffline
	case RequestAccessDenied:
		return ErrAccessDenied
	case RequestPortUnreachable:
		return ErrPortUnreachable
	case RequestClientOffline:
		return ErrClientOffline
	default:
		return ErrConnectionAttemptFailed
	}
}
