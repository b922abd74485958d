package session

import (
	"errors"
	"fmt"
)

// State 会话连接状态
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrorKind 失败分类，记录在 Snapshot.LastError 中。
// ErrorKind 本身实现了 error，可以直接 errors.Is(err, session.UserRejected)。
type ErrorKind string

const (
	ProviderUnavailable ErrorKind = "provider_unavailable"
	UserRejected        ErrorKind = "user_rejected"
	ConcurrentOperation ErrorKind = "concurrent_operation"
	NonceFetchFailed    ErrorKind = "nonce_fetch_failed"
	SignatureRejected   ErrorKind = "signature_rejected"
	VerificationFailed  ErrorKind = "verification_failed"
	NetworkSwitchFailed ErrorKind = "network_switch_failed"
	NetworkTimeout      ErrorKind = "network_timeout"
	AccountMismatch     ErrorKind = "account_mismatch"
	// NotConnected 命令的前置状态不满足，不改变会话状态
	NotConnected ErrorKind = "not_connected"
)

func (k ErrorKind) Error() string { return string(k) }

// Error 命令失败时返回的错误
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("session: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf 返回 err 链中的 ErrorKind，没有则返回空串
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k ErrorKind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

// Snapshot 会话的一致性快照，空字符串表示未设置
type Snapshot struct {
	Address   string    `json:"address,omitempty"`
	ChainID   string    `json:"chainId,omitempty"`
	AuthToken string    `json:"-"`
	State     State     `json:"state"`
	LastError ErrorKind `json:"lastError,omitempty"`
}

// Authenticated 快照是否持有有效登录
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.AuthToken != ""
}
