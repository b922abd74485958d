package eip1193

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EIP-1193 / EIP-3085 / EIP-3326 定义的错误码
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
)

// ProviderError Provider 返回的带错误码的失败
type ProviderError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode 与 go-ethereum rpc.Error 保持一致，便于在 JSON-RPC 服务端透传错误码
func (e *ProviderError) ErrorCode() int { return e.Code }

// NewError 创建 ProviderError
func NewError(code int, format string, args ...any) *ProviderError {
	return &ProviderError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf 返回错误链中 ProviderError 的错误码
func CodeOf(err error) (int, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}

// IsUserRejected 用户在钱包弹窗中拒绝了请求
func IsUserRejected(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeUserRejected
}

// IsUnrecognizedChain 钱包不认识目标链，需要先 wallet_addEthereumChain
func IsUnrecognizedChain(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeUnrecognizedChain
}
