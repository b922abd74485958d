// Package eip1193 描述会话层依赖的钱包 Provider 能力 (EIP-1193)。
// 不同的钱包 SDK 通过各自的适配器实现 Provider，会话状态机只依赖这里的接口。
package eip1193

import (
	"context"
	"encoding/json"
	"fmt"
)

// 会话用到的 Provider 方法
const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodAccounts        = "eth_accounts"
	MethodChainID         = "eth_chainId"
	MethodPersonalSign    = "personal_sign"
	MethodSwitchChain     = "wallet_switchEthereumChain"
	MethodAddChain        = "wallet_addEthereumChain"
	MethodGetBalance      = "eth_getBalance"
)

// Provider 是浏览器注入对象 request({method, params}) 的 Go 形式。
// 返回的 result 为原始 JSON，失败时返回 *ProviderError 或传输层错误。
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// EventKind Provider 推送的事件类型
type EventKind string

const (
	EventAccountsChanged EventKind = "accountsChanged"
	EventChainChanged    EventKind = "chainChanged"
)

// Event Provider 推送的事件
type Event struct {
	Kind     EventKind
	Accounts []string // accountsChanged
	ChainID  string   // chainChanged
}

// EventSource 由支持事件推送的 Provider 实现。
// Subscribe 返回取消订阅函数，多次调用取消函数是安全的。
type EventSource interface {
	Subscribe(handler func(Event)) (unsubscribe func())
}

// SwitchChainParameter wallet_switchEthereumChain 的参数
type SwitchChainParameter struct {
	ChainID string `json:"chainId"`
}

// Call 发起请求并把 result 解码为 T。result 为空或 null 时返回 T 的零值。
func Call[T any](ctx context.Context, p Provider, method string, params ...any) (T, error) {
	var out T
	raw, err := p.Request(ctx, method, params...)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("eip1193: decode %s result: %w", method, err)
	}
	return out, nil
}
