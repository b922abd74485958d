// Package rpcwallet 把通过 JSON-RPC (HTTP / WebSocket / IPC) 暴露的钱包适配为 eip1193.Provider。
// 这类钱包不推送事件，会话会退回到 eth_accounts 轮询。
package rpcwallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wallet-session/pkg/eip1193"

	"github.com/ethereum/go-ethereum/rpc"
)

// Wallet JSON-RPC 钱包
type Wallet struct {
	client *rpc.Client
}

// Dial 连接钱包节点，rawurl 支持 http(s)://、ws(s):// 与 IPC 路径
func Dial(ctx context.Context, rawurl string) (*Wallet, error) {
	client, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("rpcwallet: dial %s: %w", rawurl, err)
	}
	return New(client), nil
}

// New 使用已有的 rpc.Client
func New(client *rpc.Client) *Wallet {
	return &Wallet{client: client}
}

var _ eip1193.Provider = (*Wallet)(nil)

// Request 转发为 JSON-RPC 调用
func (w *Wallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var result json.RawMessage
	if err := w.client.CallContext(ctx, &result, method, params...); err != nil {
		return nil, convertError(err)
	}
	return result, nil
}

// Close 关闭底层连接
func (w *Wallet) Close() {
	w.client.Close()
}

// convertError 带错误码的 JSON-RPC 错误转换为 ProviderError，其余视为传输层失败
func convertError(err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return fmt.Errorf("rpcwallet: %w", err)
	}

	pe := &eip1193.ProviderError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data := dataErr.ErrorData(); data != nil {
			if raw, mErr := json.Marshal(data); mErr == nil {
				pe.Data = raw
			}
		}
	}
	return pe
}
