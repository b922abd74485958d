// Package authclient 是 AuthBackend HTTP 接口的客户端，实现 session.AuthBackend。
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wallet-session/internal/session"
)

const (
	pathNonce  = "/auth/nonce"
	pathVerify = "/auth/verify"
	pathMe     = "/auth/me"
	pathLogout = "/auth/logout"
)

// StatusError 后端返回了非 2xx 状态
type StatusError struct {
	StatusCode int
	Code       int // 业务错误码，响应体不是标准结构时为 0
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("auth backend returned status %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("auth backend returned status %d: %s", e.StatusCode, e.Message)
}

// Identity GET /auth/me 的响应
type Identity struct {
	Address   string    `json:"address"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Client AuthBackend HTTP 客户端
type Client struct {
	baseURL string
	client  *http.Client
}

// Option 配置 Client
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// New 创建客户端，baseURL 形如 http://localhost:8000
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ session.AuthBackend = (*Client)(nil)

// Nonce GET /auth/nonce
func (c *Client) Nonce(ctx context.Context) (string, error) {
	var out struct {
		Nonce string `json:"nonce"`
	}
	if err := c.do(ctx, http.MethodGet, pathNonce, "", nil, &out); err != nil {
		return "", fmt.Errorf("get nonce: %w", err)
	}
	return out.Nonce, nil
}

// Verify POST /auth/verify
func (c *Client) Verify(ctx context.Context, cred session.Credentials) (*session.Grant, error) {
	var grant session.Grant
	if err := c.do(ctx, http.MethodPost, pathVerify, "", cred, &grant); err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}
	return &grant, nil
}

// Me GET /auth/me，返回 token 对应的钱包
func (c *Client) Me(ctx context.Context, token string) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, pathMe, token, nil, &id); err != nil {
		return nil, fmt.Errorf("get current wallet: %w", err)
	}
	return &id, nil
}

// Logout POST /auth/logout，吊销 token
func (c *Client) Logout(ctx context.Context, token string) error {
	if err := c.do(ctx, http.MethodPost, pathLogout, token, nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeStatusError 优先解析 {code, msg} 错误结构，否则保留原始响应体
func decodeStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	se := &StatusError{StatusCode: resp.StatusCode}

	var envelope struct {
		Code    int    `json:"code"`
		Message string `json:"msg"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(raw, &envelope) == nil && (envelope.Message != "" || envelope.Detail != "") {
		se.Code = envelope.Code
		se.Message = envelope.Message
		if se.Message == "" {
			se.Message = envelope.Detail
		}
		return se
	}

	se.Message = strings.TrimSpace(string(raw))
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}
	return se
}
