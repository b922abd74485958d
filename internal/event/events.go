package event

import "time"

// TopicAuth 认证事件主题
// Topic: wallet_events_auth
const TopicAuth = "wallet_events_auth"

const (
	TypeWalletAuthenticated = "wallet.authenticated"
	TypeWalletLoggedOut     = "wallet.logged_out"
)

// Envelope 所有认证事件的外层结构，消费者先按 Type 分发
type Envelope struct {
	Type       string    `json:"type" binding:"required,oneof=wallet.authenticated wallet.logged_out"`
	Address    string    `json:"address" binding:"required,eth_addr"`
	JTI        string    `json:"jti" binding:"required"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WalletAuthenticatedEvent 签名登录成功事件
type WalletAuthenticatedEvent struct {
	Envelope
	ExpiresAt time.Time `json:"expires_at"`
	ClientIP  string    `json:"client_ip,omitempty"`
}

// WalletLoggedOutEvent 登出 (token 吊销) 事件
type WalletLoggedOutEvent struct {
	Envelope
}
