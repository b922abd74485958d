package session

import (
	"context"
	"errors"
	"net"

	"wallet-session/pkg/ethsig"
)

// Credentials 提交给后端校验的签名凭证
type Credentials struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
}

// Grant 后端签发的登录凭证
type Grant struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

// AuthBackend 负责签发 nonce 并校验签名，internal/authclient 提供 HTTP 实现
type AuthBackend interface {
	Nonce(ctx context.Context) (string, error)
	Verify(ctx context.Context, cred Credentials) (*Grant, error)
}

// DefaultChallenge 与后端约定的签名文本
func DefaultChallenge(nonce string) string {
	return ethsig.ChallengeMessage(nonce)
}

// backendKind 区分超时与普通失败
func backendKind(err error, fallback ErrorKind) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return NetworkTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NetworkTimeout
	}
	return fallback
}
