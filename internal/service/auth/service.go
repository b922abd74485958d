package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"wallet-session/internal/event"
	"wallet-session/internal/model"
	"wallet-session/pkg/cache"
	"wallet-session/pkg/errno"
	"wallet-session/pkg/ethsig"
	"wallet-session/pkg/logger"
	"wallet-session/pkg/monitor"
	"wallet-session/pkg/safe_random"
)

const (
	DefaultNonceTTL = 5 * time.Minute

	nonceKeyPrefix   = "nonce:"
	revokedKeyPrefix = "revoked:"
)

// VerifyInput 一次签名登录请求
type VerifyInput struct {
	Address   string
	Signature string
	Nonce     string
	ClientIP  string
	UserAgent string
}

// Grant 登录成功后返回给客户端的内容
type Grant struct {
	Token     string
	Address   string
	ExpiresAt time.Time
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithNonceTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.nonceTTL = ttl
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// Service 签发 nonce、校验签名、签发与吊销 token
// store 同时保存一次性 nonce (nonce:<hex>) 与吊销列表 (revoked:<jti>)
type Service struct {
	store    cache.Cache
	tokens   *TokenIssuer
	recorder Recorder
	nonceTTL time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store cache.Cache, tokens *TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:    store,
		tokens:   tokens,
		recorder: NopRecorder{},
		nonceTTL: DefaultNonceTTL,
		log:      logger.Named("auth"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueNonce 生成 32 字节随机 nonce 并在 TTL 内有效
func (s *Service) IssueNonce(ctx context.Context) (string, error) {
	nonce, err := safe_random.GenerateNonce()
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, nonceKeyPrefix+nonce, true, s.nonceTTL); err != nil {
		s.log.Error("store nonce failed", zap.Error(err))
		return "", errno.ErrCache
	}

	monitor.Business.NonceIssuedTotal.Inc()
	return nonce, nil
}

// Verify 校验签名并签发 token
func (s *Service) Verify(ctx context.Context, in VerifyInput) (*Grant, error) {
	start := s.now()
	defer func() {
		monitor.Business.VerifyDuration.Observe(s.now().Sub(start).Seconds())
	}()

	// 1. 先原子消费 nonce，签名错误也不能重放
	var ok bool
	if err := s.store.Take(ctx, nonceKeyPrefix+strings.ToLower(in.Nonce), &ok); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			monitor.Business.LoginTotal.WithLabelValues("nonce_invalid").Inc()
			return nil, errno.ErrNonceInvalid
		}
		s.log.Error("consume nonce failed", zap.Error(err))
		return nil, errno.ErrCache
	}

	// 2. 恢复签名地址
	message := ethsig.ChallengeMessage(in.Nonce)
	if err := ethsig.VerifyText(in.Address, []byte(message), in.Signature); err != nil {
		monitor.Business.LoginTotal.WithLabelValues("signature_invalid").Inc()
		s.log.Info("signature rejected", zap.String("address", in.Address), zap.Error(err))
		return nil, errno.ErrSignatureInvalid
	}

	// 3. 签发 token
	token, claims, err := s.tokens.Issue(in.Address)
	if err != nil {
		return nil, err
	}

	// 4. 记录登录并发出事件
	rec := &model.LoginRecord{
		Address:   claims.Address,
		JTI:       claims.JWTID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt(),
		ClientIP:  in.ClientIP,
		UserAgent: truncate(in.UserAgent, 255),
	}
	evt := &event.WalletAuthenticatedEvent{
		Envelope: event.Envelope{
			Type:       event.TypeWalletAuthenticated,
			Address:    claims.Address,
			JTI:        claims.JWTID,
			OccurredAt: s.now().UTC(),
		},
		ExpiresAt: claims.ExpiresAt(),
		ClientIP:  in.ClientIP,
	}
	if err := s.recorder.RecordLogin(ctx, rec, evt); err != nil {
		s.log.Error("record login failed", zap.String("address", claims.Address), zap.Error(err))
		return nil, errno.ErrDatabase
	}

	monitor.Business.LoginTotal.WithLabelValues("success").Inc()
	s.log.Info("wallet authenticated", zap.String("address", claims.Address), zap.String("jti", claims.JWTID))

	return &Grant{Token: token, Address: claims.Address, ExpiresAt: claims.ExpiresAt()}, nil
}

// Authorize 解析 token 并检查吊销列表
func (s *Service) Authorize(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, errno.ErrTokenInvalid
	}

	var revoked bool
	err = s.store.Get(ctx, revokedKeyPrefix+claims.JWTID, &revoked)
	switch {
	case err == nil:
		return nil, errno.ErrTokenRevoked
	case errors.Is(err, cache.ErrMiss):
		return claims, nil
	default:
		s.log.Error("check revocation failed", zap.Error(err))
		return nil, errno.ErrCache
	}
}

// Logout 吊销 token 直到其自然过期
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	ttl := claims.ExpiresAt().Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.store.Set(ctx, revokedKeyPrefix+claims.JWTID, true, ttl); err != nil {
		return fmt.Errorf("revoke %s: %w", claims.JWTID, errno.ErrCache)
	}

	evt := &event.WalletLoggedOutEvent{
		Envelope: event.Envelope{
			Type:       event.TypeWalletLoggedOut,
			Address:    claims.Address,
			JTI:        claims.JWTID,
			OccurredAt: s.now().UTC(),
		},
	}
	if err := s.recorder.RecordLogout(ctx, evt); err != nil {
		// token 已进入吊销列表，记录失败不影响登出
		s.log.Warn("record logout failed", zap.String("jti", claims.JWTID), zap.Error(err))
	}

	monitor.Business.LogoutTotal.Inc()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
