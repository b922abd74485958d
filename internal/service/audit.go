package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wallet-session/internal/event"
	"wallet-session/internal/service/mq"
	"wallet-session/pkg/cache"
	"wallet-session/pkg/logger"
	"wallet-session/pkg/monitor"
	"wallet-session/pkg/validator"
)

// 去重窗口，覆盖 Relay 至少一次投递带来的重复
const auditDedupTTL = 24 * time.Hour

// AuditService 消费认证事件并写审计日志
type AuditService struct {
	seen cache.Cache
	log  *zap.Logger
}

func NewAuditService(seen cache.Cache) *AuditService {
	return &AuditService{
		seen: seen,
		log:  logger.Named("audit"),
	}
}

// HandleMessage 实现 mq.Consumer 的 handler
// 格式错误的消息直接丢弃 (返回 nil)，去重存储出错时返回 error 让 MQ 重投
func (s *AuditService) HandleMessage(msg *mq.Message) error {
	ctx := context.Background()

	// 1. 解析并校验
	var env event.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		s.log.Warn("丢弃无法解析的消息", zap.String("id", msg.ID), zap.Error(err))
		return nil
	}
	if err := validator.Struct(&env); err != nil {
		s.log.Warn("丢弃非法事件", zap.String("id", msg.ID), zap.String("reason", validator.GetErrorMsg(err)))
		return nil
	}

	// 2. 幂等: 同一个 jti 的同类事件只处理一次
	key := "audit:" + env.Type + ":" + env.JTI
	var seen bool
	err := s.seen.Get(ctx, key, &seen)
	switch {
	case err == nil:
		s.log.Debug("重复事件", zap.String("key", key))
		return nil
	case !errors.Is(err, cache.ErrMiss):
		return fmt.Errorf("check duplicate: %w", err)
	}

	// 3. 审计日志
	fields := []zap.Field{
		zap.String("type", env.Type),
		zap.String("address", env.Address),
		zap.String("jti", env.JTI),
		zap.Time("occurred_at", env.OccurredAt),
	}
	if env.Type == event.TypeWalletAuthenticated {
		var evt event.WalletAuthenticatedEvent
		if err := json.Unmarshal(msg.Payload, &evt); err == nil {
			fields = append(fields, zap.Time("expires_at", evt.ExpiresAt), zap.String("client_ip", evt.ClientIP))
		}
	}
	s.log.Info("auth event", fields...)
	monitor.Business.EventsConsumedTotal.WithLabelValues(env.Type).Inc()

	return s.seen.Set(ctx, key, true, auditDedupTTL)
}
