package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"wallet-session/internal/event"
	"wallet-session/internal/model"
	"wallet-session/internal/service/mq"
	"wallet-session/pkg/logger"
	"wallet-session/pkg/monitor"
)

const relayBatchSize = 50

// RelayService 负责将本地消息表的消息搬运到 MQ
type RelayService struct {
	db       *gorm.DB
	producer mq.Producer
	interval time.Duration
}

func NewRelayService(db *gorm.DB, producer mq.Producer) *RelayService {
	return &RelayService{
		db:       db,
		producer: producer,
		interval: 500 * time.Millisecond, // 500ms 轮询一次
	}
}

// Start 阻塞运行直到 ctx 取消
func (s *RelayService) Start(ctx context.Context) {
	logger.Info("[Relay] 启动消息中继服务")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Relay] 停止服务")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// ProcessPending 投递一批 PENDING 消息，返回成功投递的条数
func (s *RelayService) ProcessPending(ctx context.Context) int {
	// 1. 按 ID 顺序取一批，同一地址的事件保持先后
	var messages []model.OutboxMessage
	err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("id").
		Limit(relayBatchSize).
		Find(&messages).Error
	if err != nil {
		logger.Error("[Relay] 查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		typ := outboxEventType(msg.Payload)

		// 2. 发送 MQ
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			monitor.Business.EventsPublishedTotal.WithLabelValues(typ, "failed").Inc()
			logger.Warn("[Relay] 发送消息失败", zap.Uint64("id", msg.ID), zap.Error(err))
			// 后面的消息先不发，避免乱序
			break
		}

		// 3. 更新状态为 SENT
		// 只有发送成功了才更新状态 => At-least-once (至少一次投递)
		// 如果这里更新失败，下次还会发，Consumer 需做好幂等
		if err := s.db.WithContext(ctx).Model(&msg).Update("status", model.OutboxSent).Error; err != nil {
			logger.Error("[Relay] 更新状态失败", zap.Uint64("id", msg.ID), zap.Error(err))
			break
		}
		monitor.Business.EventsPublishedTotal.WithLabelValues(typ, "sent").Inc()
		sent++
	}

	if sent > 0 {
		logger.Debug("[Relay] 消息已投递", zap.Int("count", sent))
	}
	return sent
}

// outboxEventType 从消息体的 Envelope 中取事件类型，作为指标的 type 标签
func outboxEventType(payload []byte) string {
	var env event.Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Type == "" {
		return "unknown"
	}
	return env.Type
}
