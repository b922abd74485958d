package auth

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"wallet-session/internal/event"
	"wallet-session/internal/model"
	"wallet-session/internal/service/mq"
	"wallet-session/pkg/monitor"
)

// Recorder 登录/登出的副作用: 登录记录与认证事件
type Recorder interface {
	RecordLogin(ctx context.Context, rec *model.LoginRecord, evt *event.WalletAuthenticatedEvent) error
	RecordLogout(ctx context.Context, evt *event.WalletLoggedOutEvent) error
}

// NopRecorder 不落库也不发事件
type NopRecorder struct{}

func (NopRecorder) RecordLogin(context.Context, *model.LoginRecord, *event.WalletAuthenticatedEvent) error {
	return nil
}

func (NopRecorder) RecordLogout(context.Context, *event.WalletLoggedOutEvent) error {
	return nil
}

// DBRecorder 在同一事务里写登录记录和 Outbox 消息，由 RelayService 投递到 MQ
type DBRecorder struct {
	db *gorm.DB
}

func NewDBRecorder(db *gorm.DB) *DBRecorder {
	return &DBRecorder{db: db}
}

func (r *DBRecorder) RecordLogin(ctx context.Context, rec *model.LoginRecord, evt *event.WalletAuthenticatedEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 登录记录
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		// 2. Outbox 消息，与记录同生共死
		return model.CreateOutboxMessage(tx, event.TopicAuth, evt.Address, evt)
	})
}

func (r *DBRecorder) RecordLogout(ctx context.Context, evt *event.WalletLoggedOutEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.LoginRecord{}).
			Where("jti = ? AND revoked_at IS NULL", evt.JTI).
			Update("revoked_at", evt.OccurredAt).Error
		if err != nil {
			return err
		}
		return model.CreateOutboxMessage(tx, event.TopicAuth, evt.Address, evt)
	})
}

// PruneExpired 删除 before 之前已过期的登录记录
func (r *DBRecorder) PruneExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&model.LoginRecord{})
	return res.RowsAffected, res.Error
}

// PublishRecorder 没有数据库时直接把事件发到 MQ，发送失败只记日志
type PublishRecorder struct {
	producer mq.Producer
	log      *zap.Logger
}

func NewPublishRecorder(producer mq.Producer, log *zap.Logger) *PublishRecorder {
	return &PublishRecorder{producer: producer, log: log}
}

func (r *PublishRecorder) RecordLogin(ctx context.Context, _ *model.LoginRecord, evt *event.WalletAuthenticatedEvent) error {
	r.publish(ctx, evt.Type, evt.Address, evt)
	return nil
}

func (r *PublishRecorder) RecordLogout(ctx context.Context, evt *event.WalletLoggedOutEvent) error {
	r.publish(ctx, evt.Type, evt.Address, evt)
	return nil
}

func (r *PublishRecorder) publish(ctx context.Context, typ, key string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err == nil {
		err = r.producer.Publish(ctx, event.TopicAuth, key, body)
	}
	if err != nil {
		monitor.Business.EventsPublishedTotal.WithLabelValues(typ, "failed").Inc()
		r.log.Warn("publish auth event failed", zap.String("type", typ), zap.Error(err))
		return
	}
	monitor.Business.EventsPublishedTotal.WithLabelValues(typ, "sent").Inc()
}
