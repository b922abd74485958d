package model

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// CreateOutboxMessage 写入一条待投递的事件，调用方传入业务事务 tx，
// 保证登录记录与事件同时提交或同时回滚。key 为分区键 (钱包地址)。
func CreateOutboxMessage(tx *gorm.DB, topic, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: 序列化 %s 事件失败: %w", topic, err)
	}

	return tx.Create(&OutboxMessage{
		Topic:   topic,
		Key:     key,
		Payload: body,
		Status:  OutboxPending,
	}).Error
}
