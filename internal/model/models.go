package model

import (
	"time"

	"gorm.io/gorm"
)

// LoginRecord 签名登录记录
// 每次 /auth/verify 成功写入一条，jti 用于登出吊销与审计
type LoginRecord struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Address   string     `gorm:"type:varchar(42);not null;index" json:"address"` // 小写 0x 地址
	JTI       string     `gorm:"column:jti;type:varchar(64);not null;uniqueIndex" json:"jti"`
	IssuedAt  time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	ClientIP  string     `gorm:"type:varchar(64)" json:"client_ip"`
	UserAgent string     `gorm:"type:varchar(255)" json:"user_agent"`
	CreatedAt time.Time  `json:"created_at"`
}

func (LoginRecord) TableName() string {
	return "login_records"
}

// OutboxMessage 本地消息表 (Transactional Outbox)
type OutboxMessage struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string         `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string         `gorm:"type:varchar(255)" json:"key"` // 分区键，这里是钱包地址
	Payload   []byte         `gorm:"type:text;not null" json:"payload"`
	Status    string         `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT, FAILED
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
)
