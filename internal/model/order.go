package model

import (
	"time"
)

const (
	CheckoutStatusPending   = "PENDING"   // 已创建，等待支付
	CheckoutStatusCompleted = "COMPLETED" // 支付完成，积分已入账
	CheckoutStatusExpired   = "EXPIRED"   // 超时未支付
)

// ValidCheckoutTransitions 充值单状态机
// COMPLETED 与 EXPIRED 均为终态
var ValidCheckoutTransitions = map[string][]string{
	CheckoutStatusPending: {CheckoutStatusCompleted, CheckoutStatusExpired},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidCheckoutTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// CheckoutOrder 积分充值单
// 一次 Stripe Checkout 会话对应一条记录，积分入账以流水表的
// reconcile_token 唯一索引为准，本表只负责展示与超时关单
type CheckoutOrder struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	SessionID   string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"session_id"` // Stripe Checkout Session ID
	UserID      int64      `gorm:"index;not null" json:"user_id"`
	Credits     int64      `gorm:"not null" json:"credits"`      // 购买积分数
	AmountCents int64      `gorm:"not null" json:"amount_cents"` // 应付金额（美分）
	Status      string     `gorm:"type:varchar(20);index;not null" json:"status"`
	ExpiredAt   time.Time  `gorm:"not null" json:"expired_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CheckoutOrder) TableName() string {
	return "checkout_order"
}
