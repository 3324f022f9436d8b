package model

import (
	"time"
)

// ============================================================================
// 积分流水类型常量
// ============================================================================

const (
	TransactionKindPurchase = "PURCHASE"  // 付费购买
	TransactionKindUsage    = "USAGE"     // 消耗（搜索等计量操作）
	TransactionKindRefund   = "REFUND"    // 退还
	TransactionKindFreeGift = "FREE_GIFT" // 注册赠送
)

// ValidCreditKind 入账类型校验（出账只有 USAGE 一种，由扣费入口直接写入）
func ValidCreditKind(kind string) bool {
	switch kind {
	case TransactionKindPurchase, TransactionKindRefund, TransactionKindFreeGift:
		return true
	}
	return false
}

// BalanceUnlimited 不限量账户的余额哨兵值
const BalanceUnlimited int64 = -1

// ============================================================================
// 积分流水实体
// ============================================================================

// CreditTransaction 积分流水表
// 记录账户的每一笔积分变动，是余额计算和对账的唯一依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 不冗余余额快照 —— 余额一律由流水累加推导，避免计数器漂移
// 3. 外部支付凭证写入 reconcile_token 并加唯一索引 —— 同一笔支付最多入账一次
type CreditTransaction struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID         int64     `gorm:"index;not null" json:"user_id"`                               // 用户ID
	Amount         int64     `gorm:"not null" json:"amount"`                                      // 积分变动（正数入账，负数出账）
	Kind           string    `gorm:"type:varchar(20);not null" json:"kind"`                       // 流水类型
	Description    string    `gorm:"type:varchar(256)" json:"description"`                        // 描述
	ReconcileToken *string   `gorm:"type:varchar(128);uniqueIndex" json:"reconcile_token,omitempty"` // 外部支付凭证（可空，非空时全局唯一）
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CreditTransaction) TableName() string {
	return "credit_transaction"
}
