package model

import (
	"time"
)

// SettingsID 定价配置的固定主键，全表仅此一行
const SettingsID int64 = 1

// CreditSettings 积分定价配置表（单例行）
// 定价参数由管理员维护，计费服务只读
type CreditSettings struct {
	ID                  int64     `gorm:"primaryKey" json:"id"`
	PricePerCreditCents int64     `gorm:"not null;default:10" json:"price_per_credit_cents"` // 单积分售价（美分）
	CreditsPerSearch    int64     `gorm:"not null;default:5" json:"credits_per_search"`      // 每次搜索基础消耗
	CreditsPerResult    int64     `gorm:"not null;default:1" json:"credits_per_result"`      // 每条结果消耗
	CreditsPerEmail     int64     `gorm:"not null;default:3" json:"credits_per_email"`       // 每封外发邮件消耗
	FreeCreditsOnSignup int64     `gorm:"not null;default:15" json:"free_credits_on_signup"` // 注册赠送
	MinPurchaseCredits  int64     `gorm:"not null;default:10" json:"min_purchase_credits"`   // 最低购买数量
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CreditSettings) TableName() string {
	return "credit_settings"
}

// DefaultCreditSettings 初始定价
func DefaultCreditSettings() *CreditSettings {
	return &CreditSettings{
		ID:                  SettingsID,
		PricePerCreditCents: 10,
		CreditsPerSearch:    5,
		CreditsPerResult:    1,
		CreditsPerEmail:     3,
		FreeCreditsOnSignup: 15,
		MinPurchaseCredits:  10,
	}
}
