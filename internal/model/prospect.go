package model

import (
	"time"
)

// ============================================================================
// 潜客数据源
// ============================================================================

const (
	SourceGoogle      = "google"
	SourcePagesJaunes = "pagesjaunes"
	SourceYelp        = "yelp"
	SourceOSM         = "osm"
	SourceMappy       = "mappy"
	SourceMock        = "mock"
	SourceAll         = "all" // 聚合所有已注册数据源
)

// Prospect 潜客表
// 搜索抓取到的商家线索，归属发起搜索的用户
type Prospect struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"index;not null" json:"user_id"`
	SearchNo   string    `gorm:"type:varchar(64);index;not null" json:"search_no"` // 关联搜索批次号
	Name       string    `gorm:"type:varchar(128);not null" json:"name"`
	Category   string    `gorm:"type:varchar(64)" json:"category"`
	Address    string    `gorm:"type:varchar(256)" json:"address"`
	City       string    `gorm:"type:varchar(64)" json:"city"`
	PostalCode string    `gorm:"type:varchar(16)" json:"postal_code"`
	Phone      string    `gorm:"type:varchar(32)" json:"phone"`
	Email      string    `gorm:"type:varchar(128)" json:"email"`
	Website    string    `gorm:"type:varchar(256)" json:"website"`
	Source     string    `gorm:"type:varchar(20);not null" json:"source"`
	Confidence int       `gorm:"not null;default:1" json:"confidence"` // 数据可信度 1-4
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Prospect) TableName() string {
	return "prospect"
}

// SearchRecord 搜索批次表
// 记录一次计量搜索的参数、结果量与实际扣费，供账单核对
type SearchRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SearchNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"search_no"`
	UserID         int64     `gorm:"index;not null" json:"user_id"`
	Category       string    `gorm:"type:varchar(64);not null" json:"category"`
	City           string    `gorm:"type:varchar(64);not null" json:"city"`
	Source         string    `gorm:"type:varchar(20);not null" json:"source"`
	MaxResults     int       `gorm:"not null" json:"max_results"`
	ResultCount    int       `gorm:"not null" json:"result_count"`
	CreditsCharged int64     `gorm:"not null" json:"credits_charged"` // 实际扣除积分（不限量账户为 0）
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (SearchRecord) TableName() string {
	return "search_record"
}
