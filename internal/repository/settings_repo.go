package repository

import (
	"context"

	"leadledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository 定价配置仓储
// 配置表只有一行（ID 固定为 model.SettingsID）
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetOrCreate 读取定价配置，不存在时写入默认值
// 并发初始化依赖主键冲突去重，两个进程同时启动也只会留下一行
func (r *SettingsRepository) GetOrCreate(ctx context.Context) (*model.CreditSettings, error) {
	var settings model.CreditSettings
	err := r.db.WithContext(ctx).Where("id = ?", model.SettingsID).First(&settings).Error
	if err == nil {
		return &settings, nil
	}

	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	defaults := model.DefaultCreditSettings()
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(defaults).Error
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Where("id = ?", model.SettingsID).First(&settings).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Update 全量更新定价参数，只允许管理端调用
func (r *SettingsRepository) Update(ctx context.Context, settings *model.CreditSettings) error {
	settings.ID = model.SettingsID
	return r.db.WithContext(ctx).
		Model(&model.CreditSettings{}).
		Where("id = ?", model.SettingsID).
		Updates(map[string]interface{}{
			"price_per_credit_cents": settings.PricePerCreditCents,
			"credits_per_search":     settings.CreditsPerSearch,
			"credits_per_result":     settings.CreditsPerResult,
			"credits_per_email":      settings.CreditsPerEmail,
			"free_credits_on_signup": settings.FreeCreditsOnSignup,
			"min_purchase_credits":   settings.MinPurchaseCredits,
		}).Error
}
