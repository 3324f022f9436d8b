package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"leadledger/internal/model"
	"leadledger/internal/repository"

	"gorm.io/gorm"
)

// SettingsService 定价配置维护
// 读取方（计费、充值）都容忍配置在请求中途被管理员改掉：
// 每次操作开始时取一份快照，整个操作内保持一致
type SettingsService struct {
	settingsRepo *repository.SettingsRepository
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{
		settingsRepo: repository.NewSettingsRepository(db),
	}
}

func (s *SettingsService) GetSettings(ctx context.Context) (*model.CreditSettings, error) {
	return s.settingsRepo.GetOrCreate(ctx)
}

type UpdateSettingsRequest struct {
	PricePerCreditCents int64
	CreditsPerSearch    int64
	CreditsPerResult    int64
	CreditsPerEmail     int64
	FreeCreditsOnSignup int64
	MinPurchaseCredits  int64
}

// UpdateSettings 更新定价参数（管理端操作）
func (s *SettingsService) UpdateSettings(ctx context.Context, req *UpdateSettingsRequest) (*model.CreditSettings, error) {
	if req.PricePerCreditCents <= 0 {
		return nil, errors.New("单积分售价必须大于0")
	}
	if req.MinPurchaseCredits <= 0 {
		return nil, errors.New("最低购买数量必须大于0")
	}
	if req.CreditsPerSearch < 0 || req.CreditsPerResult < 0 || req.CreditsPerEmail < 0 || req.FreeCreditsOnSignup < 0 {
		return nil, errors.New("消耗与赠送参数不能为负数")
	}

	// 确保单例行存在后再更新
	if _, err := s.settingsRepo.GetOrCreate(ctx); err != nil {
		return nil, fmt.Errorf("读取定价配置失败: %w", err)
	}

	settings := &model.CreditSettings{
		PricePerCreditCents: req.PricePerCreditCents,
		CreditsPerSearch:    req.CreditsPerSearch,
		CreditsPerResult:    req.CreditsPerResult,
		CreditsPerEmail:     req.CreditsPerEmail,
		FreeCreditsOnSignup: req.FreeCreditsOnSignup,
		MinPurchaseCredits:  req.MinPurchaseCredits,
	}
	if err := s.settingsRepo.Update(ctx, settings); err != nil {
		return nil, fmt.Errorf("更新定价配置失败: %w", err)
	}

	log.Printf("定价配置更新: price=%d, perSearch=%d, perResult=%d, perEmail=%d, signupGift=%d, minPurchase=%d",
		req.PricePerCreditCents, req.CreditsPerSearch, req.CreditsPerResult,
		req.CreditsPerEmail, req.FreeCreditsOnSignup, req.MinPurchaseCredits)

	return s.settingsRepo.GetOrCreate(ctx)
}
