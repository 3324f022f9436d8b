package service

import (
	"context"

	"leadledger/internal/model"
	"leadledger/internal/repository"

	"gorm.io/gorm"
)

// AccountingService 管理端对账报表
// 报表一律按流水口径统计，不做不限量账户的哨兵换算
type AccountingService struct {
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewAccountingService(db *gorm.DB) *AccountingService {
	return &AccountingService{
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

type PlatformReport struct {
	TotalPurchased int64                     `json:"total_purchased"` // 付费购入总量
	TotalGranted   int64                     `json:"total_granted"`   // 注册赠送总量
	TotalRefunded  int64                     `json:"total_refunded"`  // 退还总量
	TotalConsumed  int64                     `json:"total_consumed"`  // 消耗总量（绝对值）
	Outstanding    int64                     `json:"outstanding"`     // 未消耗净余量（全部流水净和）
	ByKind         []*repository.KindSummary `json:"by_kind"`
}

// PlatformReport 全平台积分收支汇总
func (s *AccountingService) PlatformReport(ctx context.Context) (*PlatformReport, error) {
	rows, err := s.transactionRepo.SummarizeByKind(ctx)
	if err != nil {
		return nil, err
	}

	report := &PlatformReport{ByKind: rows}
	for _, row := range rows {
		report.Outstanding += row.Total
		switch row.Kind {
		case model.TransactionKindPurchase:
			report.TotalPurchased = row.Total
		case model.TransactionKindFreeGift:
			report.TotalGranted = row.Total
		case model.TransactionKindRefund:
			report.TotalRefunded = row.Total
		case model.TransactionKindUsage:
			report.TotalConsumed = -row.Total
		}
	}

	return report, nil
}

type UserReport struct {
	UserID   int64                     `json:"user_id"`
	Balance  int64                     `json:"balance"`  // 流水净和
	Consumed int64                     `json:"consumed"` // 消耗总量（绝对值）
	ByKind   []*repository.KindSummary `json:"by_kind"`
}

// UserReport 单个用户的积分收支汇总
func (s *AccountingService) UserReport(ctx context.Context, userID int64) (*UserReport, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		if err == repository.ErrUserNotFound {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	rows, err := s.transactionRepo.SummarizeUserByKind(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &UserReport{UserID: userID, ByKind: rows}
	for _, row := range rows {
		report.Balance += row.Total
		if row.Kind == model.TransactionKindUsage {
			report.Consumed = -row.Total
		}
	}

	return report, nil
}

// ListFailedOutbox 查看投递失败的发件箱消息，供运维排查
func (s *AccountingService) ListFailedOutbox(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.outboxRepo.GetFailedMessages(ctx, limit)
}
