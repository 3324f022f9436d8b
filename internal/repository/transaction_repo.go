package repository

import (
	"context"

	"leadledger/internal/model"

	"gorm.io/gorm"
)

// TransactionRepository 积分流水仓储
// 流水表只有插入和查询，没有更新与删除
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.CreditTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

// SumAmountByUserID 计算用户当前余额（全量流水累加）
// 传入 tx 时在事务内读取，保证与后续写入看到同一快照
func (r *TransactionRepository) SumAmountByUserID(ctx context.Context, tx *gorm.DB, userID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var balance int64
	err := tx.WithContext(ctx).
		Model(&model.CreditTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&balance).Error
	return balance, err
}

// SumConsumedByUserID 计算用户累计消耗（USAGE 流水绝对值之和）
func (r *TransactionRepository) SumConsumedByUserID(ctx context.Context, userID int64) (int64, error) {
	var consumed int64
	err := r.db.WithContext(ctx).
		Model(&model.CreditTransaction{}).
		Where("user_id = ? AND kind = ?", userID, model.TransactionKindUsage).
		Select("COALESCE(SUM(-amount), 0)").
		Scan(&consumed).Error
	return consumed, err
}

// GetByReconcileToken 按外部支付凭证查流水
// 未找到返回 nil, nil，由调用方决定是否视为可入账
func (r *TransactionRepository) GetByReconcileToken(ctx context.Context, tx *gorm.DB, token string) (*model.CreditTransaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.CreditTransaction
	err := tx.WithContext(ctx).Where("reconcile_token = ?", token).First(&trans).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.CreditTransaction, error) {
	var trans model.CreditTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.CreditTransaction, int64, error) {
	var transactions []*model.CreditTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CreditTransaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// KindSummary 按流水类型聚合的统计行
type KindSummary struct {
	Kind  string `json:"kind"`
	Total int64  `json:"total"`
	Count int64  `json:"count"`
}

// SummarizeByKind 全平台按类型汇总，供管理端对账报表使用
func (r *TransactionRepository) SummarizeByKind(ctx context.Context) ([]*KindSummary, error) {
	var rows []*KindSummary
	err := r.db.WithContext(ctx).
		Model(&model.CreditTransaction{}).
		Select("kind, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Group("kind").
		Find(&rows).Error
	return rows, err
}

// SummarizeUserByKind 单个用户按类型汇总
func (r *TransactionRepository) SummarizeUserByKind(ctx context.Context, userID int64) ([]*KindSummary, error) {
	var rows []*KindSummary
	err := r.db.WithContext(ctx).
		Model(&model.CreditTransaction{}).
		Where("user_id = ?", userID).
		Select("kind, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Group("kind").
		Find(&rows).Error
	return rows, err
}
