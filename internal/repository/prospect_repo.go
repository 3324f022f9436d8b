package repository

import (
	"context"

	"leadledger/internal/model"

	"gorm.io/gorm"
)

type ProspectRepository struct {
	db *gorm.DB
}

func NewProspectRepository(db *gorm.DB) *ProspectRepository {
	return &ProspectRepository{db: db}
}

// CreateBatch 批量写入潜客，与扣费流水在同一事务内提交
func (r *ProspectRepository) CreateBatch(ctx context.Context, tx *gorm.DB, prospects []*model.Prospect) error {
	if len(prospects) == 0 {
		return nil
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(&prospects).Error
}

func (r *ProspectRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Prospect, int64, error) {
	var prospects []*model.Prospect
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Prospect{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&prospects).Error

	return prospects, total, err
}

func (r *ProspectRepository) ListBySearchNo(ctx context.Context, userID int64, searchNo string) ([]*model.Prospect, error) {
	var prospects []*model.Prospect
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND search_no = ?", userID, searchNo).
		Order("id ASC").
		Find(&prospects).Error
	return prospects, err
}

func (r *ProspectRepository) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Prospect{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}
