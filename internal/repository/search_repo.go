package repository

import (
	"context"

	"leadledger/internal/model"

	"gorm.io/gorm"
)

type SearchRepository struct {
	db *gorm.DB
}

func NewSearchRepository(db *gorm.DB) *SearchRepository {
	return &SearchRepository{db: db}
}

func (r *SearchRepository) Create(ctx context.Context, tx *gorm.DB, record *model.SearchRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

func (r *SearchRepository) GetBySearchNo(ctx context.Context, searchNo string) (*model.SearchRecord, error) {
	var record model.SearchRecord
	err := r.db.WithContext(ctx).Where("search_no = ?", searchNo).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *SearchRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.SearchRecord, int64, error) {
	var records []*model.SearchRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&model.SearchRecord{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error

	return records, total, err
}
