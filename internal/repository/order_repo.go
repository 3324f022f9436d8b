package repository

import (
	"context"
	"errors"
	"time"

	"leadledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound      = errors.New("充值单不存在")
	ErrOrderStatusInvalid = errors.New("充值单状态不合法")
)

type CheckoutRepository struct {
	db *gorm.DB
}

func NewCheckoutRepository(db *gorm.DB) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

func (r *CheckoutRepository) Create(ctx context.Context, tx *gorm.DB, order *model.CheckoutOrder) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *CheckoutRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.CheckoutOrder, error) {
	var order model.CheckoutOrder
	err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetBySessionID 按 Stripe 会话查充值单，未找到返回 nil, nil
// webhook 可能先于本地落单到达，调用方需容忍查不到
func (r *CheckoutRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.CheckoutOrder, error) {
	var order model.CheckoutOrder
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 按状态机推进充值单状态
// WHERE 带上旧状态，并发推进时只有一个能生效
func (r *CheckoutRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderNo string, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrOrderStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}

	if toStatus == model.CheckoutStatusCompleted {
		now := time.Now()
		updates["completed_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.CheckoutOrder{}).
		Where("order_no = ? AND status = ?", orderNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOrderStatusInvalid
	}

	return nil
}

// GetExpiredOrders 查询已超时未支付的充值单，供关单任务批量处理
func (r *CheckoutRepository) GetExpiredOrders(ctx context.Context, limit int) ([]*model.CheckoutOrder, error) {
	var orders []*model.CheckoutOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND expired_at < ?", model.CheckoutStatusPending, time.Now()).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// GetPendingOrders 查询在 beforeTime 之前就挂起的充值单，供补偿任务核对
func (r *CheckoutRepository) GetPendingOrders(ctx context.Context, beforeTime time.Time, limit int) ([]*model.CheckoutOrder, error) {
	var orders []*model.CheckoutOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.CheckoutStatusPending, beforeTime).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *CheckoutRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.CheckoutOrder, int64, error) {
	var orders []*model.CheckoutOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CheckoutOrder{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
