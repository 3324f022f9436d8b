package job

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"leadledger/internal/model"
	"leadledger/pkg/idgen"
)

func seedOrder(t *testing.T, db *gorm.DB, status string, expiredAt time.Time) *model.CheckoutOrder {
	t.Helper()
	order := &model.CheckoutOrder{
		OrderNo:     idgen.GenerateCheckoutNo(),
		SessionID:   fmt.Sprintf("cs_test_%d", idgen.NextID()),
		UserID:      1,
		Credits:     50,
		AmountCents: 500,
		Status:      status,
		ExpiredAt:   expiredAt,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func orderByNo(t *testing.T, db *gorm.DB, orderNo string) *model.CheckoutOrder {
	t.Helper()
	var order model.CheckoutOrder
	require.NoError(t, db.Where("order_no = ?", orderNo).First(&order).Error)
	return &order
}

// backdateOrder 把充值单伪装成挂起已久，补偿任务只核对超过缓冲期的单
func backdateOrder(t *testing.T, db *gorm.DB, orderNo string) {
	t.Helper()
	require.NoError(t, db.Model(&model.CheckoutOrder{}).
		Where("order_no = ?", orderNo).
		UpdateColumn("updated_at", time.Now().Add(-10*time.Minute)).Error)
}

func TestCheckoutExpiryJob_ClosesOverdueOrders(t *testing.T) {
	db := newTestDB(t)
	j := NewCheckoutExpiryJob(db, newJobConfig())

	stale := seedOrder(t, db, model.CheckoutStatusPending, time.Now().Add(-time.Minute))
	fresh := seedOrder(t, db, model.CheckoutStatusPending, time.Now().Add(30*time.Minute))

	j.closeExpiredOrders(context.Background())

	assert.Equal(t, model.CheckoutStatusExpired, orderByNo(t, db, stale.OrderNo).Status)
	assert.Equal(t, model.CheckoutStatusPending, orderByNo(t, db, fresh.OrderNo).Status)
}

func TestCheckoutCompensateJob_PromotesAccountedOrder(t *testing.T) {
	db := newTestDB(t)
	j := NewCheckoutCompensateJob(db, newJobConfig())

	// webhook 入账成功但推进状态那步失败过：流水带着会话凭证，单子停在 PENDING
	order := seedOrder(t, db, model.CheckoutStatusPending, time.Now().Add(30*time.Minute))
	token := order.SessionID
	require.NoError(t, db.Create(&model.CreditTransaction{
		TransactionNo:  idgen.GenerateTransactionNo(),
		UserID:         order.UserID,
		Amount:         order.Credits,
		Kind:           model.TransactionKindPurchase,
		ReconcileToken: &token,
	}).Error)
	backdateOrder(t, db, order.OrderNo)

	j.compensatePendingOrders(context.Background())

	got := orderByNo(t, db, order.OrderNo)
	assert.Equal(t, model.CheckoutStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestCheckoutCompensateJob_LeavesUnpaidOrderAlone(t *testing.T) {
	db := newTestDB(t)
	j := NewCheckoutCompensateJob(db, newJobConfig())

	order := seedOrder(t, db, model.CheckoutStatusPending, time.Now().Add(30*time.Minute))
	backdateOrder(t, db, order.OrderNo)

	j.compensatePendingOrders(context.Background())

	// 流水里查不到凭证说明确实没入账，单子留给超时关单处理
	assert.Equal(t, model.CheckoutStatusPending, orderByNo(t, db, order.OrderNo).Status)
}
