package job

import (
	"context"
	"log"
	"time"

	"leadledger/internal/config"
	"leadledger/internal/model"
	"leadledger/internal/repository"

	"gorm.io/gorm"
)

// CheckoutExpiryJob 充值单超时关单任务
// 用户打开了 Stripe 收银台但一直不付钱，超时后把本地单置为 EXPIRED
// 积分入账只认流水表的唯一凭证，关单永远不会影响已入账的支付
type CheckoutExpiryJob struct {
	db           *gorm.DB
	checkoutRepo *repository.CheckoutRepository
	cfg          *config.Config
	stopCh       chan struct{}
	interval     time.Duration
	batchSize    int
}

func NewCheckoutExpiryJob(db *gorm.DB, cfg *config.Config) *CheckoutExpiryJob {
	return &CheckoutExpiryJob{
		db:           db,
		checkoutRepo: repository.NewCheckoutRepository(db),
		cfg:          cfg,
		stopCh:       make(chan struct{}),
		interval:     10 * time.Second,
		batchSize:    100,
	}
}

func (j *CheckoutExpiryJob) Start(ctx context.Context) {
	log.Println("[CheckoutExpiryJob] 充值单超时任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[CheckoutExpiryJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[CheckoutExpiryJob] 任务停止")
			return
		case <-ticker.C:
			j.closeExpiredOrders(ctx)
		}
	}
}

func (j *CheckoutExpiryJob) Stop() {
	close(j.stopCh)
}

func (j *CheckoutExpiryJob) closeExpiredOrders(ctx context.Context) {
	orders, err := j.checkoutRepo.GetExpiredOrders(ctx, j.batchSize)
	if err != nil {
		log.Printf("[CheckoutExpiryJob] 查询超时充值单失败: %v", err)
		return
	}

	if len(orders) == 0 {
		return
	}

	log.Printf("[CheckoutExpiryJob] 发现 %d 个超时充值单", len(orders))

	closedCount := 0
	for _, order := range orders {
		err := j.checkoutRepo.UpdateStatus(ctx, nil, order.OrderNo, model.CheckoutStatusPending, model.CheckoutStatusExpired)
		if err != nil {
			log.Printf("[CheckoutExpiryJob] 关闭充值单失败: orderNo=%s, err=%v", order.OrderNo, err)
			continue
		}
		closedCount++
		log.Printf("[CheckoutExpiryJob] 充值单已超时关闭: orderNo=%s, userID=%d, credits=%d",
			order.OrderNo, order.UserID, order.Credits)
	}

	log.Printf("[CheckoutExpiryJob] 本次关闭 %d 个超时充值单", closedCount)
}

// CheckoutCompensateJob 充值单补偿任务
//
// 场景：webhook 入账成功（流水已带会话凭证），但推进充值单状态那一步失败了，
// 单子停在 PENDING。积分没丢（流水为准），但展示状态不对。
// 这里周期核对：挂起单的会话凭证在流水表里能查到，就补推进到 COMPLETED
type CheckoutCompensateJob struct {
	db              *gorm.DB
	checkoutRepo    *repository.CheckoutRepository
	transactionRepo *repository.TransactionRepository
	cfg             *config.Config
	stopCh          chan struct{}
	interval        time.Duration
	batchSize       int
}

func NewCheckoutCompensateJob(db *gorm.DB, cfg *config.Config) *CheckoutCompensateJob {
	return &CheckoutCompensateJob{
		db:              db,
		checkoutRepo:    repository.NewCheckoutRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		cfg:             cfg,
		stopCh:          make(chan struct{}),
		interval:        30 * time.Second,
		batchSize:       50,
	}
}

func (j *CheckoutCompensateJob) Start(ctx context.Context) {
	log.Println("[CheckoutCompensateJob] 补偿任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[CheckoutCompensateJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[CheckoutCompensateJob] 任务停止")
			return
		case <-ticker.C:
			j.compensatePendingOrders(ctx)
		}
	}
}

func (j *CheckoutCompensateJob) Stop() {
	close(j.stopCh)
}

func (j *CheckoutCompensateJob) compensatePendingOrders(ctx context.Context) {
	beforeTime := time.Now().Add(-5 * time.Minute)
	orders, err := j.checkoutRepo.GetPendingOrders(ctx, beforeTime, j.batchSize)
	if err != nil {
		log.Printf("[CheckoutCompensateJob] 查询充值单失败: %v", err)
		return
	}

	if len(orders) == 0 {
		return
	}

	log.Printf("[CheckoutCompensateJob] 发现 %d 个需要核对的充值单", len(orders))

	for _, order := range orders {
		j.compensateOrder(ctx, order)
	}
}

func (j *CheckoutCompensateJob) compensateOrder(ctx context.Context, order *model.CheckoutOrder) {
	trans, err := j.transactionRepo.GetByReconcileToken(ctx, nil, order.SessionID)
	if err != nil {
		log.Printf("[CheckoutCompensateJob] 查询流水失败: orderNo=%s, err=%v", order.OrderNo, err)
		return
	}

	// 流水里查不到凭证说明确实没入账，留给超时关单处理
	if trans == nil {
		return
	}

	log.Printf("[CheckoutCompensateJob] 发现已入账但状态未推进的充值单: orderNo=%s, transactionNo=%s",
		order.OrderNo, trans.TransactionNo)

	err = j.checkoutRepo.UpdateStatus(ctx, nil, order.OrderNo, model.CheckoutStatusPending, model.CheckoutStatusCompleted)
	if err != nil {
		log.Printf("[CheckoutCompensateJob] 补偿推进充值单失败: orderNo=%s, err=%v", order.OrderNo, err)
	} else {
		log.Printf("[CheckoutCompensateJob] 补偿成功，充值单已推进为 COMPLETED: orderNo=%s", order.OrderNo)
	}
}
