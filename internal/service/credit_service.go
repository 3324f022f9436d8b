package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"leadledger/internal/config"
	"leadledger/internal/infrastructure/lock"
	"leadledger/internal/model"
	"leadledger/internal/repository"
	"leadledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ============================================================================
// 积分账本服务
// ============================================================================
//
// 【核心设计】余额不落库，只存流水
//
// 余额 = SUM(全部流水金额)，每次都从流水表推导：
//   - 优点：不存在"计数器和流水对不上"的问题，审计只看一张表
//   - 代价：扣费前的余额校验必须和写流水在同一事务内完成，
//     并靠按用户维度的分布式锁挡住并发扣费
//
// 【幂等入账】外部支付（Stripe）可能重复投递同一笔支付：
//   webhook 推送和用户主动核验会携带同一个支付凭证（reconcile_token），
//   流水表对该列加唯一索引，同一凭证最多入账一次，
//   重复请求返回已存在的流水并标记 AlreadyApplied，调用方按成功处理
//
// ============================================================================

type CreditService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewCreditService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *CreditService {
	return &CreditService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// ----------------------------------------------------------------------------
// 余额计算
// ----------------------------------------------------------------------------

// GetBalance 查询当前余额
// 不限量账户不读流水，直接返回哨兵值 BalanceUnlimited
func (s *CreditService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	if user.Role.Unlimited() {
		return model.BalanceUnlimited, nil
	}

	return s.transactionRepo.SumAmountByUserID(ctx, nil, userID)
}

// GetConsumed 查询累计消耗
// 不限量账户约定为 0（它们的用量不写流水）
func (s *CreditService) GetConsumed(ctx context.Context, userID int64) (int64, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	if user.Role.Unlimited() {
		return 0, nil
	}

	return s.transactionRepo.SumConsumedByUserID(ctx, userID)
}

func (s *CreditService) getUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return user, nil
}

// ----------------------------------------------------------------------------
// 入账
// ----------------------------------------------------------------------------

type AddCreditsRequest struct {
	UserID         int64
	Amount         int64
	Kind           string
	Description    string
	ReconcileToken *string
}

// AddCredits 追加一笔入账流水
// 入账不会触碰余额下限，无需加锁
func (s *CreditService) AddCredits(ctx context.Context, req *AddCreditsRequest) (*model.CreditTransaction, error) {
	if _, err := s.getUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	var trans *model.CreditTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		trans, txErr = s.CreditTx(ctx, tx, req.UserID, req.Amount, req.Kind, req.Description, req.ReconcileToken)
		if txErr != nil {
			return txErr
		}
		return s.appendCreditEvent(ctx, tx, "credit.added", trans)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("入账成功: transactionNo=%s, userID=%d, amount=%d, kind=%s",
		trans.TransactionNo, req.UserID, req.Amount, req.Kind)

	return trans, nil
}

// CreditTx 事务内入账原语：校验参数并追加一条正数流水
// 供本服务和注册赠送等需要合并事务的调用方使用
func (s *CreditService) CreditTx(ctx context.Context, tx *gorm.DB, userID int64, amount int64, kind, description string, token *string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !model.ValidCreditKind(kind) {
		return nil, ErrInvalidKind
	}

	trans := &model.CreditTransaction{
		TransactionNo:  idgen.GenerateTransactionNo(),
		UserID:         userID,
		Amount:         amount,
		Kind:           kind,
		Description:    description,
		ReconcileToken: token,
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}
	return trans, nil
}

// ----------------------------------------------------------------------------
// 扣费
// ----------------------------------------------------------------------------

type UseCreditsRequest struct {
	UserID      int64
	Amount      int64
	Description string
}

type UseCreditsResult struct {
	TransactionNo string `json:"transaction_no"` // 不限量账户为空
	Charged       int64  `json:"charged"`        // 实际扣除积分
	Balance       int64  `json:"balance"`        // 扣除后余额
}

// UseCredits 扣减积分
//
// 【关键点】余额校验与写流水必须原子：
//  1. 先拿该用户的积分锁，挡住同一账户的并发扣费
//  2. 事务内重新累加余额（不要用锁外的旧值）
//  3. 余额够才追加 USAGE 流水，不够返回 ErrInsufficientCredit 且不写任何东西
func (s *CreditService) UseCredits(ctx context.Context, req *UseCreditsRequest) (*UseCreditsResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	user, err := s.getUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	// 不限量账户永远成功，不写流水、不计消耗
	if user.Role.Unlimited() {
		return &UseCreditsResult{
			Charged: 0,
			Balance: model.BalanceUnlimited,
		}, nil
	}

	creditLock := lock.NewCreditLock(s.redisClient, req.UserID, uuid.NewString())
	err = creditLock.Lock(ctx, 100*time.Millisecond, 30)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer creditLock.Unlock(ctx)

	var result *UseCreditsResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		trans, balance, txErr := s.DebitTx(ctx, tx, req.UserID, req.Amount, req.Description)
		if txErr != nil {
			return txErr
		}
		if err := s.appendCreditEvent(ctx, tx, "credit.used", trans); err != nil {
			return err
		}
		result = &UseCreditsResult{
			TransactionNo: trans.TransactionNo,
			Charged:       req.Amount,
			Balance:       balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("扣费成功: transactionNo=%s, userID=%d, amount=%d, balance=%d",
		result.TransactionNo, req.UserID, req.Amount, result.Balance)

	return result, nil
}

// DebitTx 事务内扣费原语：累加余额、校验、追加负数流水
// 返回新流水和扣除后的余额
//
// 【重要】调用方必须已持有该用户的积分锁（lock.NewCreditLock），
// 否则并发扣费会基于同一快照双双通过校验
func (s *CreditService) DebitTx(ctx context.Context, tx *gorm.DB, userID int64, amount int64, description string) (*model.CreditTransaction, int64, error) {
	if amount <= 0 {
		return nil, 0, ErrInvalidAmount
	}

	balance, err := s.transactionRepo.SumAmountByUserID(ctx, tx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("查询余额失败: %w", err)
	}

	if balance < amount {
		return nil, 0, ErrInsufficientCredit
	}

	trans := &model.CreditTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        userID,
		Amount:        -amount,
		Kind:          model.TransactionKindUsage,
		Description:   description,
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, 0, fmt.Errorf("记录流水失败: %w", err)
	}

	return trans, balance - amount, nil
}

// ----------------------------------------------------------------------------
// 幂等支付入账
// ----------------------------------------------------------------------------

type ApplyPaymentRequest struct {
	UserID         int64
	Credits        int64
	Description    string
	ReconcileToken string
}

type ApplyPaymentResult struct {
	Transaction    *model.CreditTransaction `json:"transaction"`
	AlreadyApplied bool                     `json:"already_applied"`
}

// ApplyPaymentOnce 按外部支付凭证幂等入账
//
// webhook 推送和用户主动核验都会走到这里，同一凭证可能并发到达：
//  1. 锁外先查一次，已入账直接返回（省一次加锁）
//  2. 按凭证加锁后事务内再查再插，唯一索引兜底
//  3. 即便插入撞了唯一索引，也翻译成 AlreadyApplied 返回，不当错误抛出
func (s *CreditService) ApplyPaymentOnce(ctx context.Context, req *ApplyPaymentRequest) (*ApplyPaymentResult, error) {
	if req.Credits <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.ReconcileToken == "" {
		return nil, ErrEmptyToken
	}

	if _, err := s.getUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	// 幂等预检
	existing, err := s.transactionRepo.GetByReconcileToken(ctx, nil, req.ReconcileToken)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}
	if existing != nil {
		return &ApplyPaymentResult{Transaction: existing, AlreadyApplied: true}, nil
	}

	reconcileLock := lock.NewReconcileLock(s.redisClient, req.ReconcileToken, uuid.NewString())
	err = reconcileLock.Lock(ctx, 100*time.Millisecond, 30)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer reconcileLock.Unlock(ctx)

	var result *ApplyPaymentResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 获取锁后再次检查幂等
		existing, txErr := s.transactionRepo.GetByReconcileToken(ctx, tx, req.ReconcileToken)
		if txErr != nil {
			return fmt.Errorf("查询流水失败: %w", txErr)
		}
		if existing != nil {
			result = &ApplyPaymentResult{Transaction: existing, AlreadyApplied: true}
			return nil
		}

		token := req.ReconcileToken
		trans, txErr := s.CreditTx(ctx, tx, req.UserID, req.Credits, model.TransactionKindPurchase, req.Description, &token)
		if txErr != nil {
			return txErr
		}
		if err := s.appendCreditEvent(ctx, tx, "credit.purchase.applied", trans); err != nil {
			return err
		}
		result = &ApplyPaymentResult{Transaction: trans, AlreadyApplied: false}
		return nil
	})
	if err != nil {
		// 唯一索引兜底：插入冲突说明另一路刚刚入账成功
		if existing, qErr := s.transactionRepo.GetByReconcileToken(ctx, nil, req.ReconcileToken); qErr == nil && existing != nil {
			log.Printf("重复支付请求，已忽略: token=%s, transactionNo=%s", req.ReconcileToken, existing.TransactionNo)
			return &ApplyPaymentResult{Transaction: existing, AlreadyApplied: true}, nil
		}
		return nil, err
	}

	if result.AlreadyApplied {
		log.Printf("重复支付请求，已忽略: token=%s, transactionNo=%s", req.ReconcileToken, result.Transaction.TransactionNo)
	} else {
		log.Printf("支付入账成功: transactionNo=%s, userID=%d, credits=%d, token=%s",
			result.Transaction.TransactionNo, req.UserID, req.Credits, req.ReconcileToken)
	}

	return result, nil
}

// ----------------------------------------------------------------------------
// 流水查询
// ----------------------------------------------------------------------------

// GetTransactions 分页查询流水（倒序，新的在前）
func (s *CreditService) GetTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.CreditTransaction, int64, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, 0, err
	}
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}

// ----------------------------------------------------------------------------
// 事件发布（经由发件箱）
// ----------------------------------------------------------------------------

func (s *CreditService) appendCreditEvent(ctx context.Context, tx *gorm.DB, event string, trans *model.CreditTransaction) error {
	msgPayload := map[string]interface{}{
		"event":          event,
		"transaction_no": trans.TransactionNo,
		"user_id":        trans.UserID,
		"amount":         trans.Amount,
		"kind":           trans.Kind,
		"description":    trans.Description,
		"occurred_at":    time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(msgPayload)

	outboxMsg := &model.OutboxMessage{
		MessageKey: trans.TransactionNo,
		Topic:      s.cfg.Kafka.Topic.CreditEvents,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
