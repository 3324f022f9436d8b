package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"leadledger/internal/config"
	"leadledger/internal/model"
	"leadledger/internal/repository"
	"leadledger/pkg/idgen"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
)

// ============================================================================
// 支付对账服务（Stripe）
// ============================================================================
//
// 职责：把外部支付确认翻译成恰好一次的积分入账
//
// 【关键点】两条路径竞争同一笔支付：
//   - webhook 推送（Stripe 主动投递，至少一次语义，可能重复）
//   - 用户主动核验（支付完成页回跳后前端轮询）
//
// 两条路径都只允许走 CreditService.ApplyPaymentOnce，
// 凭证就是 Checkout Session ID，谁都不能绕过它直接入账
//
// ============================================================================

type PaymentService struct {
	db           *gorm.DB
	cfg          *config.Config
	creditSvc    *CreditService
	settingsRepo *repository.SettingsRepository
	checkoutRepo *repository.CheckoutRepository
}

func NewPaymentService(db *gorm.DB, cfg *config.Config, creditSvc *CreditService) *PaymentService {
	stripe.Key = cfg.Stripe.SecretKey
	// 测试环境把 api_base 指向本地模拟的 Stripe
	if cfg.Stripe.APIBase != "" {
		stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL: stripe.String(cfg.Stripe.APIBase),
		}))
	}

	return &PaymentService{
		db:           db,
		cfg:          cfg,
		creditSvc:    creditSvc,
		settingsRepo: repository.NewSettingsRepository(db),
		checkoutRepo: repository.NewCheckoutRepository(db),
	}
}

// PublishableKey 前端初始化 Stripe.js 所需的可发布密钥
func (s *PaymentService) PublishableKey() string {
	return s.cfg.Stripe.PublishableKey
}

// ----------------------------------------------------------------------------
// 发起充值
// ----------------------------------------------------------------------------

type CheckoutSessionResult struct {
	OrderNo     string `json:"order_no"`
	SessionID   string `json:"session_id"`
	SessionURL  string `json:"session_url"`
	Credits     int64  `json:"credits"`
	AmountCents int64  `json:"amount_cents"`
}

// CreateCheckoutSession 创建 Stripe Checkout 会话并落一条本地充值单
// 金额 = 购买积分数 × 单价（定价配置里维护）
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, userID int64, credits int64) (*CheckoutSessionResult, error) {
	if credits <= 0 {
		return nil, ErrInvalidAmount
	}

	settings, err := s.settingsRepo.GetOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取定价配置失败: %w", err)
	}

	if credits < settings.MinPurchaseCredits {
		return nil, ErrBelowMinPurchase
	}

	amountCents := credits * settings.PricePerCreditCents

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.cfg.Stripe.SuccessURL),
		CancelURL:  stripe.String(s.cfg.Stripe.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("LeadLedger Credits"),
					},
					UnitAmount: stripe.Int64(settings.PricePerCreditCents),
				},
				Quantity: stripe.Int64(credits),
			},
		},
		// 会话完成后 webhook 靠这两个字段定位账户和入账数量
		Metadata: map[string]string{
			"user_id": strconv.FormatInt(userID, 10),
			"credits": strconv.FormatInt(credits, 10),
		},
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("创建支付会话失败: %w", err)
	}

	orderNo := idgen.GenerateCheckoutNo()
	expiredAt := time.Now().Add(time.Duration(s.cfg.Business.CheckoutTimeoutMinutes) * time.Minute)

	order := &model.CheckoutOrder{
		OrderNo:     orderNo,
		SessionID:   sess.ID,
		UserID:      userID,
		Credits:     credits,
		AmountCents: amountCents,
		Status:      model.CheckoutStatusPending,
		ExpiredAt:   expiredAt,
	}
	if err := s.checkoutRepo.Create(ctx, nil, order); err != nil {
		return nil, fmt.Errorf("创建充值单失败: %w", err)
	}

	log.Printf("创建充值单成功: orderNo=%s, userID=%d, credits=%d, sessionID=%s",
		orderNo, userID, credits, sess.ID)

	return &CheckoutSessionResult{
		OrderNo:     orderNo,
		SessionID:   sess.ID,
		SessionURL:  sess.URL,
		Credits:     credits,
		AmountCents: amountCents,
	}, nil
}

// ----------------------------------------------------------------------------
// webhook 推送入账
// ----------------------------------------------------------------------------

const (
	WebhookStatusSuccess = "success"
	WebhookStatusIgnored = "ignored"
)

type WebhookResult struct {
	Status         string `json:"status"`
	Credits        int64  `json:"credits,omitempty"`
	AlreadyApplied bool   `json:"already_applied,omitempty"`
}

// HandleWebhook 处理 Stripe webhook 投递
//
// 【重要】先验签后解析，验签失败立即拒绝，绝不入账
// 未支付、与积分无关的事件返回 ignored（不是错误，Stripe 不应重投）
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*WebhookResult, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.cfg.Stripe.WebhookSecret)
	if err != nil {
		log.Printf("webhook 签名校验失败: %v", err)
		return nil, ErrInvalidSignature
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("解析支付会话失败: %w", err)
		}

		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			log.Printf("支付会话未完成，忽略: sessionID=%s, status=%s", session.ID, session.PaymentStatus)
			return &WebhookResult{Status: WebhookStatusIgnored}, nil
		}

		userID, credits, err := parseCheckoutMetadata(session.Metadata)
		if err != nil {
			return nil, err
		}

		applyResult, err := s.applyPayment(ctx, session.ID, userID, credits)
		if err != nil {
			return nil, err
		}

		return &WebhookResult{
			Status:         WebhookStatusSuccess,
			Credits:        credits,
			AlreadyApplied: applyResult.AlreadyApplied,
		}, nil

	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("解析支付意向失败: %w", err)
		}

		// 经由 Checkout 的支付其 PaymentIntent 不携带我们的元数据，
		// 入账由 checkout.session.completed 负责，这里跳过
		userID, credits, err := parseCheckoutMetadata(intent.Metadata)
		if err != nil {
			log.Printf("支付意向缺少入账元数据，忽略: intentID=%s", intent.ID)
			return &WebhookResult{Status: WebhookStatusIgnored}, nil
		}

		applyResult, err := s.applyPayment(ctx, intent.ID, userID, credits)
		if err != nil {
			return nil, err
		}

		return &WebhookResult{
			Status:         WebhookStatusSuccess,
			Credits:        credits,
			AlreadyApplied: applyResult.AlreadyApplied,
		}, nil

	default:
		return &WebhookResult{Status: WebhookStatusIgnored}, nil
	}
}

// ----------------------------------------------------------------------------
// 用户主动核验入账
// ----------------------------------------------------------------------------

type VerifyResult struct {
	Paid           bool   `json:"paid"`
	Credits        int64  `json:"credits,omitempty"`
	TransactionNo  string `json:"transaction_no,omitempty"`
	AlreadyApplied bool   `json:"already_applied,omitempty"`
}

// VerifyCheckoutSession 回源 Stripe 查询会话状态并入账
// webhook 丢失或延迟时的兜底路径，和 webhook 入账完全幂等
func (s *PaymentService) VerifyCheckoutSession(ctx context.Context, userID int64, sessionID string) (*VerifyResult, error) {
	if sessionID == "" {
		return nil, ErrEmptyToken
	}

	sess, err := checkoutsession.Get(sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("查询支付会话失败: %w", err)
	}

	metaUserID, credits, err := parseCheckoutMetadata(sess.Metadata)
	if err != nil {
		return nil, err
	}

	if metaUserID != userID {
		return nil, ErrSessionNotOwned
	}

	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		log.Printf("支付会话未完成: sessionID=%s, status=%s", sess.ID, sess.PaymentStatus)
		return &VerifyResult{Paid: false}, nil
	}

	applyResult, err := s.applyPayment(ctx, sess.ID, userID, credits)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		Paid:           true,
		Credits:        credits,
		TransactionNo:  applyResult.Transaction.TransactionNo,
		AlreadyApplied: applyResult.AlreadyApplied,
	}, nil
}

// applyPayment 两条对账路径共用的唯一入账出口
func (s *PaymentService) applyPayment(ctx context.Context, token string, userID, credits int64) (*ApplyPaymentResult, error) {
	result, err := s.creditSvc.ApplyPaymentOnce(ctx, &ApplyPaymentRequest{
		UserID:         userID,
		Credits:        credits,
		Description:    fmt.Sprintf("Credit purchase via Stripe (%d credits)", credits),
		ReconcileToken: token,
	})
	if err != nil {
		return nil, err
	}

	// 推进本地充值单；查不到也无妨（会话可能来自其他渠道）
	order, oErr := s.checkoutRepo.GetBySessionID(ctx, token)
	if oErr == nil && order != nil && order.Status == model.CheckoutStatusPending {
		if uErr := s.checkoutRepo.UpdateStatus(ctx, nil, order.OrderNo, model.CheckoutStatusPending, model.CheckoutStatusCompleted); uErr != nil {
			log.Printf("推进充值单失败: orderNo=%s, err=%v", order.OrderNo, uErr)
		}
	}

	return result, nil
}

func parseCheckoutMetadata(metadata map[string]string) (int64, int64, error) {
	userIDStr, ok := metadata["user_id"]
	if !ok {
		return 0, 0, fmt.Errorf("会话元数据缺少 user_id")
	}
	creditsStr, ok := metadata["credits"]
	if !ok {
		return 0, 0, fmt.Errorf("会话元数据缺少 credits")
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("会话元数据 user_id 不合法: %w", err)
	}
	credits, err := strconv.ParseInt(creditsStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("会话元数据 credits 不合法: %w", err)
	}

	return userID, credits, nil
}

// ----------------------------------------------------------------------------
// 充值单查询与关单
// ----------------------------------------------------------------------------

func (s *PaymentService) ListCheckoutOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.CheckoutOrder, int64, error) {
	return s.checkoutRepo.ListByUserID(ctx, userID, page, pageSize)
}

// CloseExpiredOrders 把超时未支付的充值单置为 EXPIRED
// 由后台任务周期调用；状态机保证不会误关已完成的单
func (s *PaymentService) CloseExpiredOrders(ctx context.Context, limit int) (int, error) {
	orders, err := s.checkoutRepo.GetExpiredOrders(ctx, limit)
	if err != nil {
		return 0, err
	}

	closedCount := 0
	for _, order := range orders {
		err := s.checkoutRepo.UpdateStatus(ctx, nil, order.OrderNo, model.CheckoutStatusPending, model.CheckoutStatusExpired)
		if err == nil {
			closedCount++
		}
	}

	return closedCount, nil
}
