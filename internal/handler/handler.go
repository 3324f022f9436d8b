package handler

import (
	"errors"
	"strconv"

	"leadledger/internal/config"
	"leadledger/internal/model"
	"leadledger/internal/repository"
	"leadledger/internal/scraper"
	"leadledger/internal/service"
	"leadledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	userService       *service.UserService
	creditService     *service.CreditService
	paymentService    *service.PaymentService
	searchService     *service.SearchService
	settingsService   *service.SettingsService
	accountingService *service.AccountingService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	creditService := service.NewCreditService(db, rdb, cfg)
	registry := scraper.NewRegistry(scraper.NewMockScraper())

	return &Handler{
		userService:       service.NewUserService(db, cfg, creditService),
		creditService:     creditService,
		paymentService:    service.NewPaymentService(db, cfg, creditService),
		searchService:     service.NewSearchService(db, rdb, cfg, creditService, registry),
		settingsService:   service.NewSettingsService(db),
		accountingService: service.NewAccountingService(db),
	}
}

// respondServiceError 将服务层错误翻译为业务错误码
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientCredit):
		response.BusinessError(c, response.CodeCreditNotEnough, err.Error())
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrBelowMinPurchase):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrAccountNotFound):
		response.BusinessError(c, response.CodeUserNotFound, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		response.BusinessError(c, response.CodeUserExists, err.Error())
	case errors.Is(err, service.ErrInvalidCredential):
		response.Error(c, response.CodeUnauthorized, err.Error())
	case errors.Is(err, service.ErrSessionNotOwned):
		response.Error(c, response.CodeForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidKind), errors.Is(err, service.ErrEmptyToken):
		response.ParamError(c, err.Error())
	case errors.Is(err, scraper.ErrUnknownSource):
		response.ParamError(c, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, err.Error())
	case errors.Is(err, repository.ErrUserNotFound):
		response.BusinessError(c, response.CodeUserNotFound, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 认证相关接口
// ============================================================

// SignUpRequest 注册请求
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

// SignUp 注册新用户
// POST /api/v1/auth/signup
func (h *Handler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.userService.SignUp(c.Request.Context(), &service.SignUpRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": user.ID,
		"email":   user.Email,
		"name":    user.Name,
		"role":    user.Role,
	})
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login 登录并签发 Token
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	token, user, err := h.userService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"token": token,
		"user": gin.H{
			"user_id": user.ID,
			"email":   user.Email,
			"name":    user.Name,
			"role":    user.Role,
		},
	})
}

// GetProfile 查询当前用户信息（含余额与累计消耗）
// GET /api/v1/auth/profile
func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.userService.GetProfile(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, profile)
}

// ============================================================
// 积分相关接口
// ============================================================

// GetBalance 查询当前用户积分余额
// GET /api/v1/credits/balance
//
// 余额由流水求和实时推导，不限量账户返回 balance=-1
func (h *Handler) GetBalance(c *gin.Context) {
	userID := currentUserID(c)

	balance, err := h.creditService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	consumed, err := h.creditService.GetConsumed(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":   userID,
		"balance":   balance,
		"consumed":  consumed,
		"unlimited": balance == model.BalanceUnlimited,
	})
}

// UseCreditsRequest 扣减积分请求
type UseCreditsRequest struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Description string `json:"description"`
}

// UseCredits 扣减当前用户积分
// POST /api/v1/credits/use
//
// 【关键点】扣减必须保证：
// 1. 余额充足性：余额不足时整笔拒绝，不允许部分扣减
// 2. 并发安全：同一用户的并发扣减通过分布式锁串行化
// 3. 不限量账户直接放行，不产生流水
func (h *Handler) UseCredits(c *gin.Context) {
	var req UseCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.creditService.UseCredits(c.Request.Context(), &service.UseCreditsRequest{
		UserID:      currentUserID(c),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// ListTransactions 查询当前用户积分流水
// GET /api/v1/credits/transactions?page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	transactions, total, err := h.creditService.GetTransactions(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// AddCreditsRequest 管理端入账请求
type AddCreditsRequest struct {
	UserID      int64  `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Kind        string `json:"kind" binding:"required"` // PURCHASE / REFUND / FREE_GIFT
	Description string `json:"description"`
}

// AddCredits 管理端手工入账（赠送、退款补偿等）
// POST /api/v1/admin/credits/add
func (h *Handler) AddCredits(c *gin.Context) {
	var req AddCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.creditService.AddCredits(c.Request.Context(), &service.AddCreditsRequest{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Kind:        req.Kind,
		Description: req.Description,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"transaction_no": trans.TransactionNo,
		"user_id":        trans.UserID,
		"amount":         trans.Amount,
		"kind":           trans.Kind,
	})
}
