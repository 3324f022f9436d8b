package handler

import (
	"strconv"

	"leadledger/internal/model"
	"leadledger/internal/service"
	"leadledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 定价配置相关接口
// ============================================================

// GetSettings 查询当前定价配置
// GET /api/v1/credits/settings
//
// 普通用户也可读取，前端据此展示价格和单次搜索费用
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.GetSettings(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, settings)
}

// UpdateSettingsRequest 更新定价配置请求
type UpdateSettingsRequest struct {
	PricePerCreditCents int64 `json:"price_per_credit_cents" binding:"required,gt=0"`
	CreditsPerSearch    int64 `json:"credits_per_search"`
	CreditsPerResult    int64 `json:"credits_per_result"`
	CreditsPerEmail     int64 `json:"credits_per_email"`
	FreeCreditsOnSignup int64 `json:"free_credits_on_signup"`
	MinPurchaseCredits  int64 `json:"min_purchase_credits" binding:"required,gt=0"`
}

// UpdateSettings 更新定价配置
// PUT /api/v1/admin/settings
//
// 【关键点】定价只影响之后的计费，已落账的流水金额永不回改
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	settings, err := h.settingsService.UpdateSettings(c.Request.Context(), &service.UpdateSettingsRequest{
		PricePerCreditCents: req.PricePerCreditCents,
		CreditsPerSearch:    req.CreditsPerSearch,
		CreditsPerResult:    req.CreditsPerResult,
		CreditsPerEmail:     req.CreditsPerEmail,
		FreeCreditsOnSignup: req.FreeCreditsOnSignup,
		MinPurchaseCredits:  req.MinPurchaseCredits,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, settings)
}

// ============================================================
// 用户管理相关接口
// ============================================================

// ListUsers 查询用户列表
// GET /api/v1/admin/users?page=1&page_size=10
func (h *Handler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	users, total, err := h.userService.ListUsers(c.Request.Context(), page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      users,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// UpdateRoleRequest 调整用户角色请求
type UpdateRoleRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"` // USER / ADMIN
}

// UpdateRole 调整用户角色
// PUT /api/v1/admin/users/role
func (h *Handler) UpdateRole(c *gin.Context) {
	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	role := model.Role(req.Role)
	if !role.Valid() {
		response.ParamError(c, "role 参数错误，只支持 USER / ADMIN")
		return
	}

	if err := h.userService.UpdateRole(c.Request.Context(), req.UserID, role); err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": req.UserID,
		"role":    role,
	})
}

// ============================================================
// 对账相关接口
// ============================================================

// PlatformReport 平台级对账报表
// GET /api/v1/admin/accounting/platform
//
// 全部数字由流水实时聚合，购入减消耗恒等于未消耗余额
func (h *Handler) PlatformReport(c *gin.Context) {
	report, err := h.accountingService.PlatformReport(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, report)
}

// UserReport 单用户对账报表
// GET /api/v1/admin/accounting/user?user_id=xxx
func (h *Handler) UserReport(c *gin.Context) {
	userIDStr := c.Query("user_id")
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	report, err := h.accountingService.UserReport(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, report)
}

// ListFailedOutbox 查询投递失败的事件消息
// GET /api/v1/admin/outbox/failed?limit=50
//
// 重试耗尽的消息停在 FAILED 状态等待人工介入，这个接口就是排查入口
func (h *Handler) ListFailedOutbox(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := h.accountingService.ListFailedOutbox(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  messages,
		"count": len(messages),
	})
}
