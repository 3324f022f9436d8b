package handler

import (
	"errors"
	"net/http"
	"strconv"

	"leadledger/internal/service"
	"leadledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 支付相关接口
// ============================================================

// CreateCheckoutRequest 创建购买会话请求
type CreateCheckoutRequest struct {
	Credits int64 `json:"credits" binding:"required,gt=0"`
}

// CreateCheckout 创建 Stripe Checkout 购买会话
// POST /api/v1/payments/checkout
func (h *Handler) CreateCheckout(c *gin.Context) {
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.paymentService.CreateCheckoutSession(c.Request.Context(), currentUserID(c), req.Credits)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// StripePublicKey 返回 Stripe 可发布密钥，前端用它初始化 Stripe.js
// GET /api/v1/payments/public-key
func (h *Handler) StripePublicKey(c *gin.Context) {
	response.Success(c, gin.H{
		"publishable_key": h.paymentService.PublishableKey(),
	})
}

// StripeWebhook 接收 Stripe webhook 投递
// POST /api/v1/payments/webhook
//
// 【重要】这个接口面向 Stripe 而不是前端，HTTP 状态码必须符合投递语义：
// 1. 验签失败返回 400，Stripe 视为投递失败
// 2. 内部错误返回 500，触发 Stripe 重投
// 3. 处理成功或事件被忽略都返回 200，停止重投
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Response{
			Code:    response.CodeParamError,
			Message: "读取请求体失败: " + err.Error(),
		})
		return
	}

	result, err := h.paymentService.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, response.Response{
				Code:    response.CodeInvalidSignature,
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, response.Response{
			Code:    response.CodeServerError,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// VerifyCheckoutRequest 购买结果确认请求
type VerifyCheckoutRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// VerifyCheckout 回源 Stripe 确认购买结果并入账
// POST /api/v1/payments/verify
//
// webhook 丢失时前端成功页调用的兜底路径，与 webhook 入账互为幂等
func (h *Handler) VerifyCheckout(c *gin.Context) {
	var req VerifyCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.paymentService.VerifyCheckoutSession(c.Request.Context(), currentUserID(c), req.SessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// ListCheckoutOrders 查询当前用户充值单列表
// GET /api/v1/payments/orders?page=1&page_size=10
func (h *Handler) ListCheckoutOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	orders, total, err := h.paymentService.ListCheckoutOrders(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
