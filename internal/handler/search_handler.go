package handler

import (
	"strconv"

	"leadledger/internal/service"
	"leadledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 客源搜索相关接口
// ============================================================

// SearchRequest 客源搜索请求
type SearchRequest struct {
	Category   string `json:"category" binding:"required"` // 行业，如 plombier
	City       string `json:"city" binding:"required"`     // 城市，如 Lyon
	Source     string `json:"source"`                      // 数据源，留空为全部
	MaxResults int    `json:"max_results"`                 // 期望结果数，默认 20
}

// Search 执行客源搜索并按结果计费
// POST /api/v1/prospects/search
//
// 【关键点】计费规则：实际费用 = 搜索基础价 + 结果数 × 单条结果价
// 1. 搜索前按基础价预检余额，不足直接拒绝
// 2. 结算时扣费、落结果、记搜索历史在同一事务内，失败全部回滚
// 3. 不限量账户不扣费，返回 credits_charged=0
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.searchService.Search(c.Request.Context(), &service.SearchRequest{
		UserID:     currentUserID(c),
		Category:   req.Category,
		City:       req.City,
		Source:     req.Source,
		MaxResults: req.MaxResults,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// ListSources 查询可用数据源列表
// GET /api/v1/prospects/sources
func (h *Handler) ListSources(c *gin.Context) {
	response.Success(c, gin.H{
		"sources": h.searchService.Sources(),
	})
}

// ListProspects 查询当前用户的客源列表
// GET /api/v1/prospects/list?page=1&page_size=10
func (h *Handler) ListProspects(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	prospects, total, err := h.searchService.ListProspects(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      prospects,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListSearches 查询当前用户的搜索历史
// GET /api/v1/searches/list?page=1&page_size=10
func (h *Handler) ListSearches(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	records, total, err := h.searchService.ListSearchRecords(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetSearchProspects 查询某次搜索产出的客源
// GET /api/v1/searches/detail?search_no=xxx
func (h *Handler) GetSearchProspects(c *gin.Context) {
	searchNo := c.Query("search_no")
	if searchNo == "" {
		response.ParamError(c, "search_no 参数不能为空")
		return
	}

	prospects, err := h.searchService.ListProspectsBySearchNo(c.Request.Context(), currentUserID(c), searchNo)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"search_no": searchNo,
		"list":      prospects,
	})
}
