package public

import (
	"github.com/promo-next/internal/discount"
	"github.com/promo-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// DiscountSolutionsRequest 求解优惠方案请求
type DiscountSolutionsRequest struct {
	Lines []discount.Line `json:"lines" binding:"required"`
}

// FindDiscountSolutions 枚举当前用户可用的优惠方案，按优惠金额降序
func (h *Handler) FindDiscountSolutions(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req DiscountSolutionsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Lines) == 0 {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	solutions, err := h.DiscountService.FindDiscountSolutions(c.Request.Context(), userID, req.Lines)
	if err != nil {
		respondSolutionError(c, err)
		return
	}

	response.Success(c, solutions)
}

// EvaluateSolutionRequest 评估指定券组合请求
type EvaluateSolutionRequest struct {
	CouponIDs []uint          `json:"coupon_ids" binding:"required"`
	Lines     []discount.Line `json:"lines" binding:"required"`
}

// EvaluateSolution 评估指定券组合在订单行上的优惠
func (h *Handler) EvaluateSolution(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req EvaluateSolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.CouponIDs) == 0 || len(req.Lines) == 0 {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	solution, err := h.DiscountService.EvaluateSolution(c.Request.Context(), userID, req.CouponIDs, req.Lines)
	if err != nil {
		respondSolutionError(c, err)
		return
	}

	response.Success(c, solution)
}
