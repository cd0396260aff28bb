package public

import (
	"strconv"
	"strings"

	"github.com/promo-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ReceiveCoupon 领取公开发放的优惠券
func (h *Handler) ReceiveCoupon(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	couponID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || couponID == 0 {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	if err := h.UserCouponService.ReceiveCoupon(c.Request.Context(), uint(couponID), userID); err != nil {
		respondReceiveCouponError(c, err)
		return
	}

	requestLog(c).Infow("coupon_received", "coupon_id", couponID, "user_id", userID)
	response.Success(c, gin.H{
		"coupon_id": couponID,
		"accepted":  true,
	})
}

// ExchangeCouponRequest 兑换码兑换请求
type ExchangeCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// ExchangeCoupon 使用兑换码兑换优惠券
func (h *Handler) ExchangeCoupon(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req ExchangeCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	code := strings.TrimSpace(req.Code)
	if err := h.UserCouponService.ExchangeCoupon(c.Request.Context(), code, userID); err != nil {
		respondExchangeCouponError(c, err)
		return
	}

	requestLog(c).Infow("coupon_exchanged", "user_id", userID)
	response.Success(c, gin.H{
		"accepted": true,
	})
}

// GetMyCoupons 分页查询当前用户的优惠券
func (h *Handler) GetMyCoupons(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	status := strings.TrimSpace(c.Query("status"))

	coupons, total, err := h.UserCouponService.QueryMyCoupons(userID, status, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "查询优惠券失败", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, coupons, pagination)
}
