package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/promo-next/internal/http/response"
	"github.com/promo-next/internal/repository"
	"github.com/promo-next/internal/service"

	"github.com/gin-gonic/gin"
)

func respondCouponError(c *gin.Context, err error, fallbackMsg string) {
	switch {
	case errors.Is(err, service.ErrCouponNotFound):
		respondError(c, response.CodeNotFound, service.ErrCouponNotFound.Error(), nil)
	case errors.Is(err, service.ErrCouponNotDraft):
		respondError(c, response.CodeBadRequest, service.ErrCouponNotDraft.Error(), nil)
	case errors.Is(err, service.ErrCouponStatusInvalid):
		respondError(c, response.CodeBadRequest, service.ErrCouponStatusInvalid.Error(), nil)
	case errors.Is(err, service.ErrCouponIssueWindow):
		respondError(c, response.CodeBadRequest, service.ErrCouponIssueWindow.Error(), nil)
	default:
		respondError(c, response.CodeInternal, fallbackMsg, err)
	}
}

func parseCouponID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return 0, false
	}
	return uint(id), true
}

// CreateCoupon 创建优惠券
func (h *Handler) CreateCoupon(c *gin.Context) {
	var input service.CouponInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	coupon, err := h.CouponAdminService.Create(input)
	if err != nil {
		respondCouponError(c, err, "创建优惠券失败")
		return
	}

	response.Success(c, coupon)
}

// UpdateCoupon 更新优惠券，仅待发放状态可编辑
func (h *Handler) UpdateCoupon(c *gin.Context) {
	couponID, ok := parseCouponID(c)
	if !ok {
		return
	}
	var input service.CouponInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	coupon, err := h.CouponAdminService.Update(couponID, input)
	if err != nil {
		respondCouponError(c, err, "更新优惠券失败")
		return
	}

	response.Success(c, coupon)
}

// DeleteCoupon 删除优惠券，仅待发放状态可删除
func (h *Handler) DeleteCoupon(c *gin.Context) {
	couponID, ok := parseCouponID(c)
	if !ok {
		return
	}
	if err := h.CouponAdminService.Delete(couponID); err != nil {
		respondCouponError(c, err, "删除优惠券失败")
		return
	}
	response.Success(c, gin.H{
		"deleted": true,
	})
}

// GetAdminCoupon 获取优惠券详情
func (h *Handler) GetAdminCoupon(c *gin.Context) {
	couponID, ok := parseCouponID(c)
	if !ok {
		return
	}

	coupon, err := h.CouponAdminService.Get(couponID)
	if err != nil {
		respondCouponError(c, err, "查询优惠券失败")
		return
	}

	response.Success(c, coupon)
}

// GetAdminCoupons 获取优惠券列表
func (h *Handler) GetAdminCoupons(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	coupons, total, err := h.CouponAdminService.List(repository.CouponListFilter{
		Page:         page,
		PageSize:     pageSize,
		Status:       strings.TrimSpace(c.Query("status")),
		DiscountType: strings.TrimSpace(c.Query("discount_type")),
		ObtainWay:    strings.TrimSpace(c.Query("obtain_way")),
		Name:         strings.TrimSpace(c.Query("name")),
	})
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

// BeginCouponIssue 开始发放优惠券
func (h *Handler) BeginCouponIssue(c *gin.Context) {
	couponID, ok := parseCouponID(c)
	if !ok {
		return
	}

	coupon, err := h.CouponAdminService.BeginIssue(c.Request.Context(), couponID)
	if err != nil {
		respondCouponError(c, err, "开始发放失败")
		return
	}

	requestLog(c).Infow("coupon_issue_begin", "coupon_id", coupon.ID, "status", coupon.Status)
	response.Success(c, coupon)
}

// PauseCouponIssue 暂停发放优惠券
func (h *Handler) PauseCouponIssue(c *gin.Context) {
	couponID, ok := parseCouponID(c)
	if !ok {
		return
	}

	coupon, err := h.CouponAdminService.PauseIssue(c.Request.Context(), couponID)
	if err != nil {
		respondCouponError(c, err, "暂停发放失败")
		return
	}

	requestLog(c).Infow("coupon_issue_pause", "coupon_id", coupon.ID)
	response.Success(c, coupon)
}

// GetCouponExchangeCodes 获取优惠券兑换码列表
func (h *Handler) GetCouponExchangeCodes(c *gin.Context) {
	couponID, ok := parseCouponID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	var batchID uint
	if raw := strings.TrimSpace(c.Query("batch_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			respondError(c, response.CodeBadRequest, "请求参数错误", err)
			return
		}
		batchID = uint(parsed)
	}

	codes, total, err := h.CouponAdminService.ListExchangeCodes(repository.ExchangeCodeListFilter{
		Page:     page,
		PageSize: pageSize,
		CouponID: couponID,
		BatchID:  batchID,
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "查询兑换码失败", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, codes, pagination)
}
