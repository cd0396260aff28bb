package service

import (
	"context"
	"strings"
	"time"

	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/logger"
	"github.com/promo-next/internal/models"
	"github.com/promo-next/internal/queue"
	"github.com/promo-next/internal/repository"

	"github.com/google/uuid"
)

// CouponAdminService 优惠券管理服务
type CouponAdminService struct {
	couponRepo  repository.CouponRepository
	codeRepo    repository.ExchangeCodeRepository
	batchRepo   repository.ExchangeCodeBatchRepository
	claimStore  ClaimCache
	queueClient TaskEnqueuer
}

// NewCouponAdminService 创建优惠券管理服务实例
func NewCouponAdminService(
	couponRepo repository.CouponRepository,
	codeRepo repository.ExchangeCodeRepository,
	batchRepo repository.ExchangeCodeBatchRepository,
	claimStore ClaimCache,
	queueClient TaskEnqueuer,
) *CouponAdminService {
	return &CouponAdminService{
		couponRepo:  couponRepo,
		codeRepo:    codeRepo,
		batchRepo:   batchRepo,
		claimStore:  claimStore,
		queueClient: queueClient,
	}
}

// CouponInput 创建/更新优惠券的入参
type CouponInput struct {
	Name            string     `json:"name" binding:"required"`
	DiscountType    string     `json:"discount_type" binding:"required"`
	Value           int64      `json:"value" binding:"required"`
	ThresholdAmount int64      `json:"threshold_amount"`
	MaxDiscount     int64      `json:"max_discount"`
	TotalNum        int        `json:"total_num" binding:"required"`
	UserLimit       int        `json:"user_limit"`
	ObtainWay       string     `json:"obtain_way"`
	IssueBeginAt    *time.Time `json:"issue_begin_at"`
	IssueEndAt      *time.Time `json:"issue_end_at"`
	TermBeginAt     *time.Time `json:"term_begin_at"`
	TermEndAt       *time.Time `json:"term_end_at"`
	TermDays        int        `json:"term_days"`
	CategoryIDs     []uint     `json:"category_ids"`
}

func (in *CouponInput) validate() error {
	switch in.DiscountType {
	case constants.DiscountTypeFixed, constants.DiscountTypeThreshold:
		if in.Value <= 0 {
			return ErrCouponStatusInvalid
		}
	case constants.DiscountTypePercent:
		if in.Value <= 0 || in.Value >= 100 {
			return ErrCouponStatusInvalid
		}
	default:
		return ErrCouponStatusInvalid
	}
	if in.TotalNum <= 0 {
		return ErrCouponStatusInvalid
	}
	if in.IssueBeginAt != nil && in.IssueEndAt != nil && !in.IssueBeginAt.Before(*in.IssueEndAt) {
		return ErrCouponIssueWindow
	}
	hasFixedTerm := in.TermBeginAt != nil && in.TermEndAt != nil
	if !hasFixedTerm && in.TermDays <= 0 {
		return ErrCouponStatusInvalid
	}
	return nil
}

func (in *CouponInput) apply(coupon *models.Coupon) {
	coupon.Name = strings.TrimSpace(in.Name)
	coupon.DiscountType = in.DiscountType
	coupon.Value = in.Value
	coupon.ThresholdAmount = in.ThresholdAmount
	coupon.MaxDiscount = in.MaxDiscount
	coupon.TotalNum = in.TotalNum
	coupon.UserLimit = in.UserLimit
	if coupon.UserLimit <= 0 {
		coupon.UserLimit = 1
	}
	coupon.ObtainWay = in.ObtainWay
	if coupon.ObtainWay == "" {
		coupon.ObtainWay = constants.ObtainWayPublic
	}
	coupon.Specific = len(in.CategoryIDs) > 0
	coupon.IssueBeginAt = in.IssueBeginAt
	coupon.IssueEndAt = in.IssueEndAt
	coupon.TermBeginAt = in.TermBeginAt
	coupon.TermEndAt = in.TermEndAt
	coupon.TermDays = in.TermDays
}

func scopesFromIDs(couponID uint, categoryIDs []uint) []models.CouponScope {
	scopes := make([]models.CouponScope, 0, len(categoryIDs))
	for _, categoryID := range categoryIDs {
		scopes = append(scopes, models.CouponScope{CouponID: couponID, CategoryID: categoryID})
	}
	return scopes
}

// Create 创建优惠券，初始为待发放状态
func (s *CouponAdminService) Create(input CouponInput) (*models.Coupon, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	coupon := &models.Coupon{Status: constants.CouponStatusDraft}
	input.apply(coupon)
	if err := s.couponRepo.Create(coupon); err != nil {
		return nil, err
	}
	if coupon.Specific {
		if err := s.couponRepo.ReplaceScopes(coupon.ID, scopesFromIDs(coupon.ID, input.CategoryIDs)); err != nil {
			return nil, err
		}
	}
	return s.couponRepo.GetWithScopes(coupon.ID)
}

// Update 更新优惠券，仅待发放状态可改
func (s *CouponAdminService) Update(id uint, input CouponInput) (*models.Coupon, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	coupon, err := s.couponRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	if coupon.Status != constants.CouponStatusDraft {
		return nil, ErrCouponNotDraft
	}
	input.apply(coupon)
	if err := s.couponRepo.Update(coupon); err != nil {
		return nil, err
	}
	if err := s.couponRepo.ReplaceScopes(coupon.ID, scopesFromIDs(coupon.ID, input.CategoryIDs)); err != nil {
		return nil, err
	}
	return s.couponRepo.GetWithScopes(coupon.ID)
}

// Delete 删除优惠券，仅待发放状态可删
func (s *CouponAdminService) Delete(id uint) error {
	coupon, err := s.couponRepo.GetByID(id)
	if err != nil {
		return err
	}
	if coupon == nil {
		return ErrCouponNotFound
	}
	if coupon.Status != constants.CouponStatusDraft {
		return ErrCouponNotDraft
	}
	return s.couponRepo.Delete(id)
}

// Get 获取优惠券详情
func (s *CouponAdminService) Get(id uint) (*models.Coupon, error) {
	coupon, err := s.couponRepo.GetWithScopes(id)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	return coupon, nil
}

// List 分页查询优惠券
func (s *CouponAdminService) List(filter repository.CouponListFilter) ([]models.Coupon, int64, error) {
	return s.couponRepo.List(filter)
}

// BeginIssue 开始发放
// 发放窗口未到则进入未开始状态；进入发放中时写入领券缓存并按需生成兑换码
func (s *CouponAdminService) BeginIssue(ctx context.Context, id uint) (*models.Coupon, error) {
	coupon, err := s.couponRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	now := time.Now()
	if coupon.IssueEndAt != nil && !now.Before(*coupon.IssueEndAt) {
		return nil, ErrCouponIssueWindow
	}

	target := constants.CouponStatusIssuing
	if coupon.IssueBeginAt != nil && now.Before(*coupon.IssueBeginAt) {
		target = constants.CouponStatusUnIssue
	}
	from := []string{constants.CouponStatusDraft, constants.CouponStatusUnIssue, constants.CouponStatusPause}
	ok, err := s.couponRepo.UpdateStatus(id, from, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCouponStatusInvalid
	}
	coupon.Status = target

	if target == constants.CouponStatusIssuing {
		if err := s.claimStore.CacheCoupon(ctx, coupon); err != nil {
			logger.Warnw("claim_meta_cache_failed", "coupon_id", id, "error", err)
		}
	}

	if coupon.ObtainWay == constants.ObtainWayCode {
		batches, err := s.batchRepo.ListByCoupon(id)
		if err != nil {
			return nil, err
		}
		if len(batches) == 0 {
			err := s.queueClient.EnqueueCodeGenerate(queue.CodeGeneratePayload{
				BatchKey: uuid.NewString(),
				CouponID: id,
				Count:    coupon.TotalNum,
			})
			if err != nil {
				logger.Errorw("code_generate_enqueue_failed", "coupon_id", id, "error", err)
				return nil, err
			}
		}
	}

	logger.Infow("coupon_issue_started", "coupon_id", id, "status", target)
	return coupon, nil
}

// PauseIssue 暂停发放并移除领券缓存
func (s *CouponAdminService) PauseIssue(ctx context.Context, id uint) (*models.Coupon, error) {
	coupon, err := s.couponRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	from := []string{constants.CouponStatusUnIssue, constants.CouponStatusIssuing}
	ok, err := s.couponRepo.UpdateStatus(id, from, constants.CouponStatusPause)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCouponStatusInvalid
	}
	coupon.Status = constants.CouponStatusPause

	if err := s.claimStore.DropCoupon(ctx, id); err != nil {
		logger.Warnw("claim_meta_drop_failed", "coupon_id", id, "error", err)
	}

	logger.Infow("coupon_issue_paused", "coupon_id", id)
	return coupon, nil
}

// ListExchangeCodes 分页查询兑换码发放明细
func (s *CouponAdminService) ListExchangeCodes(filter repository.ExchangeCodeListFilter) ([]models.ExchangeCode, int64, error) {
	return s.codeRepo.List(filter)
}
