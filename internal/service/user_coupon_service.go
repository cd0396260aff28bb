package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/promo-next/internal/cache"
	"github.com/promo-next/internal/codes"
	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/lock"
	"github.com/promo-next/internal/logger"
	"github.com/promo-next/internal/models"
	"github.com/promo-next/internal/queue"
	"github.com/promo-next/internal/repository"

	"github.com/google/uuid"
)

// UserCouponService 领券与用户券服务
type UserCouponService struct {
	couponRepo     repository.CouponRepository
	userCouponRepo repository.UserCouponRepository
	codeRepo       repository.ExchangeCodeRepository
	claimStore     ClaimCache
	codeVault      RedemptionVault
	locker         Locker
	queueClient    TaskEnqueuer
}

// NewUserCouponService 创建领券服务实例
func NewUserCouponService(
	couponRepo repository.CouponRepository,
	userCouponRepo repository.UserCouponRepository,
	codeRepo repository.ExchangeCodeRepository,
	claimStore ClaimCache,
	codeVault RedemptionVault,
	locker Locker,
	queueClient TaskEnqueuer,
) *UserCouponService {
	return &UserCouponService{
		couponRepo:     couponRepo,
		userCouponRepo: userCouponRepo,
		codeRepo:       codeRepo,
		claimStore:     claimStore,
		codeVault:      codeVault,
		locker:         locker,
		queueClient:    queueClient,
	}
}

// ReceiveCoupon 领取优惠券
// 快速路径在缓存内原子完成库存与限领校验，落库由结算任务异步完成
func (s *UserCouponService) ReceiveCoupon(ctx context.Context, couponID, userID uint) error {
	coupon, err := s.couponRepo.GetByID(couponID)
	if err != nil {
		return err
	}
	if coupon == nil {
		return ErrCouponNotFound
	}
	if !coupon.IsIssuingAt(time.Now()) {
		return ErrCouponNotIssuing
	}

	attemptID := uuid.NewString()
	payload := queue.ClaimConfirmedPayload{
		AttemptID: attemptID,
		CouponID:  couponID,
		UserID:    userID,
	}

	_, err = s.claimStore.TryClaim(ctx, couponID, userID)
	switch {
	case err == nil:
		if err := s.queueClient.EnqueueClaimConfirmed(payload); err != nil {
			s.rollbackClaim(ctx, couponID, userID)
			return fmt.Errorf("投递领券结算任务失败: %w", err)
		}
		return nil
	case errors.Is(err, cache.ErrStockExhausted):
		return ErrCouponStockExhausted
	case errors.Is(err, cache.ErrUserLimitReached):
		return ErrCouponUserLimit
	case errors.Is(err, cache.ErrCouponNotCached):
		return s.receiveSlowPath(ctx, couponID, userID, payload)
	default:
		// 缓存故障时直接拒绝领取，不冒险放行
		return fmt.Errorf("领券缓存不可用: %w", err)
	}
}

// receiveSlowPath 缓存未命中时在券级锁内回填缓存并重走快速路径
// 本次领取必须经过 TryClaim 消耗回填的库存，否则会被重复计数
func (s *UserCouponService) receiveSlowPath(ctx context.Context, couponID, userID uint, payload queue.ClaimConfirmedPayload) error {
	key := fmt.Sprintf("%s%d", constants.ClaimLockKeyPrefix, couponID)
	mutex, err := s.locker.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return ErrTooManyRequests
		}
		return err
	}
	defer func() {
		if err := mutex.Release(ctx); err != nil {
			logger.Warnw("claim_lock_release_failed", "key", key, "error", err)
		}
	}()

	// 锁内重读，回填不能使用锁外的过期快照
	coupon, err := s.couponRepo.GetByID(couponID)
	if err != nil {
		return err
	}
	if coupon == nil {
		return ErrCouponNotFound
	}
	if !coupon.IsIssuingAt(time.Now()) {
		return ErrCouponNotIssuing
	}
	if coupon.IssueNum >= coupon.TotalNum {
		return ErrCouponStockExhausted
	}
	count, err := s.userCouponRepo.CountByUserCoupon(userID, couponID)
	if err != nil {
		return err
	}
	if coupon.UserLimit > 0 && count >= int64(coupon.UserLimit) {
		return ErrCouponUserLimit
	}

	if err := s.claimStore.CacheCoupon(ctx, coupon); err != nil {
		return fmt.Errorf("领券缓存不可用: %w", err)
	}

	_, err = s.claimStore.TryClaim(ctx, couponID, userID)
	switch {
	case err == nil:
		if err := s.queueClient.EnqueueClaimConfirmed(payload); err != nil {
			s.rollbackClaim(ctx, couponID, userID)
			return fmt.Errorf("投递领券结算任务失败: %w", err)
		}
		return nil
	case errors.Is(err, cache.ErrStockExhausted):
		return ErrCouponStockExhausted
	case errors.Is(err, cache.ErrUserLimitReached):
		return ErrCouponUserLimit
	case errors.Is(err, cache.ErrCouponNotCached):
		// 缓存整体不可用时退化为纯数据库校验，结算侧守卫兜底
		return s.queueClient.EnqueueClaimConfirmed(payload)
	default:
		return fmt.Errorf("领券缓存不可用: %w", err)
	}
}

// ExchangeCoupon 以兑换码兑换优惠券
// 标记位图后任何一步失败都要回滚标记，让兑换码保持可用
func (s *UserCouponService) ExchangeCoupon(ctx context.Context, codeText string, userID uint) error {
	serial, err := codes.Parse(codeText)
	if err != nil {
		return ErrCodeInvalid
	}

	already, err := s.codeVault.MarkRedeemed(ctx, serial)
	if err != nil {
		return fmt.Errorf("兑换码缓存不可用: %w", err)
	}
	if already {
		return ErrCodeAlreadyRedeemed
	}

	if err := s.exchangeAfterMark(ctx, serial, userID); err != nil {
		if rbErr := s.codeVault.UnmarkRedeemed(ctx, serial); rbErr != nil {
			// 回滚失败会让兑换码被锁死，必须触发对账告警
			logger.Errorw("exchange_rollback_failed",
				"serial", serial,
				"user_id", userID,
				"cause", err,
				"rollback_error", rbErr,
			)
		}
		return err
	}
	return nil
}

// exchangeAfterMark 位图标记成功后的校验与领取
func (s *UserCouponService) exchangeAfterMark(ctx context.Context, serial, userID uint) error {
	record, err := s.codeRepo.GetBySerial(serial)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrCodeNotFound
	}
	if record.Status == constants.ExchangeCodeStatusUsed {
		return ErrCodeAlreadyRedeemed
	}
	now := time.Now()
	if now.After(record.ExpiredAt) {
		return ErrCodeExpired
	}

	couponID := record.CouponID
	if resolved, err := s.codeVault.ResolveCoupon(ctx, serial); err == nil && resolved != couponID {
		// 区间索引与码记录不一致说明批次登记有问题
		logger.Errorw("code_range_mismatch", "serial", serial, "indexed", resolved, "recorded", couponID)
	}

	coupon, err := s.couponRepo.GetByID(couponID)
	if err != nil {
		return err
	}
	if coupon == nil {
		return ErrCouponNotFound
	}
	if !coupon.IsIssuingAt(now) {
		return ErrCouponNotIssuing
	}

	payload := queue.ClaimConfirmedPayload{
		AttemptID: uuid.NewString(),
		CouponID:  couponID,
		UserID:    userID,
		Serial:    serial,
	}

	_, err = s.claimStore.TryClaim(ctx, couponID, userID)
	switch {
	case err == nil:
		if err := s.queueClient.EnqueueClaimConfirmed(payload); err != nil {
			s.rollbackClaim(ctx, couponID, userID)
			return fmt.Errorf("投递兑换结算任务失败: %w", err)
		}
		return nil
	case errors.Is(err, cache.ErrStockExhausted):
		return ErrCouponStockExhausted
	case errors.Is(err, cache.ErrUserLimitReached):
		return ErrCouponUserLimit
	case errors.Is(err, cache.ErrCouponNotCached):
		return s.receiveSlowPath(ctx, couponID, userID, payload)
	default:
		return fmt.Errorf("领券缓存不可用: %w", err)
	}
}

func (s *UserCouponService) rollbackClaim(ctx context.Context, couponID, userID uint) {
	if err := s.claimStore.RollbackClaim(ctx, couponID, userID); err != nil {
		logger.Errorw("claim_rollback_failed", "coupon_id", couponID, "user_id", userID, "error", err)
	}
}

// UserCouponView 用户券及其对应的券规则
type UserCouponView struct {
	models.UserCoupon
	Coupon *models.Coupon `json:"coupon,omitempty"`
}

// QueryMyCoupons 分页查询用户的券
func (s *UserCouponService) QueryMyCoupons(userID uint, status string, page, pageSize int) ([]UserCouponView, int64, error) {
	userCoupons, total, err := s.userCouponRepo.List(repository.UserCouponListFilter{
		UserID:   userID,
		Status:   status,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, 0, err
	}

	couponIDs := make([]uint, 0, len(userCoupons))
	seen := make(map[uint]bool, len(userCoupons))
	for _, uc := range userCoupons {
		if !seen[uc.CouponID] {
			seen[uc.CouponID] = true
			couponIDs = append(couponIDs, uc.CouponID)
		}
	}
	coupons, err := s.couponRepo.ListByIDs(couponIDs)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[uint]*models.Coupon, len(coupons))
	for i := range coupons {
		byID[coupons[i].ID] = &coupons[i]
	}

	views := make([]UserCouponView, 0, len(userCoupons))
	for _, uc := range userCoupons {
		views = append(views, UserCouponView{UserCoupon: uc, Coupon: byID[uc.CouponID]})
	}
	return views, total, nil
}

// UseCoupons 订单结算核销用户券
// 任何一张不满足条件则全部失败，已核销的部分回滚
func (s *UserCouponService) UseCoupons(ctx context.Context, userID uint, userCouponIDs []uint, orderID uint) error {
	now := time.Now()
	used := make([]uint, 0, len(userCouponIDs))
	rollback := func() {
		for _, id := range used {
			if ok, err := s.userCouponRepo.MarkUnused(id); err != nil || !ok {
				logger.Errorw("use_coupon_rollback_failed", "user_coupon_id", id, "error", err)
			}
		}
	}

	for _, id := range userCouponIDs {
		uc, err := s.userCouponRepo.GetByID(id)
		if err != nil {
			rollback()
			return err
		}
		if uc == nil || uc.UserID != userID {
			rollback()
			return ErrUserCouponNotFound
		}
		if !uc.UsableAt(now) {
			rollback()
			return ErrUserCouponNotUsable
		}
		ok, err := s.userCouponRepo.MarkUsed(id, orderID, now)
		if err != nil {
			rollback()
			return err
		}
		if !ok {
			rollback()
			return ErrUserCouponNotUsable
		}
		used = append(used, id)
	}
	return nil
}

// RefundCoupons 退单返还用户券
// 有效期内恢复为未使用，有效期已过则置为过期
func (s *UserCouponService) RefundCoupons(ctx context.Context, userID uint, userCouponIDs []uint) error {
	now := time.Now()
	for _, id := range userCouponIDs {
		uc, err := s.userCouponRepo.GetByID(id)
		if err != nil {
			return err
		}
		if uc == nil || uc.UserID != userID {
			return ErrUserCouponNotFound
		}
		if uc.Status != constants.UserCouponStatusUsed {
			return ErrUserCouponNotRestored
		}
		var ok bool
		if now.Before(uc.TermEndAt) {
			ok, err = s.userCouponRepo.MarkUnused(id)
		} else {
			ok, err = s.userCouponRepo.MarkExpired(id)
		}
		if err != nil {
			return err
		}
		if !ok {
			return ErrUserCouponNotRestored
		}
	}
	return nil
}
