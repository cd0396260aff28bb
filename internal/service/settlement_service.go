package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/promo-next/internal/codes"
	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/logger"
	"github.com/promo-next/internal/models"
	"github.com/promo-next/internal/queue"
	"github.com/promo-next/internal/repository"

	"gorm.io/gorm"
)

// 结算侧的永久失败，消费者据此送入死信而不再重试
var (
	ErrSettleRejected  = errors.New("结算事件校验失败")
	ErrSettleIntegrity = errors.New("结算数据完整性告警")
)

// SettlementService 领券结算服务
// 消费至少一次投递的领券确认事件，负责所有持久化写入
type SettlementService struct {
	db             *gorm.DB
	couponRepo     repository.CouponRepository
	userCouponRepo repository.UserCouponRepository
	codeRepo       repository.ExchangeCodeRepository
	batchRepo      repository.ExchangeCodeBatchRepository
	codeVault      CodeRangeStore
	locker         Locker
	codeBatchSize  int
}

// NewSettlementService 创建结算服务实例
func NewSettlementService(
	db *gorm.DB,
	couponRepo repository.CouponRepository,
	userCouponRepo repository.UserCouponRepository,
	codeRepo repository.ExchangeCodeRepository,
	batchRepo repository.ExchangeCodeBatchRepository,
	codeVault CodeRangeStore,
	locker Locker,
	codeBatchSize int,
) *SettlementService {
	if codeBatchSize <= 0 {
		codeBatchSize = 500
	}
	return &SettlementService{
		db:             db,
		couponRepo:     couponRepo,
		userCouponRepo: userCouponRepo,
		codeRepo:       codeRepo,
		batchRepo:      batchRepo,
		codeVault:      codeVault,
		locker:         locker,
		codeBatchSize:  codeBatchSize,
	}
}

// HandleClaimConfirmed 处理一条领券确认事件
// 重复投递通过领取流水号唯一索引吸收；返回包装 ErrSettleRejected/ErrSettleIntegrity 的错误不应重试
func (s *SettlementService) HandleClaimConfirmed(ctx context.Context, payload queue.ClaimConfirmedPayload) error {
	if payload.AttemptID == "" || payload.CouponID == 0 || payload.UserID == 0 {
		return fmt.Errorf("%w: 载荷缺少必要字段", ErrSettleRejected)
	}

	existing, err := s.userCouponRepo.GetByAttemptID(payload.AttemptID)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.Infow("claim_settle_duplicate", "attempt_id", payload.AttemptID)
		return nil
	}

	coupon, err := s.couponRepo.GetByID(payload.CouponID)
	if err != nil {
		return err
	}
	if coupon == nil {
		return fmt.Errorf("%w: 优惠券 %d 不存在", ErrSettleRejected, payload.CouponID)
	}
	now := time.Now()
	if !coupon.IsIssuingAt(now) {
		return fmt.Errorf("%w: 优惠券 %d 不在发放期", ErrSettleRejected, payload.CouponID)
	}

	// 多步读写不具备原子性，以锁串行化同一用户同一券的结算
	key := fmt.Sprintf("%s%d:%d", constants.SettleLockKeyPrefix, payload.UserID, payload.CouponID)
	mutex, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if err := mutex.Release(ctx); err != nil {
			logger.Warnw("settle_lock_release_failed", "key", key, "error", err)
		}
	}()

	count, err := s.userCouponRepo.CountByUserCoupon(payload.UserID, payload.CouponID)
	if err != nil {
		return err
	}
	if coupon.UserLimit > 0 && count >= int64(coupon.UserLimit) {
		return fmt.Errorf("%w: 用户 %d 超出限领数量", ErrSettleRejected, payload.UserID)
	}

	termBegin, termEnd := coupon.ResolveTerm(now)
	return s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.couponRepo.WithTx(tx).IncrIssueNum(payload.CouponID)
		if err != nil {
			return err
		}
		if !ok {
			// 快速路径已扣减库存，守卫仍失败说明两侧计数出现分歧
			logger.Errorw("settle_issue_overflow",
				"coupon_id", payload.CouponID,
				"user_id", payload.UserID,
				"attempt_id", payload.AttemptID,
			)
			return fmt.Errorf("%w: 优惠券 %d 发放量越界", ErrSettleIntegrity, payload.CouponID)
		}

		userCoupon := &models.UserCoupon{
			UserID:      payload.UserID,
			CouponID:    payload.CouponID,
			AttemptID:   payload.AttemptID,
			Status:      constants.UserCouponStatusUnused,
			TermBeginAt: termBegin,
			TermEndAt:   termEnd,
		}
		if err := s.userCouponRepo.WithTx(tx).Create(userCoupon); err != nil {
			return err
		}

		if payload.Serial > 0 {
			ok, err := s.codeRepo.WithTx(tx).MarkUsed(payload.Serial, payload.UserID, now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: 兑换码 %d 已被核销", ErrSettleRejected, payload.Serial)
			}
		}
		return nil
	})
}

// GenerateCodeBatch 为优惠券生成一批兑换码
// 序列号段由发号器预留，批次区间登记进缓存索引供兑换时反查
func (s *SettlementService) GenerateCodeBatch(ctx context.Context, payload queue.CodeGeneratePayload) error {
	if payload.BatchKey == "" || payload.CouponID == 0 || payload.Count <= 0 {
		return fmt.Errorf("%w: 载荷缺少必要字段", ErrSettleRejected)
	}

	// 队列至少一次投递，重复任务按批次流水号去重
	existing, err := s.batchRepo.GetByBatchKey(payload.BatchKey)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.Infow("code_batch_duplicate_skipped",
			"batch_key", payload.BatchKey,
			"coupon_id", payload.CouponID,
			"batch_id", existing.ID,
		)
		return nil
	}

	coupon, err := s.couponRepo.GetByID(payload.CouponID)
	if err != nil {
		return err
	}
	if coupon == nil {
		return fmt.Errorf("%w: 优惠券 %d 不存在", ErrSettleRejected, payload.CouponID)
	}
	if coupon.ObtainWay != constants.ObtainWayCode {
		return fmt.Errorf("%w: 优惠券 %d 不是兑换码发放", ErrSettleRejected, payload.CouponID)
	}

	serialBegin, serialEnd, err := s.codeVault.NextSerialRange(ctx, payload.Count)
	if err != nil {
		return err
	}

	expiredAt := time.Now().AddDate(0, 0, 365)
	if coupon.IssueEndAt != nil {
		expiredAt = *coupon.IssueEndAt
	}

	records := make([]models.ExchangeCode, 0, payload.Count)
	batch := &models.ExchangeCodeBatch{
		BatchKey:    payload.BatchKey,
		CouponID:    payload.CouponID,
		SerialBegin: serialBegin,
		SerialEnd:   serialEnd,
		TotalCount:  payload.Count,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.batchRepo.WithTx(tx).Create(batch); err != nil {
			return err
		}
		for serial := serialBegin; serial <= serialEnd; serial++ {
			records = append(records, models.ExchangeCode{
				Serial:    serial,
				Code:      codes.Generate(serial),
				CouponID:  payload.CouponID,
				BatchID:   batch.ID,
				Status:    constants.ExchangeCodeStatusUnused,
				ExpiredAt: expiredAt,
			})
		}
		return s.codeRepo.WithTx(tx).BatchCreate(records, s.codeBatchSize)
	})
	if err != nil {
		return err
	}

	if err := s.codeVault.AddRange(ctx, payload.CouponID, serialBegin, serialEnd); err != nil {
		// 索引登记失败不影响已落库的码，兑换时可回退数据库区间查询
		logger.Errorw("code_range_index_failed",
			"coupon_id", payload.CouponID,
			"serial_begin", serialBegin,
			"serial_end", serialEnd,
			"error", err,
		)
	}

	logger.Infow("code_batch_generated",
		"coupon_id", payload.CouponID,
		"batch_id", batch.ID,
		"serial_begin", serialBegin,
		"serial_end", serialEnd,
	)
	return nil
}

// RebuildCodeRangeIndex 启动时从数据库重建批次区间索引
func (s *SettlementService) RebuildCodeRangeIndex(ctx context.Context) error {
	if !s.codeVault.Available() {
		return nil
	}
	batches, err := s.batchRepo.ListAll()
	if err != nil {
		return err
	}
	for i := range batches {
		b := &batches[i]
		if err := s.codeVault.AddRange(ctx, b.CouponID, b.SerialBegin, b.SerialEnd); err != nil {
			return err
		}
	}
	return nil
}
