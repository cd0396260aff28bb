package service

import (
	"context"

	"github.com/promo-next/internal/lock"
	"github.com/promo-next/internal/models"
	"github.com/promo-next/internal/queue"

	"github.com/hibiken/asynq"
)

// ClaimCache 领券库存缓存契约，由 cache.ClaimStore 实现
type ClaimCache interface {
	TryClaim(ctx context.Context, couponID, userID uint) (int64, error)
	RollbackClaim(ctx context.Context, couponID, userID uint) error
	CacheCoupon(ctx context.Context, coupon *models.Coupon) error
	DropCoupon(ctx context.Context, couponID uint) error
}

// RedemptionVault 兑换码状态缓存契约，由 cache.CodeVault 实现
type RedemptionVault interface {
	MarkRedeemed(ctx context.Context, serial uint) (bool, error)
	UnmarkRedeemed(ctx context.Context, serial uint) error
	ResolveCoupon(ctx context.Context, serial uint) (uint, error)
}

// CodeRangeStore 兑换码发号与区间索引契约，由 cache.CodeVault 实现
type CodeRangeStore interface {
	Available() bool
	NextSerialRange(ctx context.Context, count int) (uint, uint, error)
	AddRange(ctx context.Context, couponID, serialBegin, serialEnd uint) error
}

// Locker 分布式锁契约，由 lock.Locker 实现
type Locker interface {
	Acquire(ctx context.Context, key string) (*lock.Mutex, error)
}

// TaskEnqueuer 结算任务投递契约，由 queue.Client 实现
type TaskEnqueuer interface {
	EnqueueClaimConfirmed(payload queue.ClaimConfirmedPayload, opts ...asynq.Option) error
	EnqueueCodeGenerate(payload queue.CodeGeneratePayload, opts ...asynq.Option) error
}
