package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/models"

	"github.com/redis/go-redis/v9"
)

// 领券快速路径的错误
var (
	ErrCouponNotCached  = errors.New("优惠券发放信息未缓存")
	ErrStockExhausted   = errors.New("优惠券库存不足")
	ErrUserLimitReached = errors.New("超出每人限领数量")
)

// 缓存过期的宽限时间，保证结算侧补偿仍能回滚
const claimMetaGrace = 24 * time.Hour

// tryClaimScript 原子扣减库存并累加用户领取数
// 返回值：-3 未缓存，-1 库存不足，-2 超出限领，>=0 剩余库存
var tryClaimScript = redis.NewScript(`
local stock = redis.call("HGET", KEYS[1], "stock")
if not stock then
	return -3
end
stock = tonumber(stock)
if stock <= 0 then
	return -1
end
local limit = tonumber(redis.call("HGET", KEYS[1], "limit") or "0")
local taken = tonumber(redis.call("HGET", KEYS[2], ARGV[1]) or "0")
if limit > 0 and taken >= limit then
	return -2
end
redis.call("HINCRBY", KEYS[1], "stock", -1)
redis.call("HINCRBY", KEYS[2], ARGV[1], 1)
return stock - 1
`)

// rollbackClaimScript 回滚一次领取（库存加回、用户计数减一）
var rollbackClaimScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("HINCRBY", KEYS[1], "stock", 1)
end
local taken = tonumber(redis.call("HGET", KEYS[2], ARGV[1]) or "0")
if taken > 0 then
	redis.call("HINCRBY", KEYS[2], ARGV[1], -1)
end
return 1
`)

// ClaimStore 领券库存缓存
type ClaimStore struct {
	client *redis.Client
}

// NewClaimStore 创建领券库存缓存
func NewClaimStore(client *redis.Client) *ClaimStore {
	return &ClaimStore{client: client}
}

// Available 判断缓存是否可用
func (s *ClaimStore) Available() bool {
	return s != nil && s.client != nil
}

func claimMetaKey(couponID uint) string {
	return buildKey(fmt.Sprintf("%s%d", constants.CouponCacheKeyPrefix, couponID))
}

func claimUsersKey(couponID uint) string {
	return buildKey(fmt.Sprintf("%s%d%s", constants.CouponCacheKeyPrefix, couponID, constants.CouponUserKeySuffix))
}

// CacheCoupon 写入发放中的优惠券库存信息
func (s *ClaimStore) CacheCoupon(ctx context.Context, coupon *models.Coupon) error {
	if !s.Available() || coupon == nil {
		return nil
	}
	stock := coupon.TotalNum - coupon.IssueNum
	if stock < 0 {
		stock = 0
	}
	metaKey := claimMetaKey(coupon.ID)
	if err := s.client.HSet(ctx, metaKey,
		"stock", stock,
		"limit", coupon.UserLimit,
	).Err(); err != nil {
		return err
	}
	if coupon.IssueEndAt != nil {
		expireAt := coupon.IssueEndAt.Add(claimMetaGrace)
		if err := s.client.ExpireAt(ctx, metaKey, expireAt).Err(); err != nil {
			return err
		}
		if err := s.client.ExpireAt(ctx, claimUsersKey(coupon.ID), expireAt).Err(); err != nil {
			return err
		}
	}
	return nil
}

// DropCoupon 删除优惠券库存信息
func (s *ClaimStore) DropCoupon(ctx context.Context, couponID uint) error {
	if !s.Available() {
		return nil
	}
	return s.client.Del(ctx, claimMetaKey(couponID), claimUsersKey(couponID)).Err()
}

// TryClaim 尝试领取一张优惠券，成功返回剩余库存
func (s *ClaimStore) TryClaim(ctx context.Context, couponID, userID uint) (int64, error) {
	if !s.Available() {
		return 0, ErrCouponNotCached
	}
	keys := []string{claimMetaKey(couponID), claimUsersKey(couponID)}
	result, err := tryClaimScript.Run(ctx, s.client, keys, userID).Int64()
	if err != nil {
		return 0, err
	}
	switch result {
	case -3:
		return 0, ErrCouponNotCached
	case -1:
		return 0, ErrStockExhausted
	case -2:
		return 0, ErrUserLimitReached
	default:
		return result, nil
	}
}

// RollbackClaim 回滚一次领取（下游投递失败时的补偿）
func (s *ClaimStore) RollbackClaim(ctx context.Context, couponID, userID uint) error {
	if !s.Available() {
		return nil
	}
	keys := []string{claimMetaKey(couponID), claimUsersKey(couponID)}
	return rollbackClaimScript.Run(ctx, s.client, keys, userID).Err()
}

// UserClaimCount 查询某用户已领取数量
func (s *ClaimStore) UserClaimCount(ctx context.Context, couponID, userID uint) (int64, error) {
	if !s.Available() {
		return 0, nil
	}
	val, err := s.client.HGet(ctx, claimUsersKey(couponID), fmt.Sprintf("%d", userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}
