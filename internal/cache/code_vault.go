package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/promo-next/internal/constants"

	"github.com/redis/go-redis/v9"
)

// 兑换码缓存的错误
var (
	ErrVaultUnavailable  = errors.New("兑换码缓存未启用")
	ErrCodeRangeNotFound = errors.New("序列号不在任何已发布批次内")
)

// CodeVault 兑换码状态缓存
// 位图记录每个序列号是否已兑换，ZSET 按批次区间索引序列号归属的优惠券
type CodeVault struct {
	client *redis.Client
}

// NewCodeVault 创建兑换码状态缓存
func NewCodeVault(client *redis.Client) *CodeVault {
	return &CodeVault{client: client}
}

// Available 判断缓存是否可用
func (v *CodeVault) Available() bool {
	return v != nil && v.client != nil
}

func codeBitmapKey() string {
	return buildKey(constants.ExchangeCodeBitmapKey)
}

func codeRangeKey() string {
	return buildKey(constants.ExchangeCodeRangeKey)
}

func codeSerialKey() string {
	return buildKey(constants.ExchangeCodeSerialKey)
}

// NextSerialRange 预留一段连续的序列号，返回闭区间 [begin, end]
func (v *CodeVault) NextSerialRange(ctx context.Context, count int) (uint, uint, error) {
	if !v.Available() {
		return 0, 0, ErrVaultUnavailable
	}
	if count <= 0 {
		return 0, 0, errors.New("序列号数量必须大于 0")
	}
	end, err := v.client.IncrBy(ctx, codeSerialKey(), int64(count)).Result()
	if err != nil {
		return 0, 0, err
	}
	return uint(end) - uint(count) + 1, uint(end), nil
}

// MarkRedeemed 标记序列号已兑换，返回标记前的状态
func (v *CodeVault) MarkRedeemed(ctx context.Context, serial uint) (bool, error) {
	if !v.Available() {
		return false, ErrVaultUnavailable
	}
	old, err := v.client.SetBit(ctx, codeBitmapKey(), int64(serial), 1).Result()
	if err != nil {
		return false, err
	}
	return old == 1, nil
}

// UnmarkRedeemed 回滚兑换标记
func (v *CodeVault) UnmarkRedeemed(ctx context.Context, serial uint) error {
	if !v.Available() {
		return ErrVaultUnavailable
	}
	return v.client.SetBit(ctx, codeBitmapKey(), int64(serial), 0).Err()
}

// IsRedeemed 查询序列号是否已兑换
func (v *CodeVault) IsRedeemed(ctx context.Context, serial uint) (bool, error) {
	if !v.Available() {
		return false, ErrVaultUnavailable
	}
	bit, err := v.client.GetBit(ctx, codeBitmapKey(), int64(serial)).Result()
	if err != nil {
		return false, err
	}
	return bit == 1, nil
}

// AddRange 登记一个批次的序列号区间
// 成员为 "{couponID}:{serialBegin}"，分值为区间末尾序列号
func (v *CodeVault) AddRange(ctx context.Context, couponID, serialBegin, serialEnd uint) error {
	if !v.Available() {
		return ErrVaultUnavailable
	}
	member := fmt.Sprintf("%d:%d", couponID, serialBegin)
	return v.client.ZAdd(ctx, codeRangeKey(), redis.Z{
		Score:  float64(serialEnd),
		Member: member,
	}).Err()
}

// ResolveCoupon 根据序列号查找归属的优惠券
// 取第一个分值（区间末尾）不小于序列号的成员，再校验区间起点
func (v *CodeVault) ResolveCoupon(ctx context.Context, serial uint) (uint, error) {
	if !v.Available() {
		return 0, ErrVaultUnavailable
	}
	members, err := v.client.ZRangeByScore(ctx, codeRangeKey(), &redis.ZRangeBy{
		Min:    strconv.FormatUint(uint64(serial), 10),
		Max:    "+inf",
		Offset: 0,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, ErrCodeRangeNotFound
	}
	parts := strings.SplitN(members[0], ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("非法的区间成员: %s", members[0])
	}
	couponID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("非法的区间成员: %s", members[0])
	}
	serialBegin, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("非法的区间成员: %s", members[0])
	}
	if uint64(serial) < serialBegin {
		return 0, ErrCodeRangeNotFound
	}
	return uint(couponID), nil
}
