package service

import "errors"

// 业务错误定义，handler 层据此映射响应码
var (
	ErrNotFound           = errors.New("资源不存在")
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrInvalidPassword    = errors.New("密码错误")

	// 优惠券管理
	ErrCouponNotFound      = errors.New("优惠券不存在")
	ErrCouponNotDraft      = errors.New("只能操作待发放状态的优惠券")
	ErrCouponStatusInvalid = errors.New("优惠券当前状态不允许该操作")
	ErrCouponIssueWindow   = errors.New("发放时间区间不合法")

	// 领券与兑换
	ErrCouponNotIssuing      = errors.New("优惠券不在发放期内")
	ErrCouponStockExhausted  = errors.New("优惠券已被领完")
	ErrCouponUserLimit       = errors.New("超出每人限领数量")
	ErrTooManyRequests       = errors.New("请求太频繁，请稍后重试")
	ErrCodeInvalid           = errors.New("无效的兑换码")
	ErrCodeNotFound          = errors.New("兑换码不存在")
	ErrCodeExpired           = errors.New("兑换码已过期")
	ErrCodeAlreadyRedeemed   = errors.New("兑换码已被使用")
	ErrUserCouponNotFound    = errors.New("用户券不存在")
	ErrUserCouponNotUsable   = errors.New("用户券不可用")
	ErrUserCouponNotRestored = errors.New("用户券状态不允许退回")

	// 优惠方案
	ErrSolutionIneligible = errors.New("所选优惠券组合不可用")
)
