package models

import (
	"time"
)

// UserCoupon 用户领取的优惠券记录；只做状态流转，永不删除
type UserCoupon struct {
	ID          uint       `gorm:"primarykey" json:"id"`                            // 主键
	UserID      uint       `gorm:"index:idx_user_coupon;not null" json:"user_id"`   // 用户ID
	CouponID    uint       `gorm:"index:idx_user_coupon;not null" json:"coupon_id"` // 优惠券ID
	AttemptID   string     `gorm:"uniqueIndex;not null" json:"-"`                   // 领取流水号（消息幂等去重）
	Status      string     `gorm:"index;not null;default:unused" json:"status"`     // 状态（unused/used/expired）
	TermBeginAt time.Time  `gorm:"not null" json:"term_begin_at"`                   // 有效期开始
	TermEndAt   time.Time  `gorm:"index;not null" json:"term_end_at"`               // 有效期结束
	UsedOrderID *uint      `gorm:"index" json:"used_order_id,omitempty"`            // 核销订单ID
	UsedAt      *time.Time `json:"used_at,omitempty"`                               // 核销时间
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`                         // 创建时间
	UpdatedAt   time.Time  `gorm:"index" json:"updated_at"`                         // 更新时间
}

// TableName 指定表名
func (UserCoupon) TableName() string {
	return "user_coupons"
}

// UsableAt 判断指定时刻该券是否可用于订单
func (uc *UserCoupon) UsableAt(now time.Time) bool {
	if uc == nil || uc.Status != "unused" {
		return false
	}
	return !now.Before(uc.TermBeginAt) && now.Before(uc.TermEndAt)
}
