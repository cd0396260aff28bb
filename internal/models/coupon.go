package models

import (
	"time"

	"gorm.io/gorm"
)

// Coupon 优惠券规则
type Coupon struct {
	ID              uint           `gorm:"primarykey" json:"id"`                       // 主键
	Name            string         `gorm:"not null" json:"name"`                       // 优惠券名称
	DiscountType    string         `gorm:"index;not null" json:"discount_type"`        // 折扣类型（fixed/percent/threshold）
	Value           int64          `gorm:"not null" json:"value"`                      // 面值：fixed/threshold 为立减金额（分），percent 为折扣百分比
	ThresholdAmount int64          `gorm:"not null;default:0" json:"threshold_amount"` // 使用门槛（分，0 表示不限制）
	MaxDiscount     int64          `gorm:"not null;default:0" json:"max_discount"`     // 最大优惠金额（分，0 表示不限制）
	TotalNum        int            `gorm:"not null" json:"total_num"`                  // 发放总量
	IssueNum        int            `gorm:"not null;default:0" json:"issue_num"`        // 已发放数量（只能由结算路径带守卫递增）
	UserLimit       int            `gorm:"not null;default:1" json:"user_limit"`       // 每人限领数量
	ObtainWay       string         `gorm:"not null;default:public" json:"obtain_way"`  // 获取方式（public/code）
	Specific        bool           `gorm:"not null;default:false" json:"specific"`     // 是否限定分类范围
	Status          string         `gorm:"index;not null;default:draft" json:"status"` // 状态（draft/un_issue/issuing/pause/finished）
	IssueBeginAt    *time.Time     `gorm:"index" json:"issue_begin_at"`                // 发放开始时间
	IssueEndAt      *time.Time     `gorm:"index" json:"issue_end_at"`                  // 发放结束时间
	TermBeginAt     *time.Time     `json:"term_begin_at"`                              // 固定有效期开始时间
	TermEndAt       *time.Time     `json:"term_end_at"`                                // 固定有效期结束时间
	TermDays        int            `gorm:"not null;default:0" json:"term_days"`        // 领取后有效天数（与固定有效期二选一）
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                    // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                    // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                             // 软删除时间

	Scopes []CouponScope `gorm:"foreignKey:CouponID" json:"scopes,omitempty"` // 限定分类
}

// TableName 指定表名
func (Coupon) TableName() string {
	return "coupons"
}

// IsIssuingAt 判断指定时刻是否处于发放窗口内
func (c *Coupon) IsIssuingAt(now time.Time) bool {
	if c == nil || c.Status != "issuing" {
		return false
	}
	if c.IssueBeginAt != nil && now.Before(*c.IssueBeginAt) {
		return false
	}
	if c.IssueEndAt != nil && !now.Before(*c.IssueEndAt) {
		return false
	}
	return true
}

// ResolveTerm 计算本次领取生成的用户券有效期
func (c *Coupon) ResolveTerm(now time.Time) (time.Time, time.Time) {
	if c.TermBeginAt != nil && c.TermEndAt != nil {
		return *c.TermBeginAt, *c.TermEndAt
	}
	days := c.TermDays
	if days <= 0 {
		days = 1
	}
	return now, now.AddDate(0, 0, days)
}
