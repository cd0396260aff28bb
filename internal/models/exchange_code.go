package models

import (
	"time"
)

// ExchangeCode 兑换码；序列号由发号器分配，批次内连续
type ExchangeCode struct {
	Serial    uint       `gorm:"primarykey;autoIncrement:false;column:serial" json:"serial"` // 序列号（主键，非自增）
	Code      string     `gorm:"uniqueIndex;not null" json:"code"`                           // 兑换码明文
	CouponID  uint       `gorm:"index;not null" json:"coupon_id"`                            // 目标优惠券ID
	BatchID   uint       `gorm:"index;not null" json:"batch_id"`                             // 批次ID
	Status    string     `gorm:"index;not null;default:unused" json:"status"`                // 状态（unused/used）
	UserID    uint       `gorm:"index;not null;default:0" json:"user_id"`                    // 兑换用户ID（兑换时写入）
	UsedAt    *time.Time `json:"used_at"`                                                    // 兑换时间
	ExpiredAt time.Time  `gorm:"index;not null" json:"expired_at"`                           // 过期时间
	CreatedAt time.Time  `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt time.Time  `json:"updated_at"`                                                 // 更新时间
}

// TableName 指定表名
func (ExchangeCode) TableName() string {
	return "exchange_codes"
}
