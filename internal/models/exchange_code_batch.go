package models

import (
	"time"
)

// ExchangeCodeBatch 兑换码批次；序列号区间单调递增，一个区间只属于一张优惠券
type ExchangeCodeBatch struct {
	ID          uint      `gorm:"primarykey" json:"id"`                   // 主键
	BatchKey    string    `gorm:"uniqueIndex;not null" json:"-"`          // 批次流水号（生成任务幂等去重）
	CouponID    uint      `gorm:"index;not null" json:"coupon_id"`        // 优惠券ID
	SerialBegin uint      `gorm:"index;not null" json:"serial_begin"`     // 区间起始序列号（含）
	SerialEnd   uint      `gorm:"uniqueIndex;not null" json:"serial_end"` // 区间结束序列号（含）
	TotalCount  int       `gorm:"not null" json:"total_count"`            // 批次数量
	CreatedAt   time.Time `gorm:"index" json:"created_at"`                // 创建时间
}

// TableName 指定表名
func (ExchangeCodeBatch) TableName() string {
	return "exchange_code_batches"
}

// Contains 判断序列号是否落在本批次区间内
func (b *ExchangeCodeBatch) Contains(serial uint) bool {
	return b != nil && serial >= b.SerialBegin && serial <= b.SerialEnd
}
