package models

// CouponScope 优惠券限定分类
type CouponScope struct {
	ID         uint `gorm:"primarykey" json:"id"`              // 主键
	CouponID   uint `gorm:"index;not null" json:"coupon_id"`   // 优惠券ID
	CategoryID uint `gorm:"index;not null" json:"category_id"` // 分类ID
}

// TableName 指定表名
func (CouponScope) TableName() string {
	return "coupon_scopes"
}
