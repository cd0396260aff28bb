package repository

// CouponListFilter 查询优惠券列表的过滤条件
type CouponListFilter struct {
	Page         int
	PageSize     int
	Status       string
	DiscountType string
	ObtainWay    string
	Name         string
}

// UserCouponListFilter 查询用户券列表的过滤条件
type UserCouponListFilter struct {
	Page     int
	PageSize int
	UserID   uint
	CouponID uint
	Status   string
}

// ExchangeCodeListFilter 查询兑换码列表的过滤条件
type ExchangeCodeListFilter struct {
	Page     int
	PageSize int
	CouponID uint
	BatchID  uint
	Status   string
	UserID   uint
}
