package constants

// 优惠券状态常量
const (
	CouponStatusDraft    = "draft"    // 待发放
	CouponStatusUnIssue  = "un_issue" // 未开始
	CouponStatusIssuing  = "issuing"  // 发放中
	CouponStatusPause    = "pause"    // 暂停发放
	CouponStatusFinished = "finished" // 发放结束
)

// 优惠券折扣类型常量
const (
	DiscountTypeFixed     = "fixed"     // 固定金额
	DiscountTypePercent   = "percent"   // 按比例折扣
	DiscountTypeThreshold = "threshold" // 满减
)

// 优惠券获取方式常量
const (
	ObtainWayPublic = "public" // 手动领取
	ObtainWayCode   = "code"   // 兑换码兑换
)

// 用户券状态常量
const (
	UserCouponStatusUnused  = "unused"
	UserCouponStatusUsed    = "used"
	UserCouponStatusExpired = "expired"
)

// 兑换码状态常量
const (
	ExchangeCodeStatusUnused = "unused"
	ExchangeCodeStatusUsed   = "used"
)

// Redis 键名常量（拼接在配置的前缀之后）
const (
	CouponCacheKeyPrefix    = "coupon:"       // 优惠券发放元信息 Hash
	CouponUserKeySuffix     = ":users"        // 每人已领数量 Hash
	ExchangeCodeBitmapKey   = "code:bitmap"   // 兑换码已兑换位图
	ExchangeCodeRangeKey    = "code:ranges"   // 兑换码序列号区间索引 ZSET
	ExchangeCodeSerialKey   = "code:serial"   // 兑换码序列号发号器
	ClaimLockKeyPrefix      = "lock:claim:"   // 领券锁
	SettleLockKeyPrefix     = "lock:settle:"  // 落库锁
	ClaimRateLimitKeyPrefix = "rate:claim"    // 领券限流
	SolutionRateLimitPrefix = "rate:solution" // 算价限流
)

// 异步任务类型常量
const (
	TaskCouponClaimConfirmed = "promo:coupon:claim"
	TaskExchangeCodeGenerate = "promo:code:generate"
)

// QueueDefault 默认队列名称
const QueueDefault = "default"
