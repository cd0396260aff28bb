package discount

import (
	"fmt"

	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/models"

	"github.com/shopspring/decimal"
)

// Strategy 折扣类型的计算策略
// 金额一律使用整数分，CanUse 与 Compute 的入参为适用范围内的小计金额
type Strategy interface {
	// CanUse 判断小计金额是否满足使用条件
	CanUse(subtotal int64) bool
	// Compute 计算优惠金额，返回值不超过小计金额
	Compute(subtotal int64) int64
}

// StrategyFor 按折扣类型选择计算策略
func StrategyFor(coupon *models.Coupon) (Strategy, error) {
	switch coupon.DiscountType {
	case constants.DiscountTypeFixed:
		return fixedStrategy{value: coupon.Value}, nil
	case constants.DiscountTypeThreshold:
		return thresholdStrategy{value: coupon.Value, threshold: coupon.ThresholdAmount}, nil
	case constants.DiscountTypePercent:
		return percentStrategy{
			percent:     coupon.Value,
			threshold:   coupon.ThresholdAmount,
			maxDiscount: coupon.MaxDiscount,
		}, nil
	default:
		return nil, fmt.Errorf("未知的折扣类型: %s", coupon.DiscountType)
	}
}

// fixedStrategy 无门槛立减
type fixedStrategy struct {
	value int64
}

func (s fixedStrategy) CanUse(subtotal int64) bool {
	return subtotal > 0 && s.value > 0
}

func (s fixedStrategy) Compute(subtotal int64) int64 {
	if subtotal < s.value {
		return subtotal
	}
	return s.value
}

// thresholdStrategy 满减
type thresholdStrategy struct {
	value     int64
	threshold int64
}

func (s thresholdStrategy) CanUse(subtotal int64) bool {
	return subtotal > 0 && s.value > 0 && subtotal >= s.threshold
}

func (s thresholdStrategy) Compute(subtotal int64) int64 {
	if subtotal < s.value {
		return subtotal
	}
	return s.value
}

// percentStrategy 按比例折扣，percent 为优惠百分比（20 表示优惠 20%）
type percentStrategy struct {
	percent     int64
	threshold   int64
	maxDiscount int64
}

func (s percentStrategy) CanUse(subtotal int64) bool {
	return subtotal > 0 && s.percent > 0 && s.percent < 100 && subtotal >= s.threshold
}

func (s percentStrategy) Compute(subtotal int64) int64 {
	// 分值计算用 decimal，向下取整到分
	d := decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromInt(s.percent)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
	if s.maxDiscount > 0 && d > s.maxDiscount {
		d = s.maxDiscount
	}
	if d > subtotal {
		d = subtotal
	}
	return d
}
