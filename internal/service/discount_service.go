package service

import (
	"context"
	"time"

	"github.com/promo-next/internal/discount"
	"github.com/promo-next/internal/models"
	"github.com/promo-next/internal/repository"
)

// DiscountService 优惠方案服务
type DiscountService struct {
	couponRepo     repository.CouponRepository
	userCouponRepo repository.UserCouponRepository
	engine         *discount.Engine
}

// NewDiscountService 创建优惠方案服务实例
func NewDiscountService(
	couponRepo repository.CouponRepository,
	userCouponRepo repository.UserCouponRepository,
	engine *discount.Engine,
) *DiscountService {
	return &DiscountService{
		couponRepo:     couponRepo,
		userCouponRepo: userCouponRepo,
		engine:         engine,
	}
}

// usableCouponRules 取用户当前可用券对应的券规则，按券ID去重
func (s *DiscountService) usableCouponRules(userID uint, now time.Time) ([]*models.Coupon, error) {
	userCoupons, err := s.userCouponRepo.ListUsableByUser(userID, now)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(userCoupons))
	seen := make(map[uint]bool, len(userCoupons))
	for _, uc := range userCoupons {
		if !seen[uc.CouponID] {
			seen[uc.CouponID] = true
			ids = append(ids, uc.CouponID)
		}
	}
	coupons, err := s.couponRepo.ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	rules := make([]*models.Coupon, 0, len(coupons))
	for i := range coupons {
		rules = append(rules, &coupons[i])
	}
	return rules, nil
}

// FindDiscountSolutions 为订单行寻找最优用券方案，按优惠金额降序
func (s *DiscountService) FindDiscountSolutions(ctx context.Context, userID uint, lines []discount.Line) ([]*discount.Solution, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	rules, err := s.usableCouponRules(userID, time.Now())
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return s.engine.FindSolutions(ctx, rules, lines)
}

// EvaluateSolution 试算调用方指定的用券组合（下单结算路径）
// 组合中含用户不持有或不可用的券，或没有任何券生效时返回 ErrSolutionIneligible
func (s *DiscountService) EvaluateSolution(ctx context.Context, userID uint, couponIDs []uint, lines []discount.Line) (*discount.Solution, error) {
	if len(couponIDs) == 0 || len(lines) == 0 {
		return nil, ErrSolutionIneligible
	}
	rules, err := s.usableCouponRules(userID, time.Now())
	if err != nil {
		return nil, err
	}
	held := make(map[uint]bool, len(rules))
	for _, rule := range rules {
		held[rule.ID] = true
	}
	for _, id := range couponIDs {
		if !held[id] {
			return nil, ErrSolutionIneligible
		}
	}

	solution, err := s.engine.EvaluateCombination(rules, lines, couponIDs)
	if err != nil {
		return nil, err
	}
	if solution == nil {
		return nil, ErrSolutionIneligible
	}
	return solution, nil
}
