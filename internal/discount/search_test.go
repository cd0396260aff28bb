package discount

import (
	"context"
	"testing"

	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/models"
)

func percentCoupon(id uint, percent int64) *models.Coupon {
	return &models.Coupon{ID: id, DiscountType: constants.DiscountTypePercent, Value: percent}
}

func fixedCoupon(id uint, value int64) *models.Coupon {
	return &models.Coupon{ID: id, DiscountType: constants.DiscountTypeFixed, Value: value}
}

func scopedFixedCoupon(id uint, value int64, categoryIDs ...uint) *models.Coupon {
	c := fixedCoupon(id, value)
	c.Specific = true
	for _, categoryID := range categoryIDs {
		c.Scopes = append(c.Scopes, models.CouponScope{CouponID: id, CategoryID: categoryID})
	}
	return c
}

func solutionByKey(t *testing.T, solutions []*Solution, key string) *Solution {
	t.Helper()
	for _, s := range solutions {
		if setKey(s.CouponIDs) == key {
			return s
		}
	}
	t.Fatalf("no solution with coupon set %s", key)
	return nil
}

func TestFindSolutionsTwoCoupons(t *testing.T) {
	lines := []Line{
		{ID: 1, CategoryID: 10, Price: 100},
		{ID: 2, CategoryID: 20, Price: 50},
	}
	coupons := []*models.Coupon{
		percentCoupon(1, 20),
		scopedFixedCoupon(2, 10, 10),
	}

	solutions, err := NewEngine(4).FindSolutions(context.Background(), coupons, lines)
	if err != nil {
		t.Fatalf("FindSolutions error = %v", err)
	}
	if len(solutions) != 3 {
		t.Fatalf("got %d solutions, want 3", len(solutions))
	}

	// 双券方案最优：先用比例券（150 的 20% = 30），再对剩余 80 用立减券
	best := solutions[0]
	if setKey(best.CouponIDs) != "1,2" || best.Discount != 40 {
		t.Fatalf("best solution = %v discount %d, want set 1,2 discount 40", best.CouponIDs, best.Discount)
	}
	if s := solutionByKey(t, solutions, "1"); s.Discount != 30 {
		t.Fatalf("percent-only discount = %d, want 30", s.Discount)
	}
	if s := solutionByKey(t, solutions, "2"); s.Discount != 10 {
		t.Fatalf("fixed-only discount = %d, want 10", s.Discount)
	}

	for _, s := range solutions {
		assertSolutionExact(t, s, lines)
	}
}

func TestEvaluateCombinationOrderSensitivity(t *testing.T) {
	lines := []Line{
		{ID: 1, CategoryID: 10, Price: 100},
		{ID: 2, CategoryID: 20, Price: 50},
	}
	coupons := []*models.Coupon{
		percentCoupon(1, 20),
		scopedFixedCoupon(2, 10, 10),
	}
	engine := NewEngine(1)

	// 先立减后比例：行 1 剩 90，比例券对 140 计 28，按比例分摊 18/10，余数给行 2
	s, err := engine.EvaluateCombination(coupons, lines, []uint{2, 1})
	if err != nil {
		t.Fatalf("EvaluateCombination error = %v", err)
	}
	if s == nil || s.Discount != 38 {
		t.Fatalf("combo [2,1] discount = %v, want 38", s)
	}
	if s.Detail[1] != 28 || s.Detail[2] != 10 {
		t.Fatalf("combo [2,1] detail = %v, want map[1:28 2:10]", s.Detail)
	}

	s, err = engine.EvaluateCombination(coupons, lines, []uint{1, 2})
	if err != nil {
		t.Fatalf("EvaluateCombination error = %v", err)
	}
	if s == nil || s.Discount != 40 {
		t.Fatalf("combo [1,2] discount = %v, want 40", s)
	}
	assertSolutionExact(t, s, lines)
}

func TestEarlierCouponDisablesLater(t *testing.T) {
	lines := []Line{{ID: 1, CategoryID: 10, Price: 60}}
	coupons := []*models.Coupon{fixedCoupon(1, 60), fixedCoupon(2, 30)}

	// 第一张券吃掉全部金额后，第二张券对剩余 0 元不可用
	s, err := NewEngine(1).EvaluateCombination(coupons, lines, []uint{1, 2})
	if err != nil {
		t.Fatalf("EvaluateCombination error = %v", err)
	}
	if s == nil || s.Discount != 60 {
		t.Fatalf("discount = %v, want 60", s)
	}
	if len(s.CouponIDs) != 1 || s.CouponIDs[0] != 1 {
		t.Fatalf("applied coupons = %v, want [1]", s.CouponIDs)
	}
}

func TestDominatedSolutionDropped(t *testing.T) {
	lines := []Line{{ID: 1, CategoryID: 10, Price: 60}}
	coupons := []*models.Coupon{fixedCoupon(1, 60), fixedCoupon(2, 30)}

	solutions, err := NewEngine(2).FindSolutions(context.Background(), coupons, lines)
	if err != nil {
		t.Fatalf("FindSolutions error = %v", err)
	}
	// 双券组合优惠 60 与单券 1 相同但多用一张券，应被剔除
	if len(solutions) != 2 {
		t.Fatalf("got %d solutions, want 2: %v", len(solutions), solutions)
	}
	if setKey(solutions[0].CouponIDs) != "1" || solutions[0].Discount != 60 {
		t.Fatalf("best = %v discount %d, want set 1 discount 60", solutions[0].CouponIDs, solutions[0].Discount)
	}
	if setKey(solutions[1].CouponIDs) != "2" || solutions[1].Discount != 30 {
		t.Fatalf("second = %v discount %d, want set 2 discount 30", solutions[1].CouponIDs, solutions[1].Discount)
	}
}

func TestScopeWithoutMatchingLines(t *testing.T) {
	lines := []Line{{ID: 1, CategoryID: 20, Price: 100}}
	coupons := []*models.Coupon{scopedFixedCoupon(1, 10, 10)}

	solutions, err := NewEngine(1).FindSolutions(context.Background(), coupons, lines)
	if err != nil {
		t.Fatalf("FindSolutions error = %v", err)
	}
	if len(solutions) != 0 {
		t.Fatalf("got %d solutions, want 0", len(solutions))
	}
}

func TestScopedThresholdRecheck(t *testing.T) {
	lines := []Line{
		{ID: 1, CategoryID: 10, Price: 30},
		{ID: 2, CategoryID: 20, Price: 200},
	}
	coupon := &models.Coupon{
		ID:              1,
		DiscountType:    constants.DiscountTypeThreshold,
		Value:           20,
		ThresholdAmount: 100,
		Specific:        true,
		Scopes:          []models.CouponScope{{CouponID: 1, CategoryID: 10}},
	}

	// 全单 230 过门槛，但范围内小计只有 30，复查后应被丢弃
	solutions, err := NewEngine(1).FindSolutions(context.Background(), []*models.Coupon{coupon}, lines)
	if err != nil {
		t.Fatalf("FindSolutions error = %v", err)
	}
	if len(solutions) != 0 {
		t.Fatalf("got %d solutions, want 0", len(solutions))
	}
}

func TestAllocationAbsorbsRoundingOverflow(t *testing.T) {
	lines := []Line{
		{ID: 1, CategoryID: 10, Price: 1},
		{ID: 2, CategoryID: 10, Price: 1},
		{ID: 3, CategoryID: 10, Price: 1},
		{ID: 4, CategoryID: 10, Price: 97},
	}
	coupon := &models.Coupon{
		ID:              1,
		DiscountType:    constants.DiscountTypeThreshold,
		Value:           99,
		ThresholdAmount: 100,
	}

	s, err := NewEngine(1).EvaluateCombination([]*models.Coupon{coupon}, lines, []uint{1})
	if err != nil {
		t.Fatalf("EvaluateCombination error = %v", err)
	}
	if s == nil || s.Discount != 99 {
		t.Fatalf("discount = %v, want 99", s)
	}
	assertSolutionExact(t, s, lines)
}

func assertSolutionExact(t *testing.T, s *Solution, lines []Line) {
	t.Helper()
	price := make(map[uint]int64, len(lines))
	for _, line := range lines {
		price[line.ID] = line.Price
	}
	var sum int64
	for lineID, d := range s.Detail {
		if d < 0 {
			t.Fatalf("line %d negative discount %d", lineID, d)
		}
		if d > price[lineID] {
			t.Fatalf("line %d discount %d exceeds price %d", lineID, d, price[lineID])
		}
		sum += d
	}
	if sum != s.Discount {
		t.Fatalf("detail sum = %d, want %d", sum, s.Discount)
	}
}
