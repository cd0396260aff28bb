package discount

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/promo-next/internal/models"

	"golang.org/x/sync/errgroup"
)

// Line 订单行，价格为整数分
type Line struct {
	ID         uint  `json:"id"`
	CategoryID uint  `json:"category_id"`
	Price      int64 `json:"price"`
}

// Solution 一个用券方案
// Detail 为行号到优惠金额的映射，各行之和等于 Discount
type Solution struct {
	CouponIDs []uint         `json:"coupon_ids"`
	Discount  int64          `json:"discount"`
	Detail    map[uint]int64 `json:"detail"`
}

// Engine 优惠方案求解器，无状态，可并发使用
type Engine struct {
	workers int
}

// NewEngine 创建求解器，workers 为并行求解的协程数
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{workers: workers}
}

// FindSolutions 穷举所有用券组合并返回最优方案列表，按优惠金额降序
// 同一组券只保留优惠最高的用券顺序；优惠相同时用券更少的方案胜出
func (e *Engine) FindSolutions(ctx context.Context, coupons []*models.Coupon, lines []Line) ([]*Solution, error) {
	candidates, eligible, err := filterCandidates(coupons, lines)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	byID := make(map[uint]*models.Coupon, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	combos := Combinations(ids)

	// 各组合之间无共享可变状态，仅汇总需要加锁
	var mu sync.Mutex
	var solutions []*Solution
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, combo := range combos {
		combo := combo
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			solution, err := evaluate(byID, eligible, lines, combo)
			if err != nil {
				return err
			}
			if solution == nil {
				return nil
			}
			mu.Lock()
			solutions = append(solutions, solution)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return selectBest(solutions), nil
}

// EvaluateCombination 按调用方指定的顺序试算一个用券组合（下单结算路径）
// 组合中不可用的券被跳过；没有任何券生效时返回 nil
func (e *Engine) EvaluateCombination(coupons []*models.Coupon, lines []Line, combo []uint) (*Solution, error) {
	byID := make(map[uint]*models.Coupon, len(coupons))
	for _, c := range coupons {
		byID[c.ID] = c
	}
	eligible := make(map[uint][]Line, len(coupons))
	for _, c := range coupons {
		scoped := scopedLines(c, lines)
		if len(scoped) > 0 {
			eligible[c.ID] = scoped
		}
	}
	return evaluate(byID, eligible, lines, combo)
}

// filterCandidates 执行粗筛与范围筛选，返回幸存的券及各自的适用行
func filterCandidates(coupons []*models.Coupon, lines []Line) ([]*models.Coupon, map[uint][]Line, error) {
	var total int64
	for _, line := range lines {
		total += line.Price
	}

	var candidates []*models.Coupon
	eligible := make(map[uint][]Line)
	for _, coupon := range coupons {
		strategy, err := StrategyFor(coupon)
		if err != nil {
			return nil, nil, err
		}
		// 粗筛：先对全单金额做一次门槛判断
		if !strategy.CanUse(total) {
			continue
		}
		scoped := scopedLines(coupon, lines)
		if len(scoped) == 0 {
			continue
		}
		// 限定范围的券要对范围内小计重新判断门槛
		if coupon.Specific {
			var subtotal int64
			for _, line := range scoped {
				subtotal += line.Price
			}
			if !strategy.CanUse(subtotal) {
				continue
			}
		}
		candidates = append(candidates, coupon)
		eligible[coupon.ID] = scoped
	}
	return candidates, eligible, nil
}

// scopedLines 返回券适用的订单行，行号升序
func scopedLines(coupon *models.Coupon, lines []Line) []Line {
	scoped := make([]Line, 0, len(lines))
	if !coupon.Specific {
		scoped = append(scoped, lines...)
	} else {
		inScope := make(map[uint]bool, len(coupon.Scopes))
		for _, s := range coupon.Scopes {
			inScope[s.CategoryID] = true
		}
		for _, line := range lines {
			if inScope[line.CategoryID] {
				scoped = append(scoped, line)
			}
		}
	}
	sort.Slice(scoped, func(i, j int) bool { return scoped[i].ID < scoped[j].ID })
	return scoped
}

// evaluate 按顺序将组合中的券应用到逐行剩余金额上
// 每张券针对其适用行的剩余小计重新判断门槛，先用的券可能让后面的券失效
func evaluate(byID map[uint]*models.Coupon, eligible map[uint][]Line, lines []Line, combo []uint) (*Solution, error) {
	remaining := make(map[uint]int64, len(lines))
	for _, line := range lines {
		remaining[line.ID] = line.Price
	}

	applied := make([]uint, 0, len(combo))
	detail := make(map[uint]int64, len(lines))
	var totalDiscount int64

	for _, couponID := range combo {
		coupon, ok := byID[couponID]
		if !ok {
			continue
		}
		scoped, ok := eligible[couponID]
		if !ok {
			continue
		}
		strategy, err := StrategyFor(coupon)
		if err != nil {
			return nil, err
		}
		var subtotal int64
		for _, line := range scoped {
			subtotal += remaining[line.ID]
		}
		if !strategy.CanUse(subtotal) {
			continue
		}
		d := strategy.Compute(subtotal)
		if d <= 0 {
			continue
		}
		allocate(remaining, detail, scoped, subtotal, d)
		applied = append(applied, couponID)
		totalDiscount += d
	}

	if len(applied) == 0 {
		return nil, nil
	}
	return &Solution{CouponIDs: applied, Discount: totalDiscount, Detail: detail}, nil
}

// allocate 将一张券的优惠按剩余金额比例分摊到适用行
// 取整余数给行号最大的适用行；该行剩余不足时向前回填，保证分摊之和恰等于优惠金额
func allocate(remaining, detail map[uint]int64, scoped []Line, subtotal, discount int64) {
	var allocated int64
	for i, line := range scoped {
		var share int64
		if i == len(scoped)-1 {
			share = discount - allocated
		} else {
			share = remaining[line.ID] * discount / subtotal
		}
		if share > remaining[line.ID] {
			share = remaining[line.ID]
		}
		remaining[line.ID] -= share
		detail[line.ID] += share
		allocated += share
	}
	// discount 不超过适用行剩余小计，剩余部分一定能被回填吸收
	leftover := discount - allocated
	for i := len(scoped) - 1; i >= 0 && leftover > 0; i-- {
		line := scoped[i]
		share := leftover
		if share > remaining[line.ID] {
			share = remaining[line.ID]
		}
		remaining[line.ID] -= share
		detail[line.ID] += share
		leftover -= share
	}
}

// selectBest 两段式择优
// 先按券集合取最优顺序，再剔除可被「更少的券拿到不少于它的优惠」替代的方案
func selectBest(solutions []*Solution) []*Solution {
	if len(solutions) == 0 {
		return nil
	}
	bestPerSet := make(map[string]*Solution)
	for _, s := range solutions {
		key := setKey(s.CouponIDs)
		if existing, ok := bestPerSet[key]; !ok || s.Discount > existing.Discount {
			bestPerSet[key] = s
		}
	}

	grouped := make([]*Solution, 0, len(bestPerSet))
	for _, s := range bestPerSet {
		grouped = append(grouped, s)
	}

	var result []*Solution
	for _, s := range grouped {
		dominated := false
		for _, other := range grouped {
			if other == s {
				continue
			}
			if other.Discount >= s.Discount && len(other.CouponIDs) < len(s.CouponIDs) {
				dominated = true
				break
			}
		}
		if !dominated {
			result = append(result, s)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Discount != result[j].Discount {
			return result[i].Discount > result[j].Discount
		}
		if len(result[i].CouponIDs) != len(result[j].CouponIDs) {
			return len(result[i].CouponIDs) < len(result[j].CouponIDs)
		}
		return setKey(result[i].CouponIDs) < setKey(result[j].CouponIDs)
	})
	return result
}

// setKey 生成与用券顺序无关的集合标识
func setKey(ids []uint) string {
	sorted := make([]uint, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
