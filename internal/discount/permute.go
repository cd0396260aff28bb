package discount

// Combinations 枚举候选优惠券的所有用券组合
// 结果包含每张券的单券组合，以及所有两张以上子集的全排列
// 组合数量为 Σ C(n,k)·k! (k≥2) + n，候选券通常不超过个位数，穷举可接受
func Combinations(ids []uint) [][]uint {
	var result [][]uint
	for _, id := range ids {
		result = append(result, []uint{id})
	}
	n := len(ids)
	if n < 2 {
		return result
	}
	// 按位枚举子集，多于一张的子集再做全排列
	for mask := 1; mask < 1<<n; mask++ {
		subset := make([]uint, 0, n)
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, ids[i])
			}
		}
		if len(subset) < 2 {
			continue
		}
		result = append(result, permute(subset)...)
	}
	return result
}

// permute 返回切片的全排列
func permute(items []uint) [][]uint {
	var result [][]uint
	current := make([]uint, len(items))
	copy(current, items)
	var backtrack func(depth int)
	backtrack = func(depth int) {
		if depth == len(current) {
			ordering := make([]uint, len(current))
			copy(ordering, current)
			result = append(result, ordering)
			return
		}
		for i := depth; i < len(current); i++ {
			current[depth], current[i] = current[i], current[depth]
			backtrack(depth + 1)
			current[depth], current[i] = current[i], current[depth]
		}
	}
	backtrack(0)
	return result
}
