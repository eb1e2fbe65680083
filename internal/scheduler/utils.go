package scheduler

import "slices"

// uniqueIDs 保持首次出现的顺序
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// sortedIDs 用于加锁，所有事务按相同的顺序加锁以避免死锁
func sortedIDs(ids []int64) []int64 {
	out := uniqueIDs(ids)
	slices.Sort(out)
	return out
}

func duplicates(ids []int64) []int64 {
	count := make(map[int64]int, len(ids))
	out := []int64{}
	for _, id := range ids {
		count[id]++
		if count[id] == 2 {
			out = append(out, id)
		}
	}
	return out
}
