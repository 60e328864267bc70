package launch

import "sort"

// SortHooks orders hooks for execution: ascending Order, hooks without an
// order after all ordered ones. Equal orders, including two nil orders, are
// broken by qualified name so the sequence never depends on directory
// listing order.
func SortHooks(hooks []BoundHook) []BoundHook {
	sorted := append([]BoundHook(nil), hooks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return hookLess(sorted[i], sorted[j])
	})
	return sorted
}

func hookLess(a, b BoundHook) bool {
	oa, ob := a.Hook.Order(), b.Hook.Order()
	switch {
	case oa != nil && ob == nil:
		return true
	case oa == nil && ob != nil:
		return false
	case oa != nil && ob != nil && *oa != *ob:
		return *oa < *ob
	}
	return a.QualifiedName() < b.QualifiedName()
}
