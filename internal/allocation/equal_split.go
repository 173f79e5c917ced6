package allocation

// EqualSplitAllocator gives every candidate an RU of the same class: the
// largest class with at least as many RUs as there are candidates (capped by
// Request.MaxRUs). 26-tone positions the equal RUs leave free can be handed to
// candidates beyond the cap when Request.UseCentral26 is set.
type EqualSplitAllocator struct{}

func (a *EqualSplitAllocator) Policy() Policy {
	return EqualSplit
}

func (a *EqualSplitAllocator) Allocate(req Request) (*Plan, error) {
	l, err := prepare(req)
	if err != nil {
		return nil, err
	}
	n := len(req.Weights)
	want := n
	if limit := req.limit(l); want > limit {
		want = limit
	}
	class := l.equalClass(want)

	plan := newPlan(l, EqualSplit)
	for i := 0; i < want; i++ {
		plan.assign(i, RU{Class: class, Index: i + 1})
	}

	next := want
	if req.UseCentral26 && class != RU26 {
		for _, idx := range l.free26(class, want) {
			if next >= n {
				break
			}
			plan.assign(next, RU{Class: RU26, Index: idx})
			next++
		}
	}
	for i := next; i < n; i++ {
		plan.truncate(i)
	}
	plan.finalize()
	return plan, nil
}

// equalClass returns the largest class with at least n RUs on the width.
func (l *layout) equalClass(n int) ToneClass {
	class := RU26
	for _, c := range l.classes() {
		if l.capacity(c) >= n {
			class = c
		}
	}
	return class
}

// free26 returns the 26-tone indices left uncovered when the first n slots
// of class are taken.
func (l *layout) free26(class ToneClass, n int) []int {
	used := make([]bool, l.total+1)
	for i := 0; i < n; i++ {
		sp := l.slots[class][i]
		for k := sp.first; k <= sp.last; k++ {
			used[k] = true
		}
	}
	var free []int
	for idx := 1; idx <= l.total; idx++ {
		if !used[idx] {
			free = append(free, idx)
		}
	}
	return free
}

// EqualSplitRU returns the RU the i-th of n candidates would get under
// equal-split, ignoring leftover 26-tone RUs. It is used to size tentative
// candidates before the final allocation.
func EqualSplitRU(req Request, i int) (RU, bool, error) {
	l, err := layoutFor(req.Width)
	if err != nil {
		return RU{}, false, err
	}
	n := len(req.Weights)
	if limit := req.limit(l); n > limit {
		n = limit
	}
	if i < 0 || i >= n {
		return RU{}, false, nil
	}
	return RU{Class: l.equalClass(n), Index: i + 1}, true, nil
}
