package allocation

import (
	"fmt"
	"sort"
)

// ProportionalAllocator splits the tone budget in proportion to candidate
// weights. Shares are rounded down to a tone class, one leftover-driven
// upgrade is applied, and the classes are then placed on the channel.
type ProportionalAllocator struct{}

func (a *ProportionalAllocator) Policy() Policy {
	return Proportional
}

func (a *ProportionalAllocator) Allocate(req Request) (*Plan, error) {
	l, err := prepare(req)
	if err != nil {
		return nil, err
	}
	n := len(req.Weights)
	weights := req.Weights
	var sum uint64
	for _, w := range weights {
		sum += w
	}
	if sum == 0 {
		weights = make([]uint64, n)
		for i := range weights {
			weights[i] = 1
		}
		sum = uint64(n)
	}

	order := rankByWeight(weights)
	p := &packing{
		layout:    l,
		class:     make([]ToneClass, n),
		mapped:    make([]bool, n),
		counts:    make(map[ToneClass]int),
		remaining: l.total,
	}
	plan := newPlan(l, Proportional)

	limit := req.limit(l)
	taken := 0
	full := false
	for _, i := range order {
		if full || taken >= limit {
			plan.truncate(i)
			continue
		}
		share := int(float64(weights[i]) / float64(sum) * float64(l.total))
		c := l.classForShare(share)
		if p.counts[c] >= l.capacity(c) || c.Cost() > p.remaining {
			plan.truncate(i)
			continue
		}
		p.take(i, c)
		taken++
		if c == l.full {
			full = true
		}
	}

	if !full {
		p.correct(order)
	}
	p.place(plan, order)
	plan.finalize()
	return plan, nil
}

// rankByWeight orders candidate positions by descending weight, keeping the
// given order among equal weights.
func rankByWeight(weights []uint64) []int {
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return weights[order[a]] > weights[order[b]]
	})
	return order
}

type packing struct {
	layout    *layout
	class     []ToneClass
	mapped    []bool
	counts    map[ToneClass]int
	remaining int
}

func (p *packing) take(i int, c ToneClass) {
	p.class[i] = c
	p.mapped[i] = true
	p.counts[c]++
	p.remaining -= c.Cost()
}

// correct applies at most one upgrade. Each candidate tries the largest class
// whose extra cost fits the leftover budget; a target at capacity skips the
// candidate rather than trying a smaller target.
func (p *packing) correct(order []int) {
	for _, i := range order {
		if !p.mapped[i] {
			continue
		}
		cur := p.class[i]
		target, ok := p.upgradeTarget(cur)
		if !ok {
			continue
		}
		if p.counts[target] >= p.layout.capacity(target) {
			continue
		}
		p.counts[cur]--
		p.counts[target]++
		p.remaining -= target.Cost() - cur.Cost()
		p.class[i] = target
		return
	}
}

func (p *packing) upgradeTarget(cur ToneClass) (ToneClass, bool) {
	classes := p.layout.classes()
	for k := len(classes) - 1; k >= 0; k-- {
		t := classes[k]
		if t <= cur {
			break
		}
		if t.Cost()-cur.Cost() <= p.remaining {
			return t, true
		}
	}
	return 0, false
}

// place walks a cursor over 26-tone indices, largest classes first. Reserved
// indices the cursor steps over are handed to 26-tone RUs before the cursor is.
func (p *packing) place(plan *Plan, order []int) {
	l := p.layout
	seq := make([]int, 0, len(order))
	for _, i := range order {
		if p.mapped[i] {
			seq = append(seq, i)
		}
	}
	sort.SliceStable(seq, func(a, b int) bool {
		return p.class[seq[a]] > p.class[seq[b]]
	})

	cursor := 1
	var spare []int
	for _, i := range seq {
		c := p.class[i]
		switch {
		case c == l.full:
			plan.assign(i, RU{Class: c, Index: 1})
			cursor = l.total + 1
		case c == RU26:
			if len(spare) > 0 {
				plan.assign(i, RU{Class: RU26, Index: spare[0]})
				spare = spare[1:]
				continue
			}
			if cursor > l.total {
				plan.truncate(i)
				continue
			}
			plan.assign(i, RU{Class: RU26, Index: cursor})
			cursor++
		default:
			for cursor <= l.total && l.isReserved(cursor) {
				spare = append(spare, cursor)
				cursor++
			}
			if cursor+c.Cost()-1 > l.total {
				plan.truncate(i)
				continue
			}
			slot, ok := l.slotAt(c, cursor)
			if !ok {
				panic(fmt.Sprintf("allocation: no %s slot starts at 26-tone index %d on %s", c, cursor, l.width))
			}
			plan.assign(i, RU{Class: c, Index: slot})
			cursor += c.Cost()
		}
	}
}
