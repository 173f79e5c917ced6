package allocation

import (
	"fmt"

	"mu-scheduler/internal/wifi"
)

// span is an inclusive range of 26-tone indices covered by one RU.
type span struct {
	first, last int
}

// layout holds the static RU map of one channel width.
type layout struct {
	width wifi.ChannelWidth
	total int
	full  ToneClass
	// 26-tone indices that no 52/106-tone RU covers
	reserved map[int]bool
	slots    map[ToneClass][]span
	// first 26-tone index of a slot -> 1-based slot number
	slotByStart map[ToneClass]map[int]int
}

var (
	spans20 = map[ToneClass][]span{
		RU52:  {{1, 2}, {3, 4}, {6, 7}, {8, 9}},
		RU106: {{1, 4}, {6, 9}},
	}
	spans40 = map[ToneClass][]span{
		RU52:  {{1, 2}, {3, 4}, {6, 7}, {8, 9}, {10, 11}, {12, 13}, {15, 16}, {17, 18}},
		RU106: {{1, 4}, {6, 9}, {10, 13}, {15, 18}},
		RU242: {{1, 9}, {10, 18}},
	}
	spans80 = map[ToneClass][]span{
		RU52: {
			{1, 2}, {3, 4}, {6, 7}, {8, 9}, {10, 11}, {12, 13}, {15, 16}, {17, 18},
			{20, 21}, {22, 23}, {25, 26}, {27, 28}, {29, 30}, {31, 32}, {34, 35}, {36, 37},
		},
		RU106: {{1, 4}, {6, 9}, {10, 13}, {15, 18}, {20, 23}, {25, 28}, {29, 32}, {34, 37}},
		RU242: {{1, 9}, {10, 18}, {20, 28}, {29, 37}},
		RU484: {{1, 18}, {20, 37}},
	}

	reserved20 = []int{5}
	reserved40 = []int{5, 14}
	reserved80 = []int{5, 14, 19, 24, 33}
)

var layouts = map[wifi.ChannelWidth]*layout{}

func init() {
	spans160 := mirror(spans80, 37)
	spans160[RU996] = []span{{1, 37}, {38, 74}}
	reserved160 := append(append([]int{}, reserved80...), shift(reserved80, 37)...)

	for _, l := range []*layout{
		newLayout(wifi.Width20, RU242, 9, reserved20, spans20),
		newLayout(wifi.Width40, RU484, 18, reserved40, spans40),
		newLayout(wifi.Width80, RU996, 37, reserved80, spans80),
		newLayout(wifi.Width160, RU2x996, 74, reserved160, spans160),
	} {
		layouts[l.width] = l
	}
}

func newLayout(width wifi.ChannelWidth, full ToneClass, total int, reserved []int, spans map[ToneClass][]span) *layout {
	l := &layout{
		width:       width,
		total:       total,
		full:        full,
		reserved:    make(map[int]bool, len(reserved)),
		slots:       make(map[ToneClass][]span, len(spans)+2),
		slotByStart: make(map[ToneClass]map[int]int),
	}
	for _, r := range reserved {
		l.reserved[r] = true
	}
	for c, s := range spans {
		l.slots[c] = s
	}
	single := make([]span, total)
	for i := range single {
		single[i] = span{i + 1, i + 1}
	}
	l.slots[RU26] = single
	l.slots[full] = []span{{1, total}}

	for c, s := range l.slots {
		byStart := make(map[int]int, len(s))
		for i, sp := range s {
			byStart[sp.first] = i + 1
		}
		l.slotByStart[c] = byStart
	}
	return l
}

func mirror(spans map[ToneClass][]span, offset int) map[ToneClass][]span {
	out := make(map[ToneClass][]span, len(spans))
	for c, s := range spans {
		doubled := make([]span, 0, 2*len(s))
		doubled = append(doubled, s...)
		for _, sp := range s {
			doubled = append(doubled, span{sp.first + offset, sp.last + offset})
		}
		out[c] = doubled
	}
	return out
}

func shift(indices []int, offset int) []int {
	out := make([]int, len(indices))
	for i, v := range indices {
		out[i] = v + offset
	}
	return out
}

func layoutFor(width wifi.ChannelWidth) (*layout, error) {
	l, ok := layouts[width]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedWidth, width)
	}
	return l, nil
}

// classes returns the classes usable on the width, smallest first.
func (l *layout) classes() []ToneClass {
	out := make([]ToneClass, 0, len(ToneClasses))
	for _, c := range ToneClasses {
		if c > l.full {
			break
		}
		out = append(out, c)
	}
	return out
}

func (l *layout) capacity(c ToneClass) int {
	return len(l.slots[c])
}

func (l *layout) isReserved(index int) bool {
	return l.reserved[index]
}

func (l *layout) slotAt(c ToneClass, first int) (int, bool) {
	slot, ok := l.slotByStart[c][first]
	return slot, ok
}

// classForShare maps a share of the budget to the largest class it pays for.
// A zero share still maps to the smallest class.
func (l *layout) classForShare(share int) ToneClass {
	if share >= l.total {
		return l.full
	}
	best := RU26
	for _, c := range l.classes() {
		if c.Cost() <= share {
			best = c
		}
	}
	return best
}

// Capacity returns how many RUs of class c fit in the width.
func Capacity(width wifi.ChannelWidth, c ToneClass) (int, error) {
	l, err := layoutFor(width)
	if err != nil {
		return 0, err
	}
	return l.capacity(c), nil
}

// TotalUnits returns the width's tone budget in 26-tone units.
func TotalUnits(width wifi.ChannelWidth) (int, error) {
	l, err := layoutFor(width)
	if err != nil {
		return 0, err
	}
	return l.total, nil
}

// Coverage returns the inclusive range of 26-tone indices an RU occupies.
func Coverage(width wifi.ChannelWidth, ru RU) (first, last int, err error) {
	l, err := layoutFor(width)
	if err != nil {
		return 0, 0, err
	}
	s := l.slots[ru.Class]
	if ru.Index < 1 || ru.Index > len(s) {
		return 0, 0, fmt.Errorf("%s has no slot %d on %s", ru.Class, ru.Index, width)
	}
	sp := s[ru.Index-1]
	return sp.first, sp.last, nil
}
