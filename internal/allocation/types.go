package allocation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"mu-scheduler/internal/wifi"
)

var ErrUnsupportedWidth = errors.New("unsupported channel width")

// ToneClass is the size of a resource unit.
type ToneClass uint8

const (
	RU26 ToneClass = iota
	RU52
	RU106
	RU242
	RU484
	RU996
	RU2x996
)

var toneClassInfo = [...]struct {
	tones int
	// cost in 26-tone budget units
	cost int
	// bandwidth share used when debiting credits
	mhz int
}{
	RU26:    {26, 1, 2},
	RU52:    {52, 2, 4},
	RU106:   {106, 4, 8},
	RU242:   {242, 9, 20},
	RU484:   {484, 18, 40},
	RU996:   {996, 37, 80},
	RU2x996: {1992, 74, 160},
}

// ToneClasses lists every class, smallest first.
var ToneClasses = []ToneClass{RU26, RU52, RU106, RU242, RU484, RU996, RU2x996}

func (c ToneClass) Valid() bool {
	return int(c) < len(toneClassInfo)
}

func (c ToneClass) Tones() int {
	return toneClassInfo[c].tones
}

// Cost returns the number of tone-budget units the class consumes.
func (c ToneClass) Cost() int {
	return toneClassInfo[c].cost
}

func (c ToneClass) BandwidthMHz() int {
	return toneClassInfo[c].mhz
}

func (c ToneClass) String() string {
	if c == RU2x996 {
		return "2x996-tone"
	}
	if !c.Valid() {
		return fmt.Sprintf("ToneClass(%d)", uint8(c))
	}
	return fmt.Sprintf("%d-tone", c.Tones())
}

// RU is a resource unit: a tone class and its 1-based placement slot among
// the RUs of that class in the channel.
type RU struct {
	Class ToneClass `json:"class"`
	Index int       `json:"index"`
}

func (r RU) String() string {
	return fmt.Sprintf("%s#%d", r.Class, r.Index)
}

// Policy selects how the channel is divided between candidates.
type Policy uint8

const (
	EqualSplit Policy = iota
	Proportional
)

func (p Policy) String() string {
	switch p {
	case EqualSplit:
		return "equal_split"
	case Proportional:
		return "proportional"
	}
	return fmt.Sprintf("Policy(%d)", uint8(p))
}

// ParsePolicy accepts hyphenated and underscored spellings.
func ParsePolicy(name string) (Policy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	switch n {
	case "", "equal_split", "equal", "rr", "round_robin":
		return EqualSplit, nil
	case "proportional", "demand_proportional", "prop":
		return Proportional, nil
	}
	return 0, fmt.Errorf("unknown allocation policy %q (valid: equal-split, proportional)", name)
}

// Request describes one allocation. Weights holds one entry per candidate in
// selection order; it must not be empty.
type Request struct {
	Width   wifi.ChannelWidth
	Weights []uint64
	// MaxRUs caps the number of RUs handed out; zero means the width's maximum.
	MaxRUs int
	// UseCentral26 lets equal-split hand leftover central 26-tone RUs to
	// candidates that did not get an equal-size RU.
	UseCentral26 bool
}

func (r Request) limit(l *layout) int {
	if r.MaxRUs <= 0 || r.MaxRUs > l.total {
		return l.total
	}
	return r.MaxRUs
}

// Assignment binds a candidate (by position in Request.Weights) to an RU.
type Assignment struct {
	Candidate int `json:"candidate"`
	RU        RU  `json:"ru"`
}

// Plan is the result of an allocation. Candidates that could not be given an
// RU are listed in Unserved so the caller can drop them from the receiver list.
type Plan struct {
	Width       wifi.ChannelWidth `json:"width"`
	Policy      Policy            `json:"policy"`
	Assignments []Assignment      `json:"assignments"`
	Unserved    []int             `json:"unserved,omitempty"`
	UnitsUsed   int               `json:"units_used"`
	UnitsTotal  int               `json:"units_total"`
}

func newPlan(l *layout, p Policy) *Plan {
	return &Plan{Width: l.width, Policy: p, UnitsTotal: l.total}
}

func (p *Plan) assign(candidate int, ru RU) {
	p.Assignments = append(p.Assignments, Assignment{Candidate: candidate, RU: ru})
	p.UnitsUsed += ru.Class.Cost()
}

func (p *Plan) truncate(candidate int) {
	p.Unserved = append(p.Unserved, candidate)
}

func (p *Plan) finalize() {
	sort.Slice(p.Assignments, func(i, j int) bool {
		return p.Assignments[i].Candidate < p.Assignments[j].Candidate
	})
	sort.Ints(p.Unserved)
}

// RUFor returns the RU assigned to a candidate.
func (p *Plan) RUFor(candidate int) (RU, bool) {
	for _, a := range p.Assignments {
		if a.Candidate == candidate {
			return a.RU, true
		}
	}
	return RU{}, false
}

func (p *Plan) Served() int {
	return len(p.Assignments)
}

func (p *Plan) Truncated() bool {
	return len(p.Unserved) > 0
}

func (p *Plan) ClassCounts() map[ToneClass]int {
	counts := make(map[ToneClass]int)
	for _, a := range p.Assignments {
		counts[a.RU.Class]++
	}
	return counts
}

// BandwidthMHz sums the bandwidth of every assigned RU.
func (p *Plan) BandwidthMHz() int {
	total := 0
	for _, a := range p.Assignments {
		total += a.RU.Class.BandwidthMHz()
	}
	return total
}

// Allocator divides a channel between candidates.
type Allocator interface {
	Allocate(req Request) (*Plan, error)
	Policy() Policy
}

// NewAllocator returns the allocator implementing the policy.
func NewAllocator(p Policy) (Allocator, error) {
	switch p {
	case EqualSplit:
		return &EqualSplitAllocator{}, nil
	case Proportional:
		return &ProportionalAllocator{}, nil
	}
	return nil, fmt.Errorf("no allocator for policy %s", p)
}

// prepare resolves the layout and enforces the non-empty candidate contract.
func prepare(req Request) (*layout, error) {
	if len(req.Weights) == 0 {
		panic("allocation: Allocate called with an empty candidate list")
	}
	return layoutFor(req.Width)
}
