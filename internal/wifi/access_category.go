package wifi

import (
	"fmt"
	"strings"
)

// NumTIDs is the number of traffic identifiers carrying QoS data.
const NumTIDs = 8

// AccessCategory is an EDCA access category. The numeric order (BE, BK, VI, VO)
// is the order in which TXOP sharing walks the categories.
type AccessCategory uint8

const (
	BestEffort AccessCategory = iota
	Background
	Video
	Voice
)

var AccessCategories = []AccessCategory{BestEffort, Background, Video, Voice}

// user priority pairs per category: {low, high}
var acTIDs = [...][2]uint8{
	BestEffort: {0, 3},
	Background: {1, 2},
	Video:      {4, 5},
	Voice:      {6, 7},
}

func (ac AccessCategory) String() string {
	switch ac {
	case BestEffort:
		return "AC_BE"
	case Background:
		return "AC_BK"
	case Video:
		return "AC_VI"
	case Voice:
		return "AC_VO"
	}
	return fmt.Sprintf("AC_%d", uint8(ac))
}

func (ac AccessCategory) LowTID() uint8 {
	return acTIDs[ac][0]
}

func (ac AccessCategory) HighTID() uint8 {
	return acTIDs[ac][1]
}

// ACForTID maps a TID (user priority) to its access category.
func ACForTID(tid uint8) AccessCategory {
	switch tid & 0x07 {
	case 1, 2:
		return Background
	case 4, 5:
		return Video
	case 6, 7:
		return Voice
	default:
		return BestEffort
	}
}

// OtherTID returns the TID sharing the access category of tid.
func OtherTID(tid uint8) uint8 {
	ac := ACForTID(tid)
	if tid == ac.HighTID() {
		return ac.LowTID()
	}
	return ac.HighTID()
}

// ParseAccessCategory accepts "be", "AC_BE", "best_effort" and similar spellings.
func ParseAccessCategory(s string) (AccessCategory, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "ac_")
	switch v {
	case "be", "best_effort", "best-effort":
		return BestEffort, nil
	case "bk", "background":
		return Background, nil
	case "vi", "video":
		return Video, nil
	case "vo", "voice":
		return Voice, nil
	}
	return 0, fmt.Errorf("unknown access category %q", s)
}
