package wifi

import "fmt"

// ChannelWidth is the operating channel width in MHz.
type ChannelWidth uint16

const (
	Width20  ChannelWidth = 20
	Width40  ChannelWidth = 40
	Width80  ChannelWidth = 80
	Width160 ChannelWidth = 160
)

// SupportedWidths lists the widths the scheduler can partition, narrowest first.
var SupportedWidths = []ChannelWidth{Width20, Width40, Width80, Width160}

func (w ChannelWidth) Valid() bool {
	switch w {
	case Width20, Width40, Width80, Width160:
		return true
	}
	return false
}

func (w ChannelWidth) MHz() int {
	return int(w)
}

func (w ChannelWidth) String() string {
	return fmt.Sprintf("%dMHz", uint16(w))
}

// ParseChannelWidth validates a width given in MHz.
func ParseChannelWidth(mhz int) (ChannelWidth, error) {
	w := ChannelWidth(mhz)
	if mhz <= 0 || !w.Valid() {
		return 0, fmt.Errorf("unsupported channel width %d MHz (supported: 20, 40, 80, 160)", mhz)
	}
	return w, nil
}
