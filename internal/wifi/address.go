package wifi

import (
	"fmt"
	"net"
)

// Address is a 48-bit IEEE 802 MAC address.
type Address [6]byte

func ParseAddress(s string) (Address, error) {
	var a Address
	hw, err := net.ParseMAC(s)
	if err != nil {
		return a, fmt.Errorf("invalid MAC address %q: %w", s, err)
	}
	if len(hw) != len(a) {
		return a, fmt.Errorf("invalid MAC address %q: expected 6 octets, got %d", s, len(hw))
	}
	copy(a[:], hw)
	return a, nil
}

func (a Address) String() string {
	return net.HardwareAddr(a[:]).String()
}

// AddressForAID derives a locally administered address for simulated stations.
func AddressForAID(aid uint16) Address {
	return Address{0x02, 0x00, 0x00, 0x00, byte(aid >> 8), byte(aid)}
}
