package phy

import (
	"fmt"
	"time"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/scheduler"
	"mu-scheduler/internal/wifi"
)

const (
	// MaxPPDUDuration is the longest HE PPDU.
	MaxPPDUDuration = 5484 * time.Microsecond
	SIFS            = 16 * time.Microsecond

	// 12.8us symbol with a 0.8us guard interval
	symbolDuration = 13600 * time.Nanosecond
	// legacy through HE-STF plus a single HE-LTF
	hePreamble = 48 * time.Microsecond
	// per HE-SIG-B symbol, two user fields each
	sigBSymbol = 4 * time.Microsecond

	legacyPreamble = 20 * time.Microsecond
	legacySymbol   = 4 * time.Microsecond
	// 6 Mb/s control rate
	legacyBitsPerSymbol = 24

	serviceBits = 16
	tailBits    = 6

	MaxMCS = 11
)

// data subcarriers per tone class
var dataSubcarriers = map[allocation.ToneClass]uint64{
	allocation.RU26:    24,
	allocation.RU52:    48,
	allocation.RU106:   102,
	allocation.RU242:   234,
	allocation.RU484:   468,
	allocation.RU996:   980,
	allocation.RU2x996: 1960,
}

type mcsParams struct {
	bitsPerSubcarrier uint64
	rateNum, rateDen  uint64
}

var mcsTable = [MaxMCS + 1]mcsParams{
	{1, 1, 2},
	{2, 1, 2},
	{2, 3, 4},
	{4, 1, 2},
	{4, 3, 4},
	{6, 2, 3},
	{6, 3, 4},
	{6, 5, 6},
	{8, 3, 4},
	{8, 5, 6},
	{10, 3, 4},
	{10, 5, 6},
}

// HEModel computes single-stream HE airtimes. Each station uses the default
// MCS unless overridden.
type HEModel struct {
	defaultMCS uint8
	stationMCS map[wifi.Address]uint8
}

func NewHEModel(mcs uint8) (*HEModel, error) {
	if mcs > MaxMCS {
		return nil, fmt.Errorf("mcs %d out of range 0..%d", mcs, MaxMCS)
	}
	return &HEModel{defaultMCS: mcs, stationMCS: make(map[wifi.Address]uint8)}, nil
}

func (m *HEModel) SetStationMCS(addr wifi.Address, mcs uint8) error {
	if mcs > MaxMCS {
		return fmt.Errorf("mcs %d out of range 0..%d", mcs, MaxMCS)
	}
	m.stationMCS[addr] = mcs
	return nil
}

func (m *HEModel) mcsFor(addr wifi.Address) uint8 {
	if mcs, ok := m.stationMCS[addr]; ok {
		return mcs
	}
	return m.defaultMCS
}

// BitsPerSymbol returns the data bits one OFDM symbol carries on the RU.
func (m *HEModel) BitsPerSymbol(ru allocation.RU, addr wifi.Address) uint64 {
	p := mcsTable[m.mcsFor(addr)]
	return dataSubcarriers[ru.Class] * p.bitsPerSubcarrier * p.rateNum / p.rateDen
}

func (m *HEModel) TxDuration(size uint32, ru allocation.RU, width wifi.ChannelWidth, addr wifi.Address) time.Duration {
	nDBPS := m.BitsPerSymbol(ru, addr)
	if nDBPS == 0 {
		panic(fmt.Sprintf("phy: no data subcarriers for %s", ru))
	}
	bits := serviceBits + 8*uint64(size) + tailBits
	symbols := (bits + nDBPS - 1) / nDBPS
	return hePreamble + time.Duration(symbols)*symbolDuration
}

// PayloadBytes returns how many bytes a station can send on the RU within d.
func (m *HEModel) PayloadBytes(d time.Duration, ru allocation.RU, addr wifi.Address) uint64 {
	if d <= hePreamble {
		return 0
	}
	symbols := uint64((d - hePreamble) / symbolDuration)
	bits := symbols * m.BitsPerSymbol(ru, addr)
	if bits <= serviceBits+tailBits {
		return 0
	}
	return (bits - serviceBits - tailBits) / 8
}

func legacyDuration(size int) time.Duration {
	bits := serviceBits + 8*size + tailBits
	symbols := (bits + legacyBitsPerSymbol - 1) / legacyBitsPerSymbol
	return legacyPreamble + time.Duration(symbols)*legacySymbol
}

func triggerFrameSize(receivers int) int {
	// common info, addresses and FCS, then one user info field per station
	return 28 + 6*receivers
}

func multiStaBlockAckSize(receivers int) int {
	return 22 + 12*receivers
}

// TriggerOverhead is the trigger frame and the SIFS before the solicited
// PPDU. Data solicitation also pays for the multi-station block ack.
func (m *HEModel) TriggerOverhead(kind scheduler.TriggerKind, receivers int, width wifi.ChannelWidth) time.Duration {
	d := legacyDuration(triggerFrameSize(receivers)) + SIFS
	if kind == scheduler.TriggerData {
		d += SIFS + legacyDuration(multiStaBlockAckSize(receivers))
	}
	return d
}

// DownlinkOverhead covers the HE-SIG-B field of the MU PPDU and the block ack
// request and responses that follow it.
func (m *HEModel) DownlinkOverhead(receivers int, width wifi.ChannelWidth) time.Duration {
	sigB := time.Duration((receivers+1)/2) * sigBSymbol
	ack := hePreamble + symbolDuration
	return sigB + SIFS + legacyDuration(triggerFrameSize(receivers)) + SIFS + ack
}

func (m *HEModel) MaxPPDUDuration() time.Duration {
	return MaxPPDUDuration
}

var _ scheduler.Timing = (*HEModel)(nil)
