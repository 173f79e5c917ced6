package scheduler

import (
	"time"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/wifi"
)

type fakeStation struct {
	he, eht    bool
	associated bool
	queues     map[uint8][]Frame
	status     wifi.BufferStatus
	// nil means an agreement on every TID
	originator map[uint8]bool
	recipient  map[uint8]bool
}

type fakeMAC struct {
	width    wifi.ChannelWidth
	order    []wifi.Address
	stations map[wifi.Address]*fakeStation
}

func newFakeMAC(width wifi.ChannelWidth) *fakeMAC {
	return &fakeMAC{width: width, stations: make(map[wifi.Address]*fakeStation)}
}

func (m *fakeMAC) addStation(aid uint16) wifi.Address {
	addr := wifi.AddressForAID(aid)
	m.order = append(m.order, addr)
	m.stations[addr] = &fakeStation{he: true, associated: true, queues: make(map[uint8][]Frame)}
	return addr
}

func (m *fakeMAC) enqueue(addr wifi.Address, tid uint8, size uint32) {
	st := m.stations[addr]
	st.queues[tid] = append(st.queues[tid], Frame{Receiver: addr, TID: tid, Size: size})
}

// setAgreements restricts the block ack agreements of addr to the given TIDs.
func (m *fakeMAC) setAgreements(addr wifi.Address, originator, recipient []uint8) {
	st := m.stations[addr]
	st.originator = make(map[uint8]bool)
	for _, tid := range originator {
		st.originator[tid] = true
	}
	st.recipient = make(map[uint8]bool)
	for _, tid := range recipient {
		st.recipient[tid] = true
	}
}

func (m *fakeMAC) ChannelWidth() wifi.ChannelWidth { return m.width }

func (m *fakeMAC) SupportsMultiUser(addr wifi.Address) bool {
	st, ok := m.stations[addr]
	return ok && st.he
}

func (m *fakeMAC) SupportsEHT(addr wifi.Address) bool {
	st, ok := m.stations[addr]
	return ok && st.eht
}

func (m *fakeMAC) IsAssociated(addr wifi.Address) bool {
	st, ok := m.stations[addr]
	return ok && st.associated
}

func (m *fakeMAC) HasAgreementAsOriginator(addr wifi.Address, tid uint8) bool {
	st, ok := m.stations[addr]
	return ok && (st.originator == nil || st.originator[tid])
}

func (m *fakeMAC) HasAgreementAsRecipient(addr wifi.Address, tid uint8) bool {
	st, ok := m.stations[addr]
	return ok && (st.recipient == nil || st.recipient[tid])
}

func (m *fakeMAC) PeekNextFrame(ac wifi.AccessCategory) (Frame, bool) {
	for _, addr := range m.order {
		for _, tid := range []uint8{ac.HighTID(), ac.LowTID()} {
			if q := m.stations[addr].queues[tid]; len(q) > 0 {
				return q[0], true
			}
		}
	}
	return Frame{}, false
}

func (m *fakeMAC) PeekFrame(addr wifi.Address, tid uint8) (Frame, bool) {
	st, ok := m.stations[addr]
	if !ok || len(st.queues[tid]) == 0 {
		return Frame{}, false
	}
	return st.queues[tid][0], true
}

func (m *fakeMAC) QueuedBytes(addr wifi.Address, tid uint8) uint64 {
	st, ok := m.stations[addr]
	if !ok {
		return 0
	}
	var total uint64
	for _, f := range st.queues[tid] {
		total += uint64(f.Size)
	}
	return total
}

func (m *fakeMAC) BufferStatus(addr wifi.Address) wifi.BufferStatus {
	st, ok := m.stations[addr]
	if !ok {
		return wifi.BufferStatusEmpty
	}
	return st.status
}

// fakeTiming sends one byte per microsecond on a 26-tone RU and scales
// linearly with the RU size.
type fakeTiming struct {
	overhead time.Duration
	maxPPDU  time.Duration
}

func newFakeTiming() *fakeTiming {
	return &fakeTiming{overhead: 100 * time.Microsecond, maxPPDU: 5484 * time.Microsecond}
}

func (t *fakeTiming) TxDuration(size uint32, ru allocation.RU, width wifi.ChannelWidth, addr wifi.Address) time.Duration {
	return time.Duration(uint64(size)*26/uint64(ru.Class.Tones())) * time.Microsecond
}

func (t *fakeTiming) TriggerOverhead(kind TriggerKind, receivers int, width wifi.ChannelWidth) time.Duration {
	return t.overhead
}

func (t *fakeTiming) DownlinkOverhead(receivers int, width wifi.ChannelWidth) time.Duration {
	return t.overhead
}

func (t *fakeTiming) MaxPPDUDuration() time.Duration {
	return t.maxPPDU
}

type recordingObserver struct {
	formats []TxFormat
}

func (r *recordingObserver) ObserveDecision(d *Decision) {
	r.formats = append(r.formats, d.Format)
}
