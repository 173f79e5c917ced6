package sim

import (
	"fmt"
	"math/rand"
	"time"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/scheduler"
	"mu-scheduler/internal/wifi"
)

// maxQueuedFrames bounds each per-TID downlink queue.
const maxQueuedFrames = 1024

// StationProfile describes one simulated station and its offered load.
type StationProfile struct {
	AID     uint16
	Address wifi.Address
	HE      bool
	EHT     bool
	// TIDs with block ack agreements in both directions.
	TIDs                      []uint8
	DownlinkTID               uint8
	FrameSize                 uint32
	FramesPerOpportunity      float64
	UplinkBytesPerOpportunity uint64
	// LeaveAfter is the last opportunity the station stays associated for;
	// zero keeps it for the whole run.
	LeaveAfter int
}

// PayloadModel converts an uplink grant into the bytes a station can send.
type PayloadModel interface {
	PayloadBytes(d time.Duration, ru allocation.RU, addr wifi.Address) uint64
}

type stationState struct {
	profile    StationProfile
	agreements map[uint8]bool
	queues     map[uint8][]scheduler.Frame
	backlog    uint64
	status     wifi.BufferStatus
	associated bool
}

// World is a simulated access point MAC: downlink queues, block ack
// agreements and the buffer status each station last reported.
type World struct {
	width    wifi.ChannelWidth
	order    []wifi.Address
	stations map[wifi.Address]*stationState
	rng      *rand.Rand
}

func NewWorld(width wifi.ChannelWidth, profiles []StationProfile, seed int64) (*World, error) {
	if !width.Valid() {
		return nil, fmt.Errorf("channel width %s: %w", width, allocation.ErrUnsupportedWidth)
	}
	w := &World{
		width:    width,
		stations: make(map[wifi.Address]*stationState, len(profiles)),
		rng:      rand.New(rand.NewSource(seed)),
	}
	for _, p := range profiles {
		if _, dup := w.stations[p.Address]; dup {
			return nil, fmt.Errorf("duplicate station address %s", p.Address)
		}
		// nothing is reported until the first poll
		st := &stationState{
			profile:    p,
			agreements: make(map[uint8]bool, len(p.TIDs)),
			queues:     make(map[uint8][]scheduler.Frame),
			status:     wifi.BufferStatusUnknown,
			associated: true,
		}
		for _, tid := range p.TIDs {
			st.agreements[tid] = true
		}
		w.order = append(w.order, p.Address)
		w.stations[p.Address] = st
	}
	return w, nil
}

// AssociateAll reports every station to notify and returns how many were accepted.
func (w *World) AssociateAll(notify func(aid uint16, addr wifi.Address) bool) int {
	n := 0
	for _, addr := range w.order {
		if notify(w.stations[addr].profile.AID, addr) {
			n++
		}
	}
	return n
}

// Departing returns the associated stations whose last opportunity was
// opportunity-1, in station order.
func (w *World) Departing(opportunity int) []wifi.Address {
	var out []wifi.Address
	for _, addr := range w.order {
		st := w.stations[addr]
		if st.associated && st.profile.LeaveAfter > 0 && st.profile.LeaveAfter < opportunity {
			out = append(out, addr)
		}
	}
	return out
}

// Disassociate marks the station gone; its queues are dropped.
func (w *World) Disassociate(addr wifi.Address) {
	if st, ok := w.stations[addr]; ok {
		st.associated = false
		st.queues = make(map[uint8][]scheduler.Frame)
		st.backlog = 0
	}
}

func (w *World) jitter(v float64) float64 {
	return v * (0.8 + 0.4*w.rng.Float64())
}

// Refresh adds one opportunity worth of offered load to every associated station.
func (w *World) Refresh() {
	for _, addr := range w.order {
		st := w.stations[addr]
		if !st.associated {
			continue
		}
		p := st.profile
		if p.FrameSize > 0 && p.FramesPerOpportunity > 0 {
			n := int(w.jitter(p.FramesPerOpportunity) + 0.5)
			q := st.queues[p.DownlinkTID]
			for i := 0; i < n && len(q) < maxQueuedFrames; i++ {
				q = append(q, scheduler.Frame{Receiver: addr, TID: p.DownlinkTID, Size: p.FrameSize})
			}
			st.queues[p.DownlinkTID] = q
		}
		if p.UplinkBytesPerOpportunity > 0 {
			st.backlog += uint64(w.jitter(float64(p.UplinkBytesPerOpportunity)))
		}
	}
}

// BusiestAC returns the highest priority access category with a queued frame.
func (w *World) BusiestAC() wifi.AccessCategory {
	for _, ac := range []wifi.AccessCategory{wifi.Voice, wifi.Video, wifi.BestEffort, wifi.Background} {
		if _, ok := w.PeekNextFrame(ac); ok {
			return ac
		}
	}
	return wifi.BestEffort
}

func (w *World) AID(addr wifi.Address) (uint16, bool) {
	st, ok := w.stations[addr]
	if !ok {
		return 0, false
	}
	return st.profile.AID, true
}

func (w *World) Backlog(addr wifi.Address) uint64 {
	if st, ok := w.stations[addr]; ok {
		return st.backlog
	}
	return 0
}

func (w *World) ChannelWidth() wifi.ChannelWidth {
	return w.width
}

func (w *World) SupportsMultiUser(addr wifi.Address) bool {
	st, ok := w.stations[addr]
	return ok && st.profile.HE
}

func (w *World) SupportsEHT(addr wifi.Address) bool {
	st, ok := w.stations[addr]
	return ok && st.profile.EHT
}

func (w *World) IsAssociated(addr wifi.Address) bool {
	st, ok := w.stations[addr]
	return ok && st.associated
}

func (w *World) HasAgreementAsOriginator(addr wifi.Address, tid uint8) bool {
	st, ok := w.stations[addr]
	return ok && st.associated && st.agreements[tid]
}

func (w *World) HasAgreementAsRecipient(addr wifi.Address, tid uint8) bool {
	return w.HasAgreementAsOriginator(addr, tid)
}

func (w *World) PeekNextFrame(ac wifi.AccessCategory) (scheduler.Frame, bool) {
	for _, addr := range w.order {
		for _, tid := range []uint8{ac.HighTID(), ac.LowTID()} {
			if f, ok := w.PeekFrame(addr, tid); ok {
				return f, true
			}
		}
	}
	return scheduler.Frame{}, false
}

func (w *World) PeekFrame(addr wifi.Address, tid uint8) (scheduler.Frame, bool) {
	st, ok := w.stations[addr]
	if !ok || len(st.queues[tid]) == 0 {
		return scheduler.Frame{}, false
	}
	return st.queues[tid][0], true
}

func (w *World) QueuedBytes(addr wifi.Address, tid uint8) uint64 {
	st, ok := w.stations[addr]
	if !ok {
		return 0
	}
	var total uint64
	for _, f := range st.queues[tid] {
		total += uint64(f.Size)
	}
	return total
}

func (w *World) BufferStatus(addr wifi.Address) wifi.BufferStatus {
	st, ok := w.stations[addr]
	if !ok {
		return wifi.BufferStatusEmpty
	}
	return st.status
}

func (w *World) pop(addr wifi.Address, tid uint8) (scheduler.Frame, bool) {
	st, ok := w.stations[addr]
	if !ok || len(st.queues[tid]) == 0 {
		return scheduler.Frame{}, false
	}
	f := st.queues[tid][0]
	st.queues[tid] = st.queues[tid][1:]
	return f, true
}

// Effect is what one decision did to one station.
type Effect struct {
	DownlinkBytes uint64
	UplinkBytes   uint64
	Status        *wifi.BufferStatus
}

// Apply carries out a decision on the queues and returns the per-station effects.
func (w *World) Apply(d *scheduler.Decision, model PayloadModel) map[wifi.Address]Effect {
	effects := make(map[wifi.Address]Effect)
	switch d.Format {
	case scheduler.SingleUser:
		if f, ok := w.PeekNextFrame(d.AC); ok {
			w.pop(f.Receiver, f.TID)
			effects[f.Receiver] = Effect{DownlinkBytes: uint64(f.Size)}
		}
	case scheduler.DownlinkMU:
		for _, r := range d.Receivers {
			if r.Frame == nil {
				continue
			}
			if f, ok := w.pop(r.Address, r.Frame.TID); ok {
				effects[r.Address] = Effect{DownlinkBytes: uint64(f.Size)}
			}
		}
	case scheduler.UplinkPoll:
		for _, r := range d.Receivers {
			st := w.stations[r.Address]
			st.status = wifi.QuantizeBufferStatus(st.backlog)
			status := st.status
			effects[r.Address] = Effect{Status: &status}
		}
	case scheduler.UplinkData:
		for _, r := range d.Receivers {
			st := w.stations[r.Address]
			sent := model.PayloadBytes(d.Duration, r.RU, r.Address)
			if sent > st.backlog {
				sent = st.backlog
			}
			st.backlog -= sent
			// queue size is piggybacked on the solicited data
			st.status = wifi.QuantizeBufferStatus(st.backlog)
			status := st.status
			effects[r.Address] = Effect{UplinkBytes: sent, Status: &status}
		}
	}
	return effects
}
