package scheduler

import (
	"sort"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/station"
	"mu-scheduler/internal/wifi"
)

// Candidate is a station considered for one multi-user exchange. It does not
// outlive the opportunity it was built for.
type Candidate struct {
	Station *station.Station
	// Frame is the downlink frame to send.
	Frame *Frame
	// Status and Demand describe the uplink backlog.
	Status wifi.BufferStatus
	Demand wifi.Demand
	// Weight is the allocation weight: queued bytes for downlink, decoded
	// demand for uplink.
	Weight uint64
}

// Selector builds ordered candidate lists from a registry list. It reads the
// MAC state and never reorders the registry itself.
type Selector struct {
	mac    MAC
	timing Timing
	opts   *Options
}

func NewSelector(mac MAC, timing Timing, opts *Options) *Selector {
	return &Selector{mac: mac, timing: timing, opts: opts}
}

// downlinkTIDs lists the TIDs checked for a downlink candidate, in order.
func (s *Selector) downlinkTIDs(primary wifi.AccessCategory, current uint8) []uint8 {
	tids := []uint8{current, wifi.OtherTID(current)}
	if !s.opts.EnableTxopSharing {
		return tids[:1]
	}
	for _, ac := range wifi.AccessCategories {
		if ac <= primary {
			continue
		}
		tids = append(tids, ac.HighTID(), ac.LowTID())
	}
	return tids
}

// DownlinkCandidates returns the stations of list that have a frame to send
// under a block ack agreement and whose frame fits the opportunity. Stations
// are visited by descending queued bytes.
func (s *Selector) DownlinkCandidates(list *station.List, opp Opportunity, width wifi.ChannelWidth) ([]Candidate, Preamble, error) {
	current := opp.AC.HighTID()
	if hol, ok := s.mac.PeekNextFrame(opp.AC); ok {
		current = hol.TID
	}
	tids := s.downlinkTIDs(opp.AC, current)

	// Only stations with a sendable frame are ranked. The weight is the
	// backlog of the TID that frame comes from.
	var pending []pendingFrame
	for _, st := range list.Stations() {
		if p, ok := s.firstFrame(st, tids); ok {
			pending = append(pending, p)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].queued > pending[j].queued
	})

	maxRUs, err := allocation.TotalUnits(width)
	if err != nil {
		return nil, PreambleHE, err
	}
	limit := s.opts.MaxStations
	if limit > maxRUs {
		limit = maxRUs
	}
	count := limit
	if len(pending) < count {
		count = len(pending)
	}
	// tentative RUs are sized for an equal split among count stations
	sizing := allocation.Request{Width: width, Weights: make([]uint64, count), MaxRUs: limit}

	var out []Candidate
	preamble := PreambleHE
	fixed := false
	for _, p := range pending {
		if len(out) >= limit {
			break
		}
		st := p.station
		if fixed && preamble == PreambleEHT && !s.mac.SupportsEHT(st.Address) {
			continue
		}
		ru, ok, err := allocation.EqualSplitRU(sizing, len(out))
		if err != nil {
			return nil, PreambleHE, err
		}
		if !ok {
			break
		}
		need := s.timing.DownlinkOverhead(len(out)+1, width) + s.timing.TxDuration(p.frame.Size, ru, width, st.Address)
		if !opp.fits(need) {
			continue
		}
		if !fixed {
			if s.mac.SupportsEHT(st.Address) {
				preamble = PreambleEHT
			}
			fixed = true
		}
		f := p.frame
		out = append(out, Candidate{Station: st, Frame: &f, Weight: p.queued})
	}
	return out, preamble, nil
}

type pendingFrame struct {
	station *station.Station
	frame   Frame
	queued  uint64
}

// firstFrame returns the head-of-line frame of the first checked TID that has
// an originator agreement and a queued frame.
func (s *Selector) firstFrame(st *station.Station, tids []uint8) (pendingFrame, bool) {
	for _, tid := range tids {
		if !s.mac.HasAgreementAsOriginator(st.Address, tid) {
			continue
		}
		if f, ok := s.mac.PeekFrame(st.Address, tid); ok {
			return pendingFrame{station: st, frame: f, queued: s.mac.QueuedBytes(st.Address, tid)}, true
		}
	}
	return pendingFrame{}, false
}

// UplinkCandidates returns the stations of list that can be solicited. Polls
// ignore the reported buffer status. Data solicitation with polling enabled
// skips stations that reported an empty buffer and visits the others by
// descending buffer status.
func (s *Selector) UplinkCandidates(list *station.List, kind TriggerKind) ([]Candidate, Preamble) {
	stations := list.Stations()
	status := make(map[wifi.Address]wifi.BufferStatus, len(stations))
	for _, st := range stations {
		status[st.Address] = s.mac.BufferStatus(st.Address)
	}
	polled := kind == TriggerData && s.opts.EnableBsrp
	if polled {
		sort.SliceStable(stations, func(i, j int) bool {
			return status[stations[i].Address] > status[stations[j].Address]
		})
	}

	var out []Candidate
	preamble := PreambleHE
	fixed := false
	for _, st := range stations {
		if fixed && preamble == PreambleEHT && !s.mac.SupportsEHT(st.Address) {
			continue
		}
		bs := status[st.Address]
		if polled && bs == wifi.BufferStatusEmpty {
			continue
		}
		if !s.hasUplinkAgreement(st.Address) {
			continue
		}
		if !fixed {
			if s.mac.SupportsEHT(st.Address) {
				preamble = PreambleEHT
			}
			fixed = true
		}
		demand := bs.Decode(s.opts.UlPsduSize)
		out = append(out, Candidate{Station: st, Status: bs, Demand: demand, Weight: demand.Weight()})
	}
	return out, preamble
}

func (s *Selector) hasUplinkAgreement(addr wifi.Address) bool {
	for tid := uint8(0); tid < wifi.NumTIDs; tid++ {
		if s.mac.HasAgreementAsRecipient(addr, tid) {
			return true
		}
	}
	return false
}
