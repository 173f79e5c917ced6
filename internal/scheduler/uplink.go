package scheduler

import (
	"fmt"
	"math"
	"time"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/wifi"
)

// uplinkDecision allocates RUs to the uplink candidates and fills in the
// receivers. Stations the plan leaves out are reported as truncated.
func (s *Scheduler) uplinkDecision(opp Opportunity, width wifi.ChannelWidth, kind TriggerKind, cands []Candidate, preamble Preamble, alloc allocation.Allocator) (*Decision, error) {
	plan, err := alloc.Allocate(s.request(width, cands))
	if err != nil {
		return nil, fmt.Errorf("allocate uplink: %w", err)
	}
	format := UplinkData
	if kind == TriggerPoll {
		format = UplinkPoll
	}
	d := &Decision{
		Format:     format,
		AC:         opp.AC,
		Trigger:    kind,
		Preamble:   preamble,
		Plan:       plan,
		Candidates: len(cands),
	}
	for i, c := range cands {
		ru, ok := plan.RUFor(i)
		if !ok {
			d.Truncated = append(d.Truncated, c.Station.Address)
			continue
		}
		d.Receivers = append(d.Receivers, Receiver{
			AID:     c.Station.AID,
			Address: c.Station.Address,
			RU:      ru,
			Demand:  c.Demand,
			Status:  c.Status,
		})
	}
	return d, nil
}

// tryPoll builds a buffer status poll to every uplink station. A nil decision
// means the poll cannot be sent this cycle and downlink should be tried.
func (s *Scheduler) tryPoll(opp Opportunity, width wifi.ChannelWidth) (*Decision, error) {
	cands, preamble := s.selector.UplinkCandidates(s.registry.Uplink(), TriggerPoll)
	if len(cands) == 0 {
		return nil, nil
	}
	// polls learn buffer content, so every station gets an equal share
	d, err := s.uplinkDecision(opp, width, TriggerPoll, cands, preamble, s.pollAllocator)
	if err != nil {
		return nil, err
	}
	var response time.Duration
	for _, r := range d.Receivers {
		if t := s.timing.TxDuration(s.opts.PollResponseSize, r.RU, width, r.Address); t > response {
			response = t
		}
	}
	if !opp.fits(s.timing.TriggerOverhead(TriggerPoll, len(d.Receivers), width) + response) {
		s.logger.WithField("available", opp.Available).Debug("Poll does not fit the TXOP")
		return nil, nil
	}
	d.Duration = response
	return d, nil
}

// tryData builds an uplink data solicitation. A nil decision without error
// means downlink should be tried instead; a NoTransmission decision ends the
// cycle.
func (s *Scheduler) tryData(opp Opportunity, width wifi.ChannelWidth) (*Decision, error) {
	cands, preamble := s.selector.UplinkCandidates(s.registry.Uplink(), TriggerData)
	if len(cands) == 0 {
		return nil, nil
	}
	d, err := s.uplinkDecision(opp, width, TriggerData, cands, preamble, s.ulAllocator)
	if err != nil {
		return nil, err
	}

	maxDuration := s.timing.MaxPPDUDuration()
	if opp.Limited {
		avail := opp.Available - s.timing.TriggerOverhead(TriggerData, len(d.Receivers), width)
		if avail < 0 {
			return noTransmission(opp.AC, "no time left for the trigger frame"), nil
		}
		if avail < maxDuration {
			maxDuration = avail
		}
	}

	var maxBuffer uint32
	for _, r := range d.Receivers {
		if size := r.Demand.Size(); size > maxBuffer {
			maxBuffer = size
		}
	}
	if maxBuffer == 0 {
		return nil, nil
	}

	var bufferTxTime time.Duration
	minTxTime := time.Duration(math.MaxInt64)
	for _, r := range d.Receivers {
		size := maxBuffer
		if s.ulAllocator.Policy() == allocation.Proportional {
			size = r.Demand.Size()
		}
		if t := s.timing.TxDuration(size, r.RU, width, r.Address); t > bufferTxTime {
			bufferTxTime = t
		}
		if t := s.timing.TxDuration(s.opts.UlPsduSize, r.RU, width, r.Address); t < minTxTime {
			minTxTime = t
		}
	}

	if bufferTxTime < maxDuration {
		d.Duration = bufferTxTime
		return d, nil
	}
	if maxDuration < minTxTime {
		return noTransmission(opp.AC, fmt.Sprintf("grant of %s is shorter than the minimum payload duration %s", maxDuration, minTxTime)), nil
	}
	d.Duration = maxDuration
	return d, nil
}
