package scheduler

import (
	"fmt"
	"time"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/wifi"
)

// tryDownlink builds a downlink MU decision from the primary access
// category list. A nil decision means no station could be served.
func (s *Scheduler) tryDownlink(opp Opportunity, width wifi.ChannelWidth) (*Decision, error) {
	list := s.registry.Downlink(opp.AC)
	cands, preamble, err := s.selector.DownlinkCandidates(list, opp, width)
	if err != nil {
		return nil, fmt.Errorf("select downlink candidates: %w", err)
	}
	if len(cands) == 0 {
		return nil, nil
	}

	plan, err := s.dlAllocator.Allocate(s.request(width, cands))
	if err != nil {
		return nil, fmt.Errorf("allocate downlink: %w", err)
	}

	d := &Decision{
		Format:     DownlinkMU,
		AC:         opp.AC,
		Preamble:   preamble,
		Plan:       plan,
		Candidates: len(cands),
	}
	var ppdu time.Duration
	for i, c := range cands {
		ru, ok := plan.RUFor(i)
		if !ok {
			d.Truncated = append(d.Truncated, c.Station.Address)
			continue
		}
		if t := s.timing.TxDuration(c.Frame.Size, ru, width, c.Station.Address); t > ppdu {
			ppdu = t
		}
		d.Receivers = append(d.Receivers, Receiver{
			AID:     c.Station.AID,
			Address: c.Station.Address,
			RU:      ru,
			Frame:   c.Frame,
		})
	}
	d.Duration = ppdu
	if need := s.timing.DownlinkOverhead(len(d.Receivers), width) + ppdu; !opp.fits(need) {
		return noTransmission(opp.AC, fmt.Sprintf("downlink PPDU needs %s, %s available", need, opp.Available)), nil
	}
	return d, nil
}

func (s *Scheduler) request(width wifi.ChannelWidth, cands []Candidate) allocation.Request {
	weights := make([]uint64, len(cands))
	for i, c := range cands {
		weights[i] = c.Weight
	}
	return allocation.Request{
		Width:        width,
		Weights:      weights,
		MaxRUs:       s.opts.MaxStations,
		UseCentral26: s.opts.UseCentral26TonesRus,
	}
}
