package scheduler

import (
	"fmt"

	"mu-scheduler/internal/accounting"
	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/logging"
	"mu-scheduler/internal/station"
	"mu-scheduler/internal/wifi"

	"github.com/sirupsen/logrus"
)

// Scheduler decides, for every transmission opportunity, which multi-user
// exchange (if any) the access point performs. It is driven from a single
// goroutine.
type Scheduler struct {
	opts     Options
	mac      MAC
	timing   Timing
	registry *station.Registry
	credits  *accounting.CreditAccountant
	selector *Selector
	gate     *DutyCycleGate
	skipper  *pollSkipper

	dlAllocator   allocation.Allocator
	ulAllocator   allocation.Allocator
	pollAllocator allocation.Allocator

	lastFormat  TxFormat
	lastTrigger TriggerKind
	stats       map[TxFormat]uint64
	observers   []Observer
	logger      logrus.FieldLogger
}

func New(opts Options, mac MAC, timing Timing, logger logrus.FieldLogger, observers ...Observer) (*Scheduler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.GetSchedulerLogger()
	}
	dl, err := allocation.NewAllocator(opts.DownlinkPolicy)
	if err != nil {
		return nil, err
	}
	ul, err := allocation.NewAllocator(opts.UplinkPolicy)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		opts:          opts,
		mac:           mac,
		timing:        timing,
		registry:      station.NewRegistry(logger),
		credits:       accounting.NewCreditAccountant(opts.MaxCredits, nil),
		gate:          NewDutyCycleGate(opts.DutyCycle),
		skipper:       newPollSkipper(opts.PollInterval),
		dlAllocator:   dl,
		ulAllocator:   ul,
		pollAllocator: &allocation.EqualSplitAllocator{},
		lastFormat:    SingleUser,
		stats:         make(map[TxFormat]uint64, len(TxFormats)),
		observers:     observers,
		logger:        logger,
	}
	s.selector = NewSelector(mac, timing, &s.opts)
	return s, nil
}

func (s *Scheduler) Registry() *station.Registry {
	return s.registry
}

func (s *Scheduler) LastTxFormat() TxFormat {
	return s.lastFormat
}

func (s *Scheduler) DutyCycle() *DutyCycleGate {
	return s.gate
}

// Stats returns how many opportunities ended in each format.
func (s *Scheduler) Stats() map[TxFormat]uint64 {
	out := make(map[TxFormat]uint64, len(s.stats))
	for f, n := range s.stats {
		out[f] = n
	}
	return out
}

func (s *Scheduler) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// NotifyStationAssociated registers a station. Stations without multi-user
// support are never scheduled and are ignored.
func (s *Scheduler) NotifyStationAssociated(aid uint16, addr wifi.Address) bool {
	if !s.mac.SupportsMultiUser(addr) {
		s.logger.WithFields(stationLogFields(aid, addr.String())).Debug("Ignoring station without multi-user support")
		return false
	}
	return s.registry.Add(aid, addr)
}

// NotifyStationDeassociated unregisters a station unless the MAC still
// reports it associated.
func (s *Scheduler) NotifyStationDeassociated(aid uint16, addr wifi.Address) bool {
	if s.mac.IsAssociated(addr) {
		s.logger.WithFields(stationLogFields(aid, addr.String())).Debug("Station still associated, keeping it registered")
		return false
	}
	return s.registry.Remove(addr)
}

// SelectTxFormat runs one scheduling cycle. A NoTransmission decision leaves
// every piece of scheduler state as it was before the call.
func (s *Scheduler) SelectTxFormat(opp Opportunity) (*Decision, error) {
	width := s.mac.ChannelWidth()
	if !width.Valid() {
		return nil, fmt.Errorf("channel width %s: %w", width, allocation.ErrUnsupportedWidth)
	}

	hol, hasFrame := s.mac.PeekNextFrame(opp.AC)
	if hasFrame && !s.mac.SupportsMultiUser(hol.Receiver) {
		d := singleUser(opp.AC, "head-of-line receiver lacks multi-user support")
		s.commit(d, width)
		return d, nil
	}

	gate := *s.gate
	skipper := *s.skipper
	d, err := s.decide(opp, width, hasFrame)
	if err != nil || d.Format == NoTransmission {
		*s.gate = gate
		*s.skipper = skipper
	}
	if err != nil {
		return nil, err
	}
	s.commit(d, width)
	return d, nil
}

func (s *Scheduler) decide(opp Opportunity, width wifi.ChannelWidth, hasFrame bool) (*Decision, error) {
	if s.gate.Begin() {
		s.logger.Debug("Duty cycle counters refilled")
	}

	afterDownlink := s.lastFormat == DownlinkMU || !hasFrame
	if s.opts.EnableUlOfdma && s.opts.EnableBsrp && afterDownlink && s.lastTrigger != TriggerPoll && s.gate.AllowUplink() {
		d, err := s.tryPoll(opp, width)
		if err != nil {
			return nil, err
		}
		if d != nil {
			if s.skipper.admit() {
				return d, nil
			}
			s.logger.Debug("Poll skipped")
		}
	} else if s.opts.EnableUlOfdma && (afterDownlink || s.lastTrigger == TriggerPoll) && s.gate.AllowUplink() {
		d, err := s.tryData(opp, width)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
	}

	if s.registry.Downlink(opp.AC).Len() == 0 {
		return singleUser(opp.AC, "no station registered for the access category"), nil
	}
	d, err := s.tryDownlink(opp, width)
	if err != nil {
		return nil, err
	}
	if d != nil {
		return d, nil
	}
	if s.opts.ForceDlOfdma {
		return noTransmission(opp.AC, "no downlink candidate"), nil
	}
	return singleUser(opp.AC, "no downlink candidate"), nil
}

func (s *Scheduler) commit(d *Decision, width wifi.ChannelWidth) {
	switch d.Format {
	case DownlinkMU:
		s.credits.Update(s.registry.Downlink(d.AC), d.Duration, d.charges())
		s.gate.RecordDownlink()
	case UplinkPoll:
		s.credits.UpdateWithoutDebit(s.registry.Uplink(), d.Duration)
	case UplinkData:
		s.credits.Update(s.registry.Uplink(), d.Duration, d.charges())
		s.gate.RecordUplink()
	}
	if d.Format != NoTransmission {
		s.lastFormat = d.Format
		if d.Trigger != TriggerNone {
			s.lastTrigger = d.Trigger
		}
	}
	s.stats[d.Format]++

	s.logger.WithFields(decisionLogFields(d, width)).Debug("Transmission format selected")
	for _, o := range s.observers {
		o.ObserveDecision(d)
	}
}
