package sim

import (
	"context"
	"errors"
	"time"

	"mu-scheduler/internal/dataframe"
	"mu-scheduler/internal/logging"
	"mu-scheduler/internal/scheduler"
	"mu-scheduler/internal/station"
	"mu-scheduler/internal/wifi"

	"github.com/sirupsen/logrus"
)

// idle time between opportunities on the simulated clock
const interFrameSpace = 43 * time.Microsecond

type RunOptions struct {
	Opportunities int
	// TxopLimit bounds every opportunity; zero means unlimited.
	TxopLimit time.Duration
	Start     time.Time
	// ProgressEvery logs a progress line every N opportunities.
	ProgressEvery int
}

// Runner drives a scheduler against a simulated world and records the trace.
type Runner struct {
	sched  *scheduler.Scheduler
	world  *World
	model  PayloadModel
	opts   RunOptions
	frames *dataframe.DataFrames
	logger *logrus.Logger
	clock  time.Duration
}

func NewRunner(sched *scheduler.Scheduler, world *World, model PayloadModel, opts RunOptions) *Runner {
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}
	return &Runner{
		sched:  sched,
		world:  world,
		model:  model,
		opts:   opts,
		frames: dataframe.NewDataFrames(),
		logger: logging.GetLogger(),
	}
}

func (r *Runner) DataFrames() *dataframe.DataFrames {
	return r.frames
}

// Elapsed returns the simulated airtime consumed so far.
func (r *Runner) Elapsed() time.Duration {
	return r.clock
}

func (r *Runner) opportunity() scheduler.Opportunity {
	opp := scheduler.Opportunity{AC: r.world.BusiestAC()}
	if r.opts.TxopLimit > 0 {
		opp.Available = r.opts.TxopLimit
		opp.Limited = true
	}
	return opp
}

// Run associates every station and plays the configured number of
// opportunities. It stops early when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (*dataframe.DataFrames, error) {
	accepted := r.world.AssociateAll(r.sched.NotifyStationAssociated)
	r.logger.WithFields(logrus.Fields{
		"stations":      accepted,
		"opportunities": r.opts.Opportunities,
		"width":         r.world.ChannelWidth().String(),
	}).Info("Simulation running")

	for i := 1; i <= r.opts.Opportunities; i++ {
		select {
		case <-ctx.Done():
			r.logger.WithField("opportunity", i).Info("Simulation interrupted")
			return r.frames, ctx.Err()
		default:
		}

		r.departures(i)
		r.world.Refresh()
		d, err := r.sched.SelectTxFormat(r.opportunity())
		if err != nil {
			return r.frames, err
		}
		effects := r.world.Apply(d, r.model)
		r.record(i, d, effects)
		r.clock += d.Duration + interFrameSpace

		if r.opts.ProgressEvery > 0 && i%r.opts.ProgressEvery == 0 {
			r.logger.WithFields(logrus.Fields{
				"opportunity": i,
				"elapsed":     r.clock,
			}).Info("Simulation progress")
		}
	}
	return r.frames, nil
}

// departures disassociates the stations whose stay ended before opportunity i
// and tells the scheduler about it.
func (r *Runner) departures(i int) {
	for _, addr := range r.world.Departing(i) {
		aid, _ := r.world.AID(addr)
		fields := logrus.Fields{"aid": aid, "address": addr.String(), "opportunity": i}
		if st, err := r.sched.Registry().Lookup(aid); err == nil {
			fields["credits"] = st.Credits
		} else if !errors.Is(err, station.ErrNotFound) {
			fields["error"] = err
		}
		r.world.Disassociate(addr)
		if r.sched.NotifyStationDeassociated(aid, addr) {
			r.logger.WithFields(fields).Info("Station left")
		}
	}
}

func (r *Runner) record(i int, d *scheduler.Decision, effects map[wifi.Address]Effect) {
	ts := r.opts.Start.Add(r.clock)
	cycle := &dataframe.CycleStep{
		Opportunity: i,
		Timestamp:   ts,
		Format:      d.Format.String(),
		Reason:      d.Reason,
		AC:          d.AC.String(),
		Candidates:  d.Candidates,
		Served:      len(d.Receivers),
		Truncated:   len(d.Truncated),
		Duration:    d.Duration,
	}
	if d.Plan != nil {
		cycle.Preamble = d.Preamble.String()
		cycle.UnitsUsed = d.Plan.UnitsUsed
		cycle.UnitsTotal = d.Plan.UnitsTotal
		cycle.RUClasses = make(map[string]int)
		for c, n := range d.Plan.ClassCounts() {
			cycle.RUClasses[c.String()] = n
		}
	}
	r.frames.AddCycle(cycle)

	list := r.creditList(d)
	for _, rcv := range d.Receivers {
		ru := rcv.RU.String()
		step := &dataframe.StationStep{Timestamp: ts, RU: &ru}
		if list != nil {
			if st, ok := list.Find(rcv.Address); ok {
				credits := st.Credits
				step.Credits = &credits
			}
		}
		r.frames.Station(rcv.AID).AddOrMergeStep(i, step)
	}
	truncated := true
	for _, addr := range d.Truncated {
		if aid, ok := r.world.AID(addr); ok {
			r.frames.Station(aid).AddOrMergeStep(i, &dataframe.StationStep{Timestamp: ts, Truncated: &truncated})
		}
	}
	for addr, e := range effects {
		aid, ok := r.world.AID(addr)
		if !ok {
			continue
		}
		step := &dataframe.StationStep{Timestamp: ts}
		if e.DownlinkBytes > 0 {
			dl := e.DownlinkBytes
			step.DownlinkBytes = &dl
		}
		if e.UplinkBytes > 0 {
			ul := e.UplinkBytes
			step.UplinkBytes = &ul
		}
		if e.Status != nil {
			bs := uint8(*e.Status)
			step.BufferStatus = &bs
		}
		r.frames.Station(aid).AddOrMergeStep(i, step)
	}
}

func (r *Runner) creditList(d *scheduler.Decision) *station.List {
	switch d.Format {
	case scheduler.DownlinkMU:
		return r.sched.Registry().Downlink(d.AC)
	case scheduler.UplinkPoll, scheduler.UplinkData:
		return r.sched.Registry().Uplink()
	}
	return nil
}
