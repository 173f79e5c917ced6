package scheduler

// DutyCycleGate enforces a downlink:uplink grant ratio. Each successful
// downlink or uplink data grant consumes one unit of its counter; both
// counters are refilled at the start of an opportunity once neither has
// units left. While enabled, uplink attempts are only made while the uplink
// counter has units. Downlink is never blocked.
type DutyCycleGate struct {
	enabled  bool
	dlQuota  int
	ulQuota  int
	downlink int
	uplink   int
}

func NewDutyCycleGate(cfg DutyCycle) *DutyCycleGate {
	g := &DutyCycleGate{
		enabled: cfg.Enabled,
		dlQuota: cfg.Downlink,
		ulQuota: cfg.Uplink,
	}
	g.refill()
	return g
}

func (g *DutyCycleGate) refill() {
	g.downlink = g.dlQuota
	g.uplink = g.ulQuota
}

// Begin is called once per opportunity before any uplink check.
func (g *DutyCycleGate) Begin() bool {
	if g.downlink <= 0 && g.uplink <= 0 {
		g.refill()
		return true
	}
	return false
}

func (g *DutyCycleGate) AllowUplink() bool {
	return !g.enabled || g.uplink > 0
}

func (g *DutyCycleGate) RecordDownlink() {
	g.downlink--
}

func (g *DutyCycleGate) RecordUplink() {
	g.uplink--
}

// Remaining returns the units left in each counter.
func (g *DutyCycleGate) Remaining() (downlink, uplink int) {
	return g.downlink, g.uplink
}

// pollSkipper lets through only every interval-th poll.
type pollSkipper struct {
	interval  int
	remaining int
}

func newPollSkipper(interval int) *pollSkipper {
	return &pollSkipper{interval: interval, remaining: interval}
}

// admit consumes one slot and reports whether the poll may be sent.
func (p *pollSkipper) admit() bool {
	if p.interval <= 1 {
		return true
	}
	p.remaining--
	if p.remaining > 0 {
		return false
	}
	p.remaining = p.interval
	return true
}
