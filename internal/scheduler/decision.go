package scheduler

import (
	"fmt"
	"time"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/wifi"
)

// TxFormat is the outcome of one scheduling opportunity.
type TxFormat uint8

const (
	SingleUser TxFormat = iota
	DownlinkMU
	UplinkPoll
	UplinkData
	NoTransmission
)

var TxFormats = []TxFormat{SingleUser, DownlinkMU, UplinkPoll, UplinkData, NoTransmission}

func (f TxFormat) String() string {
	switch f {
	case SingleUser:
		return "SU_TX"
	case DownlinkMU:
		return "DL_MU_TX"
	case UplinkPoll:
		return "UL_MU_POLL"
	case UplinkData:
		return "UL_MU_DATA"
	case NoTransmission:
		return "NO_TX"
	}
	return fmt.Sprintf("TxFormat(%d)", uint8(f))
}

// TriggerKind identifies the trigger frame variant of an uplink exchange.
type TriggerKind uint8

const (
	TriggerNone TriggerKind = iota
	// TriggerPoll solicits buffer status reports.
	TriggerPoll
	// TriggerData solicits uplink data.
	TriggerData
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerPoll:
		return "bsrp"
	case TriggerData:
		return "basic"
	}
	return "none"
}

type Preamble uint8

const (
	PreambleHE Preamble = iota
	PreambleEHT
)

func (p Preamble) String() string {
	if p == PreambleEHT {
		return "EHT"
	}
	return "HE"
}

// Receiver is one station served by a multi-user decision.
type Receiver struct {
	AID     uint16            `json:"aid"`
	Address wifi.Address      `json:"-"`
	RU      allocation.RU     `json:"ru"`
	Frame   *Frame            `json:"-"`
	Demand  wifi.Demand       `json:"demand"`
	Status  wifi.BufferStatus `json:"status"`
}

// Decision is what the scheduler hands to the PPDU and trigger frame builders.
// Plan and Receivers are final once returned.
type Decision struct {
	Format TxFormat
	// Reason explains a NoTransmission or a fallback to single-user.
	Reason string
	// AC is the access category that won the opportunity; for uplink it is the
	// preferred access category hint.
	AC        wifi.AccessCategory
	Trigger   TriggerKind
	Preamble  Preamble
	Plan      *allocation.Plan
	Receivers []Receiver
	// Truncated lists candidates the allocation could not fit.
	Truncated []wifi.Address
	// Candidates is the number of eligible stations considered.
	Candidates int
	// Duration is the downlink PPDU duration, the uplink grant, or the poll
	// response duration.
	Duration time.Duration
}

func noTransmission(ac wifi.AccessCategory, reason string) *Decision {
	return &Decision{Format: NoTransmission, AC: ac, Reason: reason}
}

func singleUser(ac wifi.AccessCategory, reason string) *Decision {
	return &Decision{Format: SingleUser, AC: ac, Reason: reason}
}

func (d *Decision) charges() map[wifi.Address]int {
	out := make(map[wifi.Address]int, len(d.Receivers))
	for _, r := range d.Receivers {
		out[r.Address] = r.RU.Class.BandwidthMHz()
	}
	return out
}

// Observer is notified of every decision, including rejected opportunities.
type Observer interface {
	ObserveDecision(d *Decision)
}
