package scheduler

import (
	"time"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/wifi"
)

// Frame is a queued MPDU. Only the fields the scheduler needs are exposed.
type Frame struct {
	Receiver wifi.Address
	TID      uint8
	Size     uint32
}

// MAC is the part of the MAC layer the scheduler reads from. Implementations
// own the queues, block ack agreements and buffer status reports.
type MAC interface {
	ChannelWidth() wifi.ChannelWidth
	// SupportsMultiUser reports HE support for the station.
	SupportsMultiUser(addr wifi.Address) bool
	SupportsEHT(addr wifi.Address) bool
	// IsAssociated is consulted on disassociation; a station still associated
	// over another link keeps its registry entries.
	IsAssociated(addr wifi.Address) bool
	HasAgreementAsOriginator(addr wifi.Address, tid uint8) bool
	HasAgreementAsRecipient(addr wifi.Address, tid uint8) bool
	// PeekNextFrame returns the head-of-line frame of the access category that
	// gained channel access.
	PeekNextFrame(ac wifi.AccessCategory) (Frame, bool)
	PeekFrame(addr wifi.Address, tid uint8) (Frame, bool)
	QueuedBytes(addr wifi.Address, tid uint8) uint64
	BufferStatus(addr wifi.Address) wifi.BufferStatus
}

// Timing computes PPDU and exchange durations.
type Timing interface {
	// TxDuration is the airtime of size bytes sent to or from addr over ru.
	TxDuration(size uint32, ru allocation.RU, width wifi.ChannelWidth, addr wifi.Address) time.Duration
	// TriggerOverhead covers protection, the trigger frame and the SIFS that
	// follows it; for data solicitation it also includes the acknowledgment.
	TriggerOverhead(kind TriggerKind, receivers int, width wifi.ChannelWidth) time.Duration
	// DownlinkOverhead covers protection, preamble, SIFS and acknowledgment of
	// a downlink MU PPDU.
	DownlinkOverhead(receivers int, width wifi.ChannelWidth) time.Duration
	MaxPPDUDuration() time.Duration
}

// Opportunity describes the channel access the scheduler is asked to fill.
type Opportunity struct {
	AC wifi.AccessCategory
	// Available is the remaining TXOP time; it only applies when Limited is set.
	Available time.Duration
	Limited   bool
}

func (o Opportunity) fits(d time.Duration) bool {
	return !o.Limited || d <= o.Available
}
