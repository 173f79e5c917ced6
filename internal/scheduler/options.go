package scheduler

import (
	"fmt"
	"time"

	"mu-scheduler/internal/allocation"
)

// DutyCycle sets the long-run ratio of downlink to uplink grants.
type DutyCycle struct {
	Enabled  bool
	Downlink int
	Uplink   int
}

type Options struct {
	// MaxStations caps the stations served by one multi-user PPDU.
	MaxStations int
	// EnableTxopSharing lets downlink candidates be picked from every access
	// category at or above the one that won the TXOP.
	EnableTxopSharing bool
	// ForceDlOfdma returns NoTransmission instead of SingleUser when no
	// downlink candidate is found.
	ForceDlOfdma  bool
	EnableUlOfdma bool
	// EnableBsrp enables buffer status polls before uplink data solicitation.
	EnableBsrp bool
	// UlPsduSize is the payload assumed for a station whose buffer status is unknown.
	UlPsduSize           uint32
	UseCentral26TonesRus bool
	MaxCredits           time.Duration
	DownlinkPolicy       allocation.Policy
	UplinkPolicy         allocation.Policy
	DutyCycle            DutyCycle
	// PollInterval sends only every N-th poll the state machine builds; 0 or 1
	// sends all of them.
	PollInterval int
	// PollResponseSize is the size of the QoS Null response to a poll.
	PollResponseSize uint32
}

func DefaultOptions() Options {
	return Options{
		MaxStations:       4,
		EnableTxopSharing: true,
		EnableUlOfdma:     true,
		EnableBsrp:        true,
		UlPsduSize:        500,
		MaxCredits:        time.Second,
		DownlinkPolicy:    allocation.EqualSplit,
		UplinkPolicy:      allocation.EqualSplit,
		DutyCycle:         DutyCycle{Downlink: 10, Uplink: 1},
		PollResponseSize:  288,
	}
}

func (o Options) Validate() error {
	if o.MaxStations < 1 || o.MaxStations > 74 {
		return fmt.Errorf("max stations must be in 1..74, got %d", o.MaxStations)
	}
	if o.UlPsduSize == 0 {
		return fmt.Errorf("uplink PSDU size must be greater than 0")
	}
	if o.MaxCredits <= 0 {
		return fmt.Errorf("max credits must be greater than 0")
	}
	if o.DutyCycle.Enabled && (o.DutyCycle.Downlink < 1 || o.DutyCycle.Uplink < 1) {
		return fmt.Errorf("duty cycle counts must be at least 1, got %d:%d", o.DutyCycle.Downlink, o.DutyCycle.Uplink)
	}
	if o.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative")
	}
	if o.PollResponseSize == 0 {
		return fmt.Errorf("poll response size must be greater than 0")
	}
	return nil
}
