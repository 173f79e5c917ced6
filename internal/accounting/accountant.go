package accounting

import (
	"time"

	"mu-scheduler/internal/logging"
	"mu-scheduler/internal/station"
	"mu-scheduler/internal/wifi"

	"github.com/sirupsen/logrus"
)

// DefaultMaxCredits is the credit ceiling when none is configured.
const DefaultMaxCredits = time.Second

// CreditAccountant keeps the fairness ledger of a registry list. Credits are
// expressed in microseconds of airtime.
type CreditAccountant struct {
	maxCredits float64
	logger     logrus.FieldLogger
}

func NewCreditAccountant(maxCredits time.Duration, logger logrus.FieldLogger) *CreditAccountant {
	if maxCredits <= 0 {
		maxCredits = DefaultMaxCredits
	}
	if logger == nil {
		logger = logging.GetAccountantLogger()
	}
	return &CreditAccountant{
		maxCredits: microseconds(maxCredits),
		logger:     logger,
	}
}

func (a *CreditAccountant) MaxCredits() float64 {
	return a.maxCredits
}

// Charges maps each granted station to the bandwidth, in MHz, of its RU.
type Charges map[wifi.Address]int

// Update settles a grant of duration d: every station in the list accrues
// d/N, the granted stations pay for their share of the bandwidth, and the
// list is re-sorted by descending credits.
func (a *CreditAccountant) Update(list *station.List, d time.Duration, charges Charges) {
	a.accrue(list, d)

	totalMHz := 0
	for _, mhz := range charges {
		totalMHz += mhz
	}
	if totalMHz > 0 {
		perMHz := microseconds(d) / float64(totalMHz)
		for _, s := range list.Stations() {
			if mhz, ok := charges[s.Address]; ok {
				s.Credits -= perMHz * float64(mhz)
			}
		}
	}
	list.SortByCredits()

	a.logger.WithFields(logrus.Fields{
		"list":      list.Name(),
		"duration":  d,
		"stations":  list.Len(),
		"charged":   len(charges),
		"total_mhz": totalMHz,
	}).Debug("Credits updated")
}

// UpdateWithoutDebit settles an exchange in which no station consumed data
// bandwidth, such as a buffer status poll.
func (a *CreditAccountant) UpdateWithoutDebit(list *station.List, d time.Duration) {
	a.Update(list, d, nil)
}

func (a *CreditAccountant) accrue(list *station.List, d time.Duration) {
	n := list.Len()
	if n == 0 {
		return
	}
	perStation := microseconds(d) / float64(n)
	for _, s := range list.Stations() {
		s.Credits += perStation
		if s.Credits > a.maxCredits {
			s.Credits = a.maxCredits
		}
	}
}

func microseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}
