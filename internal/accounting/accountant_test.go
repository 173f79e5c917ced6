package accounting

import (
	"testing"
	"time"

	"mu-scheduler/internal/station"
	"mu-scheduler/internal/wifi"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newList(t *testing.T, n int) *station.List {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	r := station.NewRegistry(logger)
	for aid := uint16(1); aid <= uint16(n); aid++ {
		r.Add(aid, wifi.AddressForAID(aid))
	}
	return r.Uplink()
}

func quietAccountant(max time.Duration) *CreditAccountant {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewCreditAccountant(max, logger)
}

func sumCredits(l *station.List) float64 {
	total := 0.0
	for _, s := range l.Stations() {
		total += s.Credits
	}
	return total
}

func TestAccrueConservesCredits(t *testing.T) {
	a := quietAccountant(time.Second)
	l := newList(t, 4)
	for i, s := range l.Stations() {
		s.Credits = float64(i * 100)
	}
	before := sumCredits(l)
	for _, d := range []time.Duration{0, 3 * time.Microsecond, 1200 * time.Microsecond, 5484 * time.Microsecond} {
		a.UpdateWithoutDebit(l, d)
		after := sumCredits(l)
		assert.InDelta(t, before+float64(d.Microseconds()), after, 1e-6, "duration %s", d)
		before = after
	}
}

func TestUpdateDebitsGrantedStationsByBandwidth(t *testing.T) {
	a := quietAccountant(time.Second)
	l := newList(t, 4)
	d := 1000 * time.Microsecond

	// 106-tone (8 MHz) to station 1, 52-tone (4 MHz) to station 2
	a.Update(l, d, Charges{
		wifi.AddressForAID(1): 8,
		wifi.AddressForAID(2): 4,
	})

	got := map[uint16]float64{}
	for _, s := range l.Stations() {
		got[s.AID] = s.Credits
	}
	assert.InDelta(t, 250-1000.0*8/12, got[1], 1e-9)
	assert.InDelta(t, 250-1000.0*4/12, got[2], 1e-9)
	assert.InDelta(t, 250, got[3], 1e-9)
	assert.InDelta(t, 250, got[4], 1e-9)
	// debits equal the grant duration in total
	assert.InDelta(t, 0, sumCredits(l), 1e-9)

	order := l.Stations()
	require.Len(t, order, 4)
	assert.Equal(t, uint16(3), order[0].AID)
	assert.Equal(t, uint16(4), order[1].AID)
	assert.Equal(t, uint16(2), order[2].AID)
	assert.Equal(t, uint16(1), order[3].AID)
}

func TestAccrueClampsToMaximum(t *testing.T) {
	a := quietAccountant(500 * time.Microsecond)
	l := newList(t, 2)
	a.UpdateWithoutDebit(l, 4*time.Millisecond)
	for _, s := range l.Stations() {
		assert.Equal(t, 500.0, s.Credits)
	}
}

func TestDebitIsNotClamped(t *testing.T) {
	a := quietAccountant(time.Second)
	l := newList(t, 2)
	a.Update(l, 2*time.Millisecond, Charges{wifi.AddressForAID(1): 20})
	s, ok := l.Find(wifi.AddressForAID(1))
	require.True(t, ok)
	assert.InDelta(t, 1000-2000, s.Credits, 1e-9)
}

func TestDefaultMaxCredits(t *testing.T) {
	a := quietAccountant(0)
	assert.Equal(t, 1e6, a.MaxCredits())
}
