package scheduler

import (
	"testing"
	"time"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/wifi"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, mac *fakeMAC, opts Options, observers ...Observer) *Scheduler {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	s, err := New(opts, mac, newFakeTiming(), logger, observers...)
	require.NoError(t, err)
	for i, addr := range mac.order {
		s.NotifyStationAssociated(uint16(i+1), addr)
	}
	return s
}

func stationsWithFrames(width wifi.ChannelWidth, n int, size uint32) *fakeMAC {
	mac := newFakeMAC(width)
	for i := 0; i < n; i++ {
		addr := mac.addStation(uint16(i + 1))
		mac.enqueue(addr, 0, size)
	}
	return mac
}

func unlimited(ac wifi.AccessCategory) Opportunity {
	return Opportunity{AC: ac}
}

func TestDownlinkFourStationsShare52ToneRUs(t *testing.T) {
	mac := stationsWithFrames(wifi.Width20, 4, 1000)
	s := newTestScheduler(t, mac, DefaultOptions())

	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, DownlinkMU, d.Format)
	require.Len(t, d.Receivers, 4)
	for i, r := range d.Receivers {
		assert.Equal(t, uint16(i+1), r.AID)
		assert.Equal(t, allocation.RU{Class: allocation.RU52, Index: i + 1}, r.RU)
		require.NotNil(t, r.Frame)
	}
	assert.Equal(t, 500*time.Microsecond, d.Duration)
	assert.Empty(t, d.Truncated)
	assert.Equal(t, DownlinkMU, s.LastTxFormat())

	// equal bandwidth shares: what is accrued is paid back
	var sum float64
	for _, st := range s.Registry().Downlink(wifi.BestEffort).Stations() {
		sum += st.Credits
	}
	assert.InDelta(t, 0, sum, 1e-9)
}

func TestUplinkNineStationsWithoutPolling(t *testing.T) {
	mac := newFakeMAC(wifi.Width20)
	for i := 0; i < 9; i++ {
		addr := mac.addStation(uint16(i + 1))
		mac.stations[addr].status = wifi.BufferStatusUnknown
	}
	opts := DefaultOptions()
	opts.EnableBsrp = false
	opts.MaxStations = 9
	s := newTestScheduler(t, mac, opts)

	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, UplinkData, d.Format)
	assert.Equal(t, TriggerData, d.Trigger)
	require.Len(t, d.Receivers, 9)
	for _, r := range d.Receivers {
		assert.Equal(t, allocation.RU26, r.RU.Class)
		assert.True(t, r.Demand.Estimated)
	}
	assert.Empty(t, d.Truncated)
	assert.Equal(t, 9, d.Plan.UnitsUsed)
	assert.Equal(t, 500*time.Microsecond, d.Duration)
}

func TestSingleStationGetsFullChannel(t *testing.T) {
	mac := stationsWithFrames(wifi.Width80, 1, 1000)
	s := newTestScheduler(t, mac, DefaultOptions())

	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, DownlinkMU, d.Format)
	require.Len(t, d.Receivers, 1)
	assert.Equal(t, allocation.RU{Class: allocation.RU996, Index: 1}, d.Receivers[0].RU)
}

func TestShortGrantIsNoTransmissionWithoutSideEffects(t *testing.T) {
	mac := newFakeMAC(wifi.Width20)
	for i := 0; i < 4; i++ {
		addr := mac.addStation(uint16(i + 1))
		mac.stations[addr].status = wifi.BufferStatusUnknown
	}
	opts := DefaultOptions()
	opts.EnableBsrp = false
	opts.DutyCycle = DutyCycle{Enabled: true, Downlink: 1, Uplink: 1}
	s := newTestScheduler(t, mac, opts)

	// exhaust both counters so the cycle starts with a refill
	s.DutyCycle().RecordDownlink()
	s.DutyCycle().RecordUplink()
	before := s.Registry().Balances()

	// 200us of grant left after the trigger, 250us needed for 500 bytes on a 52-tone RU
	d, err := s.SelectTxFormat(Opportunity{AC: wifi.BestEffort, Available: 300 * time.Microsecond, Limited: true})
	require.NoError(t, err)
	require.Equal(t, NoTransmission, d.Format)
	assert.NotEmpty(t, d.Reason)

	assert.Equal(t, before, s.Registry().Balances())
	assert.Equal(t, SingleUser, s.LastTxFormat())
	dl, ul := s.DutyCycle().Remaining()
	assert.Equal(t, 0, dl)
	assert.Equal(t, 0, ul)
	assert.Equal(t, uint64(1), s.Stats()[NoTransmission])
}

func TestUnboundedDemandTakesMaximumGrant(t *testing.T) {
	mac := newFakeMAC(wifi.Width20)
	for i := 0; i < 2; i++ {
		addr := mac.addStation(uint16(i + 1))
		mac.stations[addr].status = wifi.BufferStatusUnbounded
	}
	opts := DefaultOptions()
	opts.EnableBsrp = false
	s := newTestScheduler(t, mac, opts)

	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, UplinkData, d.Format)
	assert.Equal(t, newFakeTiming().MaxPPDUDuration(), d.Duration)
}

func TestEmptyBuffersFallThroughToDownlink(t *testing.T) {
	mac := newFakeMAC(wifi.Width20)
	mac.addStation(1)
	opts := DefaultOptions()
	opts.EnableBsrp = false
	s := newTestScheduler(t, mac, opts)

	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	assert.Equal(t, SingleUser, d.Format)
}

func formatsOf(t *testing.T, s *Scheduler, n int) []TxFormat {
	t.Helper()
	var out []TxFormat
	for i := 0; i < n; i++ {
		d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
		require.NoError(t, err)
		out = append(out, d.Format)
	}
	return out
}

func TestFormatAlternation(t *testing.T) {
	mac := stationsWithFrames(wifi.Width20, 2, 1000)
	for _, st := range mac.stations {
		st.status = 10
	}
	obs := &recordingObserver{}
	s := newTestScheduler(t, mac, DefaultOptions(), obs)

	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, DownlinkMU, d.Format)

	d, err = s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, UplinkPoll, d.Format)
	assert.Equal(t, TriggerPoll, d.Trigger)
	require.Len(t, d.Receivers, 2)
	assert.Equal(t, allocation.RU106, d.Receivers[0].RU.Class)
	assert.Equal(t, 70*time.Microsecond, d.Duration)

	d, err = s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, UplinkData, d.Format)
	assert.Equal(t, 627*time.Microsecond, d.Duration)

	d, err = s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, DownlinkMU, d.Format)

	assert.Equal(t, []TxFormat{DownlinkMU, UplinkPoll, UplinkData, DownlinkMU}, obs.formats)
	assert.Equal(t, uint64(2), s.Stats()[DownlinkMU])
}

func TestPollDoesNotDebitCredits(t *testing.T) {
	mac := stationsWithFrames(wifi.Width20, 2, 1000)
	s := newTestScheduler(t, mac, DefaultOptions())
	formatsOf(t, s, 2)
	require.Equal(t, UplinkPoll, s.LastTxFormat())

	for _, st := range s.Registry().Uplink().Stations() {
		assert.InDelta(t, 35, st.Credits, 1e-9)
	}
}

func TestDutyCycleAndPollSkipPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		duty     DutyCycle
		interval int
		want     []TxFormat
	}{
		{
			name:     "gate only",
			duty:     DutyCycle{Enabled: true, Downlink: 3, Uplink: 1},
			interval: 0,
			want:     []TxFormat{DownlinkMU, UplinkPoll, UplinkData, DownlinkMU, DownlinkMU, UplinkPoll},
		},
		{
			name:     "gate and poll skipping",
			duty:     DutyCycle{Enabled: true, Downlink: 2, Uplink: 1},
			interval: 2,
			want:     []TxFormat{DownlinkMU, DownlinkMU, UplinkPoll, UplinkData, DownlinkMU, DownlinkMU},
		},
		{
			name:     "gate disabled",
			duty:     DutyCycle{Enabled: false, Downlink: 3, Uplink: 1},
			interval: 0,
			want:     []TxFormat{DownlinkMU, UplinkPoll, UplinkData, DownlinkMU, UplinkPoll, UplinkData},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mac := stationsWithFrames(wifi.Width20, 2, 1000)
			for _, st := range mac.stations {
				st.status = 10
			}
			opts := DefaultOptions()
			opts.DutyCycle = tt.duty
			opts.PollInterval = tt.interval
			s := newTestScheduler(t, mac, opts)

			assert.Equal(t, tt.want, formatsOf(t, s, len(tt.want)))
		})
	}
}

func TestForceDownlinkOfdma(t *testing.T) {
	for _, force := range []bool{false, true} {
		mac := newFakeMAC(wifi.Width20)
		mac.addStation(1)
		mac.addStation(2)
		opts := DefaultOptions()
		opts.EnableUlOfdma = false
		opts.ForceDlOfdma = force
		s := newTestScheduler(t, mac, opts)

		d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
		require.NoError(t, err)
		if force {
			assert.Equal(t, NoTransmission, d.Format)
		} else {
			assert.Equal(t, SingleUser, d.Format)
		}
	}
}

func TestSingleUserForLegacyReceiver(t *testing.T) {
	mac := newFakeMAC(wifi.Width20)
	legacy := mac.addStation(1)
	mac.stations[legacy].he = false
	mac.enqueue(legacy, 0, 1000)
	he := mac.addStation(2)
	mac.enqueue(he, 0, 1000)
	s := newTestScheduler(t, mac, DefaultOptions())

	assert.False(t, s.Registry().Uplink().Contains(legacy))
	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	assert.Equal(t, SingleUser, d.Format)
	assert.Equal(t, SingleUser, s.LastTxFormat())
}

func TestSelectorDoesNotReorderRegistry(t *testing.T) {
	mac := newFakeMAC(wifi.Width20)
	for i, size := range []uint32{100, 300, 200} {
		addr := mac.addStation(uint16(i + 1))
		mac.enqueue(addr, 0, size)
	}
	opts := DefaultOptions()
	s := newTestScheduler(t, mac, opts)
	list := s.Registry().Downlink(wifi.BestEffort)

	sel := NewSelector(mac, newFakeTiming(), &opts)
	cands, preamble, err := sel.DownlinkCandidates(list, unlimited(wifi.BestEffort), wifi.Width20)
	require.NoError(t, err)
	assert.Equal(t, PreambleHE, preamble)

	var got []uint16
	for _, c := range cands {
		got = append(got, c.Station.AID)
	}
	assert.Equal(t, []uint16{2, 3, 1}, got)

	var order []uint16
	for _, st := range list.Stations() {
		order = append(order, st.AID)
	}
	assert.Equal(t, []uint16{1, 2, 3}, order)
}

func TestEHTPreambleSkipsLegacyStations(t *testing.T) {
	mac := newFakeMAC(wifi.Width20)
	for i, size := range []uint32{300, 200, 100} {
		addr := mac.addStation(uint16(i + 1))
		mac.enqueue(addr, 0, size)
		mac.stations[addr].eht = i != 1
	}
	s := newTestScheduler(t, mac, DefaultOptions())

	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, DownlinkMU, d.Format)
	assert.Equal(t, PreambleEHT, d.Preamble)
	require.Len(t, d.Receivers, 2)
	assert.Equal(t, uint16(1), d.Receivers[0].AID)
	assert.Equal(t, uint16(3), d.Receivers[1].AID)
}

func TestTxopSharing(t *testing.T) {
	for _, sharing := range []bool{true, false} {
		mac := newFakeMAC(wifi.Width20)
		addr := mac.addStation(1)
		mac.enqueue(addr, 5, 1000)
		opts := DefaultOptions()
		opts.EnableUlOfdma = false
		opts.EnableTxopSharing = sharing
		s := newTestScheduler(t, mac, opts)

		d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
		require.NoError(t, err)
		if !sharing {
			assert.Equal(t, SingleUser, d.Format)
			continue
		}
		require.Equal(t, DownlinkMU, d.Format)
		assert.Equal(t, uint8(5), d.Receivers[0].Frame.TID)
	}
}

func TestDownlinkCandidateMustFitTxop(t *testing.T) {
	mac := stationsWithFrames(wifi.Width20, 1, 1000)
	opts := DefaultOptions()
	opts.EnableUlOfdma = false
	s := newTestScheduler(t, mac, opts)

	// 107us on the 242-tone RU plus 100us overhead
	d, err := s.SelectTxFormat(Opportunity{AC: wifi.BestEffort, Available: 150 * time.Microsecond, Limited: true})
	require.NoError(t, err)
	assert.Equal(t, SingleUser, d.Format)

	d, err = s.SelectTxFormat(Opportunity{AC: wifi.BestEffort, Available: 250 * time.Microsecond, Limited: true})
	require.NoError(t, err)
	assert.Equal(t, DownlinkMU, d.Format)
}

func TestAssociationNotifications(t *testing.T) {
	mac := newFakeMAC(wifi.Width20)
	addr := mac.addStation(1)
	legacy := mac.addStation(2)
	mac.stations[legacy].he = false
	logger, _ := logtest.NewNullLogger()
	s, err := New(DefaultOptions(), mac, newFakeTiming(), logger)
	require.NoError(t, err)

	assert.True(t, s.NotifyStationAssociated(1, addr))
	assert.False(t, s.NotifyStationAssociated(1, addr))
	assert.False(t, s.NotifyStationAssociated(2, legacy))
	assert.Equal(t, 1, s.Registry().Len())
	for _, ac := range wifi.AccessCategories {
		assert.True(t, s.Registry().Downlink(ac).Contains(addr))
	}

	// still associated over another link
	assert.False(t, s.NotifyStationDeassociated(1, addr))
	assert.Equal(t, 1, s.Registry().Len())

	mac.stations[addr].associated = false
	assert.True(t, s.NotifyStationDeassociated(1, addr))
	assert.Equal(t, 0, s.Registry().Len())
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxStations = 0
	_, err := New(opts, newFakeMAC(wifi.Width20), newFakeTiming(), nil)
	assert.Error(t, err)
}

func TestDownlinkWeightIgnoresTIDsWithoutAgreement(t *testing.T) {
	mac := newFakeMAC(wifi.Width20)
	first := mac.addStation(1)
	second := mac.addStation(2)
	mac.enqueue(first, 0, 100)
	mac.enqueue(first, 5, 20000)
	mac.setAgreements(first, []uint8{0}, []uint8{0})
	mac.enqueue(second, 0, 5000)

	opts := DefaultOptions()
	opts.MaxStations = 1
	s := newTestScheduler(t, mac, opts)

	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, DownlinkMU, d.Format)
	require.Len(t, d.Receivers, 1)
	assert.Equal(t, uint16(2), d.Receivers[0].AID)
	assert.Equal(t, uint32(5000), d.Receivers[0].Frame.Size)
}

func TestDownlinkNeedsOriginatorAgreement(t *testing.T) {
	mac := stationsWithFrames(wifi.Width20, 3, 800)
	// agreement on a TID that has nothing queued does not count
	mac.setAgreements(mac.order[1], []uint8{3}, nil)
	s := newTestScheduler(t, mac, DefaultOptions())

	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, DownlinkMU, d.Format)
	var aids []uint16
	for _, r := range d.Receivers {
		aids = append(aids, r.AID)
	}
	assert.Equal(t, []uint16{1, 3}, aids)
}

func TestDownlinkWithoutAnyAgreementFallsBackToSingleUser(t *testing.T) {
	mac := stationsWithFrames(wifi.Width20, 2, 800)
	for _, addr := range mac.order {
		mac.setAgreements(addr, nil, nil)
	}
	s := newTestScheduler(t, mac, DefaultOptions())

	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	assert.Equal(t, SingleUser, d.Format)
}

func TestUplinkNeedsRecipientAgreement(t *testing.T) {
	mac := newFakeMAC(wifi.Width20)
	for i := 0; i < 3; i++ {
		addr := mac.addStation(uint16(i + 1))
		mac.stations[addr].status = wifi.BufferStatusUnknown
	}
	mac.setAgreements(mac.order[1], []uint8{0, 1, 2, 3, 4, 5, 6, 7}, nil)
	mac.setAgreements(mac.order[2], nil, []uint8{6})
	opts := DefaultOptions()
	opts.EnableBsrp = false
	s := newTestScheduler(t, mac, opts)

	d, err := s.SelectTxFormat(unlimited(wifi.BestEffort))
	require.NoError(t, err)
	require.Equal(t, UplinkData, d.Format)
	var aids []uint16
	for _, r := range d.Receivers {
		aids = append(aids, r.AID)
	}
	assert.Equal(t, []uint16{1, 3}, aids)
}
