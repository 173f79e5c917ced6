package phy

import (
	"math"
	"testing"
	"time"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/scheduler"
	"mu-scheduler/internal/wifi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sta = wifi.AddressForAID(1)

func TestTxDurationSymbols(t *testing.T) {
	m, err := NewHEModel(0)
	require.NoError(t, err)

	// MCS 0 on a 26-tone RU carries 12 bits per symbol: 100 bytes need 69 symbols
	ru := allocation.RU{Class: allocation.RU26, Index: 1}
	assert.Equal(t, uint64(12), m.BitsPerSymbol(ru, sta))
	assert.Equal(t, hePreamble+69*symbolDuration, m.TxDuration(100, ru, wifi.Width20, sta))
}

func TestTxDurationShrinksWithLargerRUs(t *testing.T) {
	m, err := NewHEModel(7)
	require.NoError(t, err)

	var prev time.Duration = math.MaxInt64
	for _, c := range allocation.ToneClasses {
		d := m.TxDuration(5000, allocation.RU{Class: c, Index: 1}, wifi.Width160, sta)
		assert.Less(t, d, prev, "class %s", c)
		prev = d
	}
}

func TestTxDurationHandlesUnboundedSize(t *testing.T) {
	m, err := NewHEModel(0)
	require.NoError(t, err)

	d := m.TxDuration(math.MaxUint32, allocation.RU{Class: allocation.RU26, Index: 1}, wifi.Width20, sta)
	assert.Greater(t, d, MaxPPDUDuration)
}

func TestStationMCSOverride(t *testing.T) {
	m, err := NewHEModel(0)
	require.NoError(t, err)
	fast := wifi.AddressForAID(2)
	require.NoError(t, m.SetStationMCS(fast, 11))
	assert.Error(t, m.SetStationMCS(fast, 12))

	ru := allocation.RU{Class: allocation.RU242, Index: 1}
	assert.Less(t, m.TxDuration(1500, ru, wifi.Width20, fast), m.TxDuration(1500, ru, wifi.Width20, sta))
}

func TestPayloadBytesRoundTrip(t *testing.T) {
	m, err := NewHEModel(5)
	require.NoError(t, err)
	ru := allocation.RU{Class: allocation.RU106, Index: 1}

	for _, size := range []uint32{1, 500, 1500, 12000} {
		d := m.TxDuration(size, ru, wifi.Width20, sta)
		assert.GreaterOrEqual(t, m.PayloadBytes(d, ru, sta), uint64(size))
	}
	assert.Zero(t, m.PayloadBytes(hePreamble, ru, sta))
}

func TestOverheads(t *testing.T) {
	m, err := NewHEModel(0)
	require.NoError(t, err)

	poll := m.TriggerOverhead(scheduler.TriggerPoll, 4, wifi.Width20)
	data := m.TriggerOverhead(scheduler.TriggerData, 4, wifi.Width20)
	assert.Greater(t, data, poll)
	assert.Greater(t, m.DownlinkOverhead(8, wifi.Width20), m.DownlinkOverhead(1, wifi.Width20))
	assert.Equal(t, MaxPPDUDuration, m.MaxPPDUDuration())
}

func TestNewHEModelRejectsUnknownMCS(t *testing.T) {
	_, err := NewHEModel(MaxMCS + 1)
	assert.Error(t, err)
}
