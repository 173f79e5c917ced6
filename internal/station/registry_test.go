package station

import (
	"errors"
	"testing"

	"mu-scheduler/internal/wifi"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestRegistry() (*Registry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewRegistry(logger), hook
}

func aids(l *List) []uint16 {
	var out []uint16
	for _, s := range l.Stations() {
		out = append(out, s.AID)
	}
	return out
}

func TestRegistryAddKeepsInsertionOrder(t *testing.T) {
	r, hook := newTestRegistry()
	for aid := uint16(1); aid <= 3; aid++ {
		if !r.Add(aid, wifi.AddressForAID(aid)) {
			t.Fatalf("Add(%d) reported no change", aid)
		}
	}
	for _, ac := range wifi.AccessCategories {
		got := aids(r.Downlink(ac))
		if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
			t.Fatalf("%s order = %v", ac, got)
		}
	}
	if got := aids(r.Uplink()); len(got) != 3 {
		t.Fatalf("uplink = %v", got)
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d", r.Len())
	}
	if len(hook.AllEntries()) != 3 {
		t.Fatalf("expected one log entry per added station, got %d", len(hook.AllEntries()))
	}
}

func TestRegistryNeverDuplicates(t *testing.T) {
	r, _ := newTestRegistry()
	r.Add(1, wifi.AddressForAID(1))
	if r.Add(1, wifi.AddressForAID(1)) {
		t.Fatalf("second Add of the same station must not change the registry")
	}
	if r.Uplink().Len() != 1 || r.Downlink(wifi.Voice).Len() != 1 {
		t.Fatalf("station duplicated")
	}
}

func TestRegistryRemove(t *testing.T) {
	r, _ := newTestRegistry()
	r.Add(1, wifi.AddressForAID(1))
	r.Add(2, wifi.AddressForAID(2))
	if !r.Remove(wifi.AddressForAID(1)) {
		t.Fatalf("Remove reported no change")
	}
	if r.Remove(wifi.AddressForAID(1)) {
		t.Fatalf("second Remove must report no change")
	}
	if got := aids(r.Downlink(wifi.BestEffort)); len(got) != 1 || got[0] != 2 {
		t.Fatalf("remaining = %v", got)
	}
	if _, err := r.Lookup(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup(1) err = %v, want ErrNotFound", err)
	}
	if s, err := r.Lookup(2); err != nil || s.AID != 2 {
		t.Fatalf("Lookup(2) = %v, %v", s, err)
	}
}

func TestListSortByCreditsIsStable(t *testing.T) {
	r, _ := newTestRegistry()
	for aid := uint16(1); aid <= 4; aid++ {
		r.Add(aid, wifi.AddressForAID(aid))
	}
	l := r.Uplink()
	credits := map[uint16]float64{1: 5, 2: 10, 3: 5, 4: -1}
	for _, s := range l.Stations() {
		s.Credits = credits[s.AID]
	}
	l.SortByCredits()
	got := aids(l)
	want := []uint16{2, 1, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	// downlink lists keep their own balances
	if s, _ := r.Downlink(wifi.BestEffort).Find(wifi.AddressForAID(2)); s.Credits != 0 {
		t.Fatalf("downlink entry credits = %v, want 0", s.Credits)
	}
}
