package scheduler

import "testing"

func TestDutyCycleGateRatio(t *testing.T) {
	g := NewDutyCycleGate(DutyCycle{Enabled: true, Downlink: 3, Uplink: 1})

	// one uplink is allowed, then uplink waits until three downlinks refill it
	g.Begin()
	if !g.AllowUplink() {
		t.Fatalf("fresh gate must allow uplink")
	}
	g.RecordUplink()
	for i := 0; i < 3; i++ {
		if g.Begin() {
			t.Fatalf("refilled too early after %d downlinks", i)
		}
		if g.AllowUplink() {
			t.Fatalf("uplink allowed with an exhausted counter")
		}
		g.RecordDownlink()
	}
	if !g.Begin() {
		t.Fatalf("expected refill once both counters are exhausted")
	}
	if dl, ul := g.Remaining(); dl != 3 || ul != 1 {
		t.Fatalf("remaining = %d:%d after refill", dl, ul)
	}
}

func TestDutyCycleGateDisabledNeverBlocks(t *testing.T) {
	g := NewDutyCycleGate(DutyCycle{Downlink: 10, Uplink: 1})
	for i := 0; i < 5; i++ {
		g.Begin()
		if !g.AllowUplink() {
			t.Fatalf("disabled gate blocked uplink at step %d", i)
		}
		g.RecordUplink()
	}
}

func TestDutyCycleGateDownlinkCanOverdraw(t *testing.T) {
	g := NewDutyCycleGate(DutyCycle{Enabled: true, Downlink: 1, Uplink: 1})
	g.RecordDownlink()
	g.RecordDownlink()
	if g.Begin() {
		t.Fatalf("must not refill while uplink has units")
	}
	if !g.AllowUplink() {
		t.Fatalf("uplink must stay allowed")
	}
	g.RecordUplink()
	if !g.Begin() {
		t.Fatalf("expected refill")
	}
}

func TestPollSkipper(t *testing.T) {
	p := newPollSkipper(3)
	got := []bool{p.admit(), p.admit(), p.admit(), p.admit(), p.admit(), p.admit()}
	want := []bool{false, false, true, false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("admit sequence = %v, want %v", got, want)
		}
	}
	every := newPollSkipper(0)
	for i := 0; i < 3; i++ {
		if !every.admit() {
			t.Fatalf("interval 0 must admit every poll")
		}
	}
}
