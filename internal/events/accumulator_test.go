package events

import (
	"fmt"
	"testing"

	"tuw-telemetry/internal/wire"
)

func TestMarkCollapses(t *testing.T) {
	a := New(0)
	a.Mark(CollectedBerry)
	a.Mark(CollectedBerry)
	a.Mark(CutsceneStarted)
	d := a.Drain()
	if d.Transient.Collection != wire.CollectedBerry {
		t.Fatalf("collection = %#02x", d.Transient.Collection)
	}
	if d.Transient.State != wire.CutsceneStarted {
		t.Fatalf("state = %#02x", d.Transient.State)
	}
	if a.Pending() {
		t.Fatalf("drain should reset")
	}
	if again := a.Drain(); again.Transient.Any() {
		t.Fatalf("bits read twice: %+v", again.Transient)
	}
}

func TestEveryEventHasOneBit(t *testing.T) {
	seen := map[[2]byte]Event{}
	for ev := Event(0); ev < numEvents; ev++ {
		a := New(0)
		a.Mark(ev)
		d := a.Drain()
		key := [2]byte{d.Transient.Collection, d.Transient.State}
		if n := popcount(key[0]) + popcount(key[1]); n != 1 {
			t.Fatalf("%s sets %d bits", ev, n)
		}
		if prev, ok := seen[key]; ok {
			t.Fatalf("%s and %s share a bit", ev, prev)
		}
		seen[key] = ev
		parsed, err := ParseEvent(ev.String())
		if err != nil || parsed != ev {
			t.Fatalf("ParseEvent(%q) = %v, %v", ev.String(), parsed, err)
		}
	}
}

func popcount(b byte) int {
	n := 0
	for ; b != 0; b &= b - 1 {
		n++
	}
	return n
}

func TestParseEventUnknown(t *testing.T) {
	if _, err := ParseEvent("jumped_twice"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSetFlagIdempotent(t *testing.T) {
	a := New(0)
	if !a.SetFlag("door", true) {
		t.Fatal("first set should transition")
	}
	if a.SetFlag("door", true) {
		t.Fatal("repeat should be a no-op")
	}
	d := a.Drain()
	if len(d.Changes) != 1 || d.Changes[0] != (wire.FlagChange{Name: "door", Value: true}) {
		t.Fatalf("changes = %+v", d.Changes)
	}
	if d.Transient.State&wire.FlagChanged == 0 {
		t.Fatal("flag_changed bit not set")
	}

	if a.SetFlag("door", true) {
		t.Fatal("value survives drain")
	}
	if a.Pending() {
		t.Fatal("no-op set must not set bits")
	}
	if a.SetFlag("unknown", false) {
		t.Fatal("unknown flags start false")
	}
}

func TestLoadFlagsSeedsWithoutRecords(t *testing.T) {
	a := New(0)
	a.LoadFlags(map[string]bool{"cassette": true, "other": false})
	if a.Pending() {
		t.Fatal("seeding produced records")
	}
	if !a.Flag("cassette") {
		t.Fatal("seeded value missing")
	}
	a.SetFlag("cassette", false)
	if d := a.Drain(); len(d.Changes) != 1 || d.Changes[0].Value {
		t.Fatalf("changes = %+v", d.Changes)
	}
	if got := a.SetFlags(); len(got) != 0 {
		t.Fatalf("set flags = %v", got)
	}
}

func TestBudgetBoundary(t *testing.T) {
	// Each record is 8 name bytes + terminator + state = 10 bytes.
	a := New(DefaultFlagBudget)
	admitted := 0
	for i := 0; ; i++ {
		name := fmt.Sprintf("f%07d", i)
		a.SetFlag(name, true)
		if a.Used() == admitted*10 {
			break
		}
		admitted++
	}
	if admitted != DefaultFlagBudget/10 {
		t.Fatalf("admitted %d records, want %d", admitted, DefaultFlagBudget/10)
	}
	if a.Used() != DefaultFlagBudget {
		t.Fatalf("used = %d", a.Used())
	}

	// Later changes in the window are dropped even when small.
	a.SetFlag("z", true)
	d := a.Drain()
	if len(d.Changes) != admitted {
		t.Fatalf("kept %d records", len(d.Changes))
	}
	if d.Dropped != 2 {
		t.Fatalf("dropped = %d", d.Dropped)
	}
	if d.Changes[0].Name != "f0000000" {
		t.Fatalf("oldest record lost: %q", d.Changes[0].Name)
	}
	if d.Transient.State&wire.FlagChanged == 0 {
		t.Fatal("bit must stay set when detail is dropped")
	}
	if !a.Flag("z") {
		t.Fatal("value must be stored even when the record is dropped")
	}

	// A fresh window admits again.
	a.SetFlag("z", false)
	if d := a.Drain(); len(d.Changes) != 1 {
		t.Fatalf("new window changes = %d", len(d.Changes))
	}
}

func TestBudgetExactFit(t *testing.T) {
	a := New(12)
	a.SetFlag("abcdefghij", true) // 12 bytes
	if a.Used() != 12 {
		t.Fatalf("used = %d", a.Used())
	}
	a.SetFlag("a", true)
	if d := a.Drain(); len(d.Changes) != 1 || d.Dropped != 1 {
		t.Fatalf("drained %+v", d)
	}
}

func TestDrainTransfersOwnership(t *testing.T) {
	a := New(0)
	a.SetFlag("a", true)
	first := a.Drain()
	a.SetFlag("b", true)
	if first.Changes[0].Name != "a" {
		t.Fatalf("drained slice modified: %+v", first.Changes)
	}
}
