package scenario

import (
	"strings"
	"testing"

	"tuw-telemetry/internal/events"
)

func TestLoadScenario(t *testing.T) {
	sc, err := Load("testdata/simple.yaml")
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	if sc.Name != "example" {
		t.Fatalf("unexpected name %s", sc.Name)
	}
	if sc.Description != "basic test scenario" {
		t.Fatalf("unexpected description %s", sc.Description)
	}
	if sc.AreaID != "Celeste/1-ForsakenCity" || sc.Ticks != 100 {
		t.Fatalf("unexpected header %+v", sc)
	}
	if len(sc.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(sc.Steps))
	}
	for i := 1; i < len(sc.Steps); i++ {
		if sc.Steps[i-1].Tick > sc.Steps[i].Tick {
			t.Fatalf("steps not sorted: %+v", sc.Steps)
		}
	}
	if !sc.Steps[0].Flags["door_open"] {
		t.Fatalf("flags not parsed: %+v", sc.Steps[0])
	}
}

func TestLoadRejectsUnknownEvent(t *testing.T) {
	_, err := Load("testdata/bad_event.yaml")
	if err == nil || !strings.Contains(err.Error(), "collected_moon") {
		t.Fatalf("expected unknown event error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("testdata/nope.yaml"); err == nil || !strings.Contains(err.Error(), "read scenario") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]Script{
		"negative tick":  {Steps: []Step{{Tick: -1}}},
		"beyond end":     {Ticks: 10, Steps: []Step{{Tick: 10}}},
		"negative pause": {Steps: []Step{{Tick: 1, Pause: -3}}},
		"negative ticks": {Ticks: -1},
		"unknown event":  {Steps: []Step{{Events: []string{"nope"}}}},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			if err := s.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestStepsAt(t *testing.T) {
	s := Script{Steps: []Step{{Tick: 5}, {Tick: 1, Death: true}, {Tick: 5, Exit: true}, {Tick: 9}}}
	if err := s.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := s.StepsAt(1); len(got) != 1 || !got[0].Death {
		t.Fatalf("tick 1: %+v", got)
	}
	if got := s.StepsAt(5); len(got) != 2 || !got[1].Exit {
		t.Fatalf("tick 5: %+v", got)
	}
	if got := s.StepsAt(3); len(got) != 0 {
		t.Fatalf("tick 3: %+v", got)
	}
	if got := s.StepsAt(10); len(got) != 0 {
		t.Fatalf("tick 10: %+v", got)
	}
}

func TestDone(t *testing.T) {
	if (&Script{}).Done(1 << 20) {
		t.Fatal("unbounded script finished")
	}
	s := Script{Ticks: 3}
	if s.Done(2) || !s.Done(3) {
		t.Fatal("bounded script end")
	}
}

func TestBuiltInScripts(t *testing.T) {
	scripts := BuiltIn()
	for _, n := range []string{"first-steps", "flag-storm", "idle-pause"} {
		s, ok := scripts[n]
		if !ok {
			t.Fatalf("script %s not found", n)
		}
		if s.Description == "" || s.AreaID == "" {
			t.Fatalf("script %s missing description or area", n)
		}
		if err := s.Validate(); err != nil {
			t.Fatalf("script %s invalid: %v", n, err)
		}
		for _, st := range s.Steps {
			for _, ev := range st.Events {
				if _, err := events.ParseEvent(ev); err != nil {
					t.Fatalf("script %s: %v", n, err)
				}
			}
		}
	}
}
