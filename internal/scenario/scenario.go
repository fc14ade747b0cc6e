package scenario

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"tuw-telemetry/internal/events"
)

// Script drives the synthetic host: a session description plus steps keyed
// by tick number.
type Script struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	AreaID      string `yaml:"area_id"`
	DisplayName string `yaml:"display_name,omitempty"`
	Room        string `yaml:"room,omitempty"`
	// Ticks stops the run after this many ticks. Zero runs until cancelled.
	Ticks int    `yaml:"ticks,omitempty"`
	Seed  int64  `yaml:"seed,omitempty"`
	Steps []Step `yaml:"steps"`
}

// Step is applied once, before the controller samples tick Tick.
type Step struct {
	Tick   int             `yaml:"tick"`
	Events []string        `yaml:"events,omitempty"`
	Flags  map[string]bool `yaml:"flags,omitempty"`
	// FlagBurst sets that many distinct generated flags in one tick.
	FlagBurst int    `yaml:"flag_burst,omitempty"`
	Death     bool   `yaml:"death,omitempty"`
	Pause     int    `yaml:"pause,omitempty"`  // ticks spent paused
	Absent    int    `yaml:"absent,omitempty"` // ticks without an actor
	Room      string `yaml:"room,omitempty"`
	Marker    string `yaml:"marker,omitempty"`
	Exit      bool   `yaml:"exit,omitempty"`
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks event names and tick numbers and sorts the steps by tick.
func (s *Script) Validate() error {
	var errs []error
	if s.Ticks < 0 {
		errs = append(errs, fmt.Errorf("ticks must not be negative"))
	}
	for i, st := range s.Steps {
		if st.Tick < 0 {
			errs = append(errs, fmt.Errorf("step %d: negative tick %d", i, st.Tick))
		}
		if s.Ticks > 0 && st.Tick >= s.Ticks {
			errs = append(errs, fmt.Errorf("step %d: tick %d beyond end %d", i, st.Tick, s.Ticks))
		}
		if st.Pause < 0 || st.Absent < 0 || st.FlagBurst < 0 {
			errs = append(errs, fmt.Errorf("step %d: negative count", i))
		}
		for _, name := range st.Events {
			if _, err := events.ParseEvent(name); err != nil {
				errs = append(errs, fmt.Errorf("step %d: %w", i, err))
			}
		}
	}
	sort.SliceStable(s.Steps, func(i, j int) bool { return s.Steps[i].Tick < s.Steps[j].Tick })
	return errors.Join(errs...)
}

// StepsAt returns the steps scheduled for tick. Steps must be sorted, which
// Load and Validate guarantee.
func (s *Script) StepsAt(tick int) []Step {
	lo := sort.Search(len(s.Steps), func(i int) bool { return s.Steps[i].Tick >= tick })
	hi := lo
	for hi < len(s.Steps) && s.Steps[hi].Tick == tick {
		hi++
	}
	return s.Steps[lo:hi]
}

// Done reports whether tick is past the end of a bounded script.
func (s *Script) Done(tick int) bool {
	return s.Ticks > 0 && tick >= s.Ticks
}
