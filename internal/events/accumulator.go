// Package events collects sparse gameplay notifications between ticks.
package events

import (
	"fmt"
	"sort"

	"tuw-telemetry/internal/wire"
)

// DefaultFlagBudget bounds the encoded size of the flag changes kept per
// drain window so the flag sub-record fits its u16 length.
const DefaultFlagBudget = 60000

// Event is a single notification kind backed by one transient bit.
type Event int

const (
	CollectedBerry Event = iota
	CollectedSeedSet
	CollectedKey
	UsedKey
	CollectedTape
	CollectedHeart
	GainedFollower
	RespawnPointChanged
	FlagChanged
	DashBlockRemoved
	CutsceneStarted
	LoadCountIncreased
	PlayerSpawned
	TextboxTriggered
	ClutterSwitchPressed
	numEvents
)

type bit struct {
	state bool // false selects the collection byte
	mask  byte
	name  string
}

var bits = [numEvents]bit{
	CollectedBerry:       {false, wire.CollectedBerry, "collected_berry"},
	CollectedSeedSet:     {false, wire.CollectedSeedSet, "collected_seed_set"},
	CollectedKey:         {false, wire.CollectedKey, "collected_key"},
	UsedKey:              {false, wire.UsedKey, "used_key"},
	CollectedTape:        {false, wire.CollectedTape, "collected_tape"},
	CollectedHeart:       {false, wire.CollectedHeart, "collected_heart"},
	GainedFollower:       {false, wire.GainedFollower, "gained_follower"},
	RespawnPointChanged:  {true, wire.RespawnPointChanged, "respawn_point_changed"},
	FlagChanged:          {true, wire.FlagChanged, "flag_changed"},
	DashBlockRemoved:     {true, wire.DashBlockRemoved, "dash_block_removed"},
	CutsceneStarted:      {true, wire.CutsceneStarted, "cutscene_started"},
	LoadCountIncreased:   {true, wire.LoadCountIncreased, "load_count_increased"},
	PlayerSpawned:        {true, wire.PlayerSpawned, "player_spawned"},
	TextboxTriggered:     {true, wire.TextboxTriggered, "textbox_triggered"},
	ClutterSwitchPressed: {true, wire.ClutterSwitchPressed, "clutter_switch_pressed"},
}

func (e Event) String() string {
	if e < 0 || e >= numEvents {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return bits[e].name
}

// ParseEvent maps a snake_case event name to its Event.
func ParseEvent(name string) (Event, error) {
	for i, b := range bits {
		if b.name == name {
			return Event(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", name)
}

// Names lists every event name in declaration order.
func Names() []string {
	out := make([]string, 0, numEvents)
	for _, b := range bits {
		out = append(out, b.name)
	}
	return out
}

// Drained is what one tick takes out of the accumulator.
type Drained struct {
	Transient wire.TransientEvent
	Changes   []wire.FlagChange
	Dropped   int // flag records refused by the budget this window
}

// Accumulator turns notifications into the transient bitfields and the
// flag change list. It is not safe for concurrent use; notifications and
// Drain run on the sampling goroutine.
type Accumulator struct {
	transient wire.TransientEvent
	changes   []wire.FlagChange
	used      int
	budget    int
	closed    bool
	dropped   int
	flags     map[string]bool
}

// New returns an accumulator with the given flag budget in bytes.
// A non-positive budget selects DefaultFlagBudget.
func New(budget int) *Accumulator {
	if budget <= 0 {
		budget = DefaultFlagBudget
	}
	return &Accumulator{budget: budget, flags: make(map[string]bool)}
}

// Mark records that ev happened at least once since the last drain.
func (a *Accumulator) Mark(ev Event) {
	if ev < 0 || ev >= numEvents {
		return
	}
	b := bits[ev]
	if b.state {
		a.transient.State |= b.mask
	} else {
		a.transient.Collection |= b.mask
	}
}

// SetFlag stores value for name and reports whether it was a transition.
// A transition sets flag_changed and appends a change record while the
// window's budget allows it. Once one record is refused, the rest of the
// window is refused too so the kept list is always a prefix.
func (a *Accumulator) SetFlag(name string, value bool) bool {
	if a.flags[name] == value {
		return false
	}
	a.flags[name] = value
	a.transient.State |= wire.FlagChanged

	rec := wire.FlagChange{Name: name, Value: value}
	size := rec.Size()
	if a.closed || a.used+size > a.budget {
		a.closed = true
		a.dropped++
		return true
	}
	a.used += size
	a.changes = append(a.changes, rec)
	return true
}

// Flag returns the stored value for name. Unknown flags are false.
func (a *Accumulator) Flag(name string) bool {
	return a.flags[name]
}

// LoadFlags seeds stored values without producing change records, as when
// a saved session is resumed.
func (a *Accumulator) LoadFlags(values map[string]bool) {
	for k, v := range values {
		a.flags[k] = v
	}
}

// SetFlags returns the names currently stored as true, sorted.
func (a *Accumulator) SetFlags() []string {
	var out []string
	for k, v := range a.flags {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Pending reports whether a drain would carry anything.
func (a *Accumulator) Pending() bool {
	return a.transient.Any() || len(a.changes) > 0
}

// Used returns the encoded bytes admitted in the current window.
func (a *Accumulator) Used() int { return a.used }

// Drain hands over the window's contents and starts a new window. The
// returned slice is owned by the caller.
func (a *Accumulator) Drain() Drained {
	d := Drained{Transient: a.transient, Changes: a.changes, Dropped: a.dropped}
	a.transient = wire.TransientEvent{}
	a.changes = nil
	a.used = 0
	a.closed = false
	a.dropped = 0
	return d
}
