package scenario

// BuiltIn returns the predefined scripts selectable by name.
func BuiltIn() map[string]Script {
	return map[string]Script{
		"first-steps": {
			Name:        "First Steps",
			Description: "A thousand ticks through two rooms with one death halfway.",
			AreaID:      "Celeste/0-Intro",
			DisplayName: "Prologue",
			Room:        "0",
			Ticks:       1000,
			Seed:        1,
			Steps: []Step{
				{Tick: 0, Events: []string{"player_spawned"}},
				{Tick: 120, Events: []string{"collected_berry"}, Flags: map[string]bool{"bridge_crossed": true}},
				{Tick: 300, Room: "1", Events: []string{"respawn_point_changed"}},
				{Tick: 420, Marker: "split"},
				{Tick: 500, Death: true},
				{Tick: 530, Events: []string{"player_spawned"}},
				{Tick: 700, Events: []string{"textbox_triggered", "cutscene_started"}},
				{Tick: 820, Flags: map[string]bool{"bridge_crossed": false}},
			},
		},
		"flag-storm": {
			Name:        "Flag Storm",
			Description: "Flip enough flags in one tick to exhaust the per-tick budget.",
			AreaID:      "Celeste/1-ForsakenCity",
			DisplayName: "Forsaken City",
			Room:        "a-00",
			Ticks:       240,
			Seed:        2,
			Steps: []Step{
				{Tick: 0, Events: []string{"player_spawned"}},
				{Tick: 60, FlagBurst: 8000},
				{Tick: 61, FlagBurst: 40},
				{Tick: 200, Exit: true},
			},
		},
		"idle-pause": {
			Name:        "Idle Pause",
			Description: "Sit in the pause menu long enough for the stall guard to flush.",
			AreaID:      "Celeste/2-OldSite",
			DisplayName: "Old Site",
			Room:        "start",
			Ticks:       4200,
			Seed:        3,
			Steps: []Step{
				{Tick: 0, Events: []string{"player_spawned"}},
				{Tick: 100, Pause: 3900},
				{Tick: 4050, Absent: 60},
			},
		},
	}
}
