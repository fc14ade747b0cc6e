package wire

// Every bitfield assigns its flags from bit 7 down in declaration order;
// unused trailing bits stay zero.

// ControlFlags fill ActorRecord.Control.
type ControlFlags struct {
	Dead            bool `json:"dead"`
	HasControl      bool `json:"has_control"`
	InCutscene      bool `json:"in_cutscene"`
	InTransition    bool `json:"in_transition"`
	Paused          bool `json:"paused"`
	GravityInverted bool `json:"gravity_inverted"`
}

// StatusFlags fill ActorRecord.Status.
type StatusFlags struct {
	Holding      bool `json:"holding"`
	Crouched     bool `json:"crouched"`
	FacingLeft   bool `json:"facing_left"`
	WallLeft     bool `json:"wall_left"`
	WallRight    bool `json:"wall_right"`
	CoyoteTime   bool `json:"coyote_time"`
	OnSafeGround bool `json:"on_safe_ground"`
	OnGround     bool `json:"on_ground"`
}

// ButtonFlags fill InputRecord.Buttons.
type ButtonFlags struct {
	QuickRestart bool `json:"quick_restart"`
	Pause        bool `json:"pause"`
	Escape       bool `json:"escape"`
	CrouchDash   bool `json:"crouch_dash"`
	Talk         bool `json:"talk"`
	Grab         bool `json:"grab"`
	Dash         bool `json:"dash"`
	Jump         bool `json:"jump"`
}

// DirectionFlags fill InputRecord.Directions. Markers occupy the high nibble.
type DirectionFlags struct {
	Markers [4]bool `json:"markers"`
	Up      bool    `json:"up"`
	Down    bool    `json:"down"`
	Left    bool    `json:"left"`
	Right   bool    `json:"right"`
}

// Collection event bits.
const (
	CollectedBerry byte = 1 << iota
	CollectedSeedSet
	CollectedKey
	UsedKey
	CollectedTape
	CollectedHeart
	collectionReserved
	GainedFollower
)

// State event bits.
const (
	RespawnPointChanged byte = 1 << iota
	FlagChanged
	DashBlockRemoved
	CutsceneStarted
	LoadCountIncreased
	PlayerSpawned
	TextboxTriggered
	ClutterSwitchPressed
)

var collectionNames = [8]string{
	"gained_follower", "", "collected_heart", "collected_tape",
	"used_key", "collected_key", "collected_seed_set", "collected_berry",
}

var stateNames = [8]string{
	"clutter_switch_pressed", "textbox_triggered", "player_spawned", "load_count_increased",
	"cutscene_started", "dash_block_removed", "flag_changed", "respawn_point_changed",
}

func packBits(bits ...bool) byte {
	var b byte
	for i, set := range bits {
		if set {
			b |= 0x80 >> i
		}
	}
	return b
}

func bitAt(b byte, i int) bool {
	return b&(0x80>>i) != 0
}

// PackControl encodes control flags.
func PackControl(f ControlFlags) byte {
	return packBits(f.Dead, f.HasControl, f.InCutscene, f.InTransition, f.Paused, f.GravityInverted)
}

// UnpackControl is the inverse of PackControl.
func UnpackControl(b byte) ControlFlags {
	return ControlFlags{
		Dead:            bitAt(b, 0),
		HasControl:      bitAt(b, 1),
		InCutscene:      bitAt(b, 2),
		InTransition:    bitAt(b, 3),
		Paused:          bitAt(b, 4),
		GravityInverted: bitAt(b, 5),
	}
}

// PackStatus encodes status flags.
func PackStatus(f StatusFlags) byte {
	return packBits(f.Holding, f.Crouched, f.FacingLeft, f.WallLeft, f.WallRight, f.CoyoteTime, f.OnSafeGround, f.OnGround)
}

// UnpackStatus is the inverse of PackStatus.
func UnpackStatus(b byte) StatusFlags {
	return StatusFlags{
		Holding:      bitAt(b, 0),
		Crouched:     bitAt(b, 1),
		FacingLeft:   bitAt(b, 2),
		WallLeft:     bitAt(b, 3),
		WallRight:    bitAt(b, 4),
		CoyoteTime:   bitAt(b, 5),
		OnSafeGround: bitAt(b, 6),
		OnGround:     bitAt(b, 7),
	}
}

// PackButtons encodes button flags.
func PackButtons(f ButtonFlags) byte {
	return packBits(f.QuickRestart, f.Pause, f.Escape, f.CrouchDash, f.Talk, f.Grab, f.Dash, f.Jump)
}

// UnpackButtons is the inverse of PackButtons.
func UnpackButtons(b byte) ButtonFlags {
	return ButtonFlags{
		QuickRestart: bitAt(b, 0),
		Pause:        bitAt(b, 1),
		Escape:       bitAt(b, 2),
		CrouchDash:   bitAt(b, 3),
		Talk:         bitAt(b, 4),
		Grab:         bitAt(b, 5),
		Dash:         bitAt(b, 6),
		Jump:         bitAt(b, 7),
	}
}

// PackDirections encodes marker and direction flags.
func PackDirections(f DirectionFlags) byte {
	m := f.Markers
	return packBits(m[0], m[1], m[2], m[3], f.Up, f.Down, f.Left, f.Right)
}

// UnpackDirections is the inverse of PackDirections.
func UnpackDirections(b byte) DirectionFlags {
	return DirectionFlags{
		Markers: [4]bool{bitAt(b, 0), bitAt(b, 1), bitAt(b, 2), bitAt(b, 3)},
		Up:      bitAt(b, 4),
		Down:    bitAt(b, 5),
		Left:    bitAt(b, 6),
		Right:   bitAt(b, 7),
	}
}

// CollectionNames lists the set collection bits, most significant first.
func CollectionNames(b byte) []string {
	return names(b, &collectionNames)
}

// StateNames lists the set state bits, most significant first.
func StateNames(b byte) []string {
	return names(b, &stateNames)
}

func names(b byte, table *[8]string) []string {
	var out []string
	for i, n := range table {
		if n != "" && bitAt(b, i) {
			out = append(out, n)
		}
	}
	return out
}
