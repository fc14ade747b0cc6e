// Decoded frame rows with greptime tags
package telemetry

import (
	"os"
	"time"

	"tuw-telemetry/internal/wire"
)

// FrameRow is one decoded frame as written by the row writers.
type FrameRow struct {
	SessionID   string              `json:"session_id"` // TAG
	AreaID      string              `json:"area_id"`    // TAG
	Room        string              `json:"room"`       // TAG
	Sequence    uint32              `json:"seq"`        // FIELD
	Elapsed     int64               `json:"elapsed"`    // FIELD
	Deaths      int32               `json:"deaths"`     // FIELD
	PosX        float32             `json:"pos_x"`      // FIELD
	PosY        float32             `json:"pos_y"`      // FIELD
	VelX        float32             `json:"vel_x"`      // FIELD
	VelY        float32             `json:"vel_y"`      // FIELD
	Stamina     float32             `json:"stamina"`    // FIELD
	LiftX       float32             `json:"lift_x"`     // FIELD
	LiftY       float32             `json:"lift_y"`     // FIELD
	State       int32               `json:"state"`      // FIELD
	Dashes      int32               `json:"dashes"`     // FIELD
	Control     wire.ControlFlags   `json:"control"`    // FIELD (packed)
	Status      wire.StatusFlags    `json:"status"`     // FIELD (packed)
	Buttons     wire.ButtonFlags    `json:"buttons"`    // FIELD (packed)
	Directions  wire.DirectionFlags `json:"directions"` // FIELD (packed)
	AimX        float32             `json:"aim_x"`      // FIELD
	AimY        float32             `json:"aim_y"`      // FIELD
	Collection  []string            `json:"collection,omitempty"`
	StateEvents []string            `json:"state_events,omitempty"`
	Flags       []wire.FlagChange   `json:"flags,omitempty"`
	Timestamp   time.Time           `json:"ts"` // TIME INDEX
}

// FrameTableName holds the table name used when writing to GreptimeDB.
// It defaults to "tuw_frames" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var FrameTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "tuw_frames"
}()

func (FrameRow) TableName() string {
	return FrameTableName
}

// HasEvents reports whether the frame carried transient bits or flag changes.
func (r FrameRow) HasEvents() bool {
	return len(r.Collection) > 0 || len(r.StateEvents) > 0 || len(r.Flags) > 0
}

// Spawned reports whether the player_spawned bit was set.
func (r FrameRow) Spawned() bool {
	for _, e := range r.StateEvents {
		if e == "player_spawned" {
			return true
		}
	}
	return false
}

// FromFrame flattens a decoded frame. Session identity comes from the
// caller since only the first log frame carries metadata.
func FromFrame(f wire.Frame, sessionID, areaID string) FrameRow {
	sec := int64(f.Header.Timestamp)
	nsec := int64((f.Header.Timestamp - float64(sec)) * 1e9)
	row := FrameRow{
		SessionID:  sessionID,
		AreaID:     areaID,
		Room:       f.Header.Room,
		Sequence:   f.Header.Sequence,
		Elapsed:    f.Header.Elapsed,
		Deaths:     f.Header.Deaths,
		PosX:       f.Actor.PosX,
		PosY:       f.Actor.PosY,
		VelX:       f.Actor.VelX,
		VelY:       f.Actor.VelY,
		Stamina:    f.Actor.Stamina,
		LiftX:      f.Actor.LiftX,
		LiftY:      f.Actor.LiftY,
		State:      f.Actor.State,
		Dashes:     f.Actor.Dashes,
		Control:    wire.UnpackControl(f.Actor.Control),
		Status:     wire.UnpackStatus(f.Actor.Status),
		Buttons:    wire.UnpackButtons(f.Input.Buttons),
		Directions: wire.UnpackDirections(f.Input.Directions),
		AimX:       f.Input.AimX,
		AimY:       f.Input.AimY,
		Flags:      f.Flags,
		Timestamp:  time.Unix(sec, nsec).UTC(),
	}
	if f.Transient != nil {
		row.Collection = wire.CollectionNames(f.Transient.Collection)
		row.StateEvents = wire.StateNames(f.Transient.State)
	}
	return row
}

// Actor state ids used by the synthetic host.
const (
	StateNormal int32 = 0
	StateClimb  int32 = 1
	StateDash   int32 = 2
)

// Vec2 is a position or velocity in pixels.
type Vec2 struct {
	X float64
	Y float64
}

// Actor holds runtime state for the simulated player.
type Actor struct {
	Pos        Vec2
	Vel        Vec2
	Stamina    float64
	Dashes     int
	State      int32
	OnGround   bool
	FacingLeft bool
	Crouched   bool
	Dead       bool

	graceTicks int
	dashTicks  int
	bounds     Bounds
}

// Bounds is the room rectangle the actor moves in. Y grows downwards and
// the floor is at Bottom.
type Bounds struct {
	Left, Right float64
	Top, Bottom float64
}

// DefaultBounds is the room used when none is given.
var DefaultBounds = Bounds{Left: 0, Right: 320, Top: -180, Bottom: 0}

// NewActor places an actor on the floor at x.
func NewActor(x float64, b Bounds) *Actor {
	return &Actor{
		Pos:      Vec2{X: x, Y: b.Bottom},
		Stamina:  MaxStamina,
		Dashes:   1,
		OnGround: true,
		bounds:   b,
	}
}

// GraceTimer returns the remaining jump grace after walking off ground.
func (a *Actor) GraceTimer() time.Duration {
	return time.Duration(a.graceTicks) * time.Second / 60
}

// ProbeWall reports whether a wall is within 2px in direction dir.
func (a *Actor) ProbeWall(dir int) bool {
	switch {
	case dir < 0:
		return a.Pos.X-a.bounds.Left <= 2
	case dir > 0:
		return a.bounds.Right-a.Pos.X <= 2
	}
	return false
}
