package session

import (
	"time"

	"tuw-telemetry/internal/wire"
)

// ActorIntrospector reads actor internals the host does not expose
// directly. Adapters implement it over whatever the host offers.
type ActorIntrospector interface {
	// GraceTimer returns the remaining jump grace after leaving ground.
	GraceTimer() time.Duration
	// ProbeWall reports whether a wall is adjacent in direction dir (-1 left, 1 right).
	ProbeWall(dir int) bool
}

// SceneSample is the per-tick level state.
type SceneSample struct {
	Elapsed         int64
	Deaths          int32
	Room            string
	InCutscene      bool
	InTransition    bool
	Paused          bool
	GravityInverted bool
}

// ActorSample is the per-tick state of the controllable actor.
type ActorSample struct {
	PosX, PosY   float32
	VelX, VelY   float32
	Stamina      float32
	LiftX, LiftY float32
	State        int32
	Dashes       int32

	Dead         bool
	HasControl   bool
	Holding      bool
	Crouched     bool
	FacingLeft   bool
	OnSafeGround bool
	OnGround     bool

	Introspector ActorIntrospector
}

// InputSample is the per-tick input state. Markers are filled by the host
// from its configured bindings.
type InputSample struct {
	Buttons    wire.ButtonFlags
	Directions wire.DirectionFlags
	AimX, AimY float32
}

// Host is sampled once per tick.
type Host interface {
	Scene() SceneSample
	// Actor returns false when no controllable actor exists this tick.
	Actor() (ActorSample, bool)
	Input() InputSample
}

func encodeActor(a ActorSample, s SceneSample) wire.ActorRecord {
	status := wire.StatusFlags{
		Holding:      a.Holding,
		Crouched:     a.Crouched,
		FacingLeft:   a.FacingLeft,
		OnSafeGround: a.OnSafeGround,
		OnGround:     a.OnGround,
	}
	if in := a.Introspector; in != nil {
		status.WallLeft = in.ProbeWall(-1)
		status.WallRight = in.ProbeWall(1)
		status.CoyoteTime = in.GraceTimer() > 0
	}
	return wire.ActorRecord{
		PosX:    a.PosX,
		PosY:    a.PosY,
		VelX:    a.VelX,
		VelY:    a.VelY,
		Stamina: a.Stamina,
		LiftX:   a.LiftX,
		LiftY:   a.LiftY,
		State:   a.State,
		Dashes:  a.Dashes,
		Control: wire.PackControl(wire.ControlFlags{
			Dead:            a.Dead,
			HasControl:      a.HasControl,
			InCutscene:      s.InCutscene,
			InTransition:    s.InTransition,
			Paused:          s.Paused,
			GravityInverted: s.GravityInverted,
		}),
		Status: wire.PackStatus(status),
	}
}

func encodeInput(in InputSample) wire.InputRecord {
	return wire.InputRecord{
		Buttons:    wire.PackButtons(in.Buttons),
		Directions: wire.PackDirections(in.Directions),
		AimX:       in.AimX,
		AimY:       in.AimY,
	}
}
