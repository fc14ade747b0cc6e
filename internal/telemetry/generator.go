package telemetry

import (
	"math"
	"math/rand"
)

// Movement constants in pixels and pixels per second, at 60 ticks per second.
const (
	MaxStamina = 110
	runSpeed   = 90
	runAccel   = 1000
	gravity    = 900
	maxFall    = 160
	jumpSpeed  = -105
	dashSpeed  = 240
	dashTicks  = 10
	graceTicks = 6
	dt         = 1.0 / 60
)

// Controls is the input the generator chose for one tick.
type Controls struct {
	Left, Right bool
	Up, Down    bool
	Jump        bool
	Dash        bool
	Grab        bool
}

// Generator moves a simulated actor with random but persistent input.
type Generator struct {
	rng     *rand.Rand
	heldDir int
}

// NewGenerator creates a generator drawing from rng.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng, heldDir: 1}
}

// Step picks input for this tick and advances the actor by one tick.
func (g *Generator) Step(a *Actor) Controls {
	var c Controls
	if a.Dead {
		return c
	}

	// Change direction occasionally; otherwise keep running.
	if g.rng.Float64() < 0.02 {
		g.heldDir = g.rng.Intn(3) - 1
	}
	c.Left, c.Right = g.heldDir < 0, g.heldDir > 0
	c.Down = a.OnGround && g.rng.Float64() < 0.01
	c.Jump = (a.OnGround || a.graceTicks > 0) && g.rng.Float64() < 0.04
	c.Dash = a.Dashes > 0 && a.dashTicks == 0 && g.rng.Float64() < 0.005
	c.Up = c.Dash && g.rng.Float64() < 0.5
	if c.Left || c.Right {
		a.FacingLeft = c.Left
	}
	a.Crouched = c.Down

	switch {
	case c.Dash:
		a.Dashes--
		a.dashTicks = dashTicks
		a.State = StateDash
		dir := 1.0
		if a.FacingLeft {
			dir = -1
		}
		if c.Up {
			a.Vel = Vec2{X: dir * dashSpeed / math.Sqrt2, Y: -dashSpeed / math.Sqrt2}
		} else {
			a.Vel = Vec2{X: dir * dashSpeed}
		}
	case a.dashTicks > 0:
		a.dashTicks--
		if a.dashTicks == 0 {
			a.State = StateNormal
		}
	default:
		target := float64(g.heldDir) * runSpeed
		a.Vel.X = approach(a.Vel.X, target, runAccel*dt)
		if c.Jump {
			a.Vel.Y = jumpSpeed
			a.graceTicks = 0
		}
		a.Vel.Y = math.Min(a.Vel.Y+gravity*dt, maxFall)
	}

	a.Pos.X += a.Vel.X * dt
	a.Pos.Y += a.Vel.Y * dt
	a.collide()
	return c
}

func (a *Actor) collide() {
	b := a.bounds
	if a.Pos.X < b.Left {
		a.Pos.X, a.Vel.X = b.Left, 0
	}
	if a.Pos.X > b.Right {
		a.Pos.X, a.Vel.X = b.Right, 0
	}
	if a.Pos.Y < b.Top {
		a.Pos.Y, a.Vel.Y = b.Top, 0
	}

	wasGround := a.OnGround
	a.OnGround = a.Pos.Y >= b.Bottom
	if a.OnGround {
		a.Pos.Y, a.Vel.Y = b.Bottom, 0
		a.Dashes = 1
		a.Stamina = MaxStamina
		a.graceTicks = 0
		return
	}
	if wasGround && a.Vel.Y >= 0 {
		a.graceTicks = graceTicks
	} else if a.graceTicks > 0 {
		a.graceTicks--
	}
}

// Respawn puts the actor back on the floor at x.
func (a *Actor) Respawn(x float64) {
	b := a.bounds
	*a = *NewActor(x, b)
}

// SetBounds moves the actor into a new room.
func (a *Actor) SetBounds(b Bounds) {
	a.bounds = b
	a.collide()
}

func approach(v, target, step float64) float64 {
	if v < target {
		return math.Min(v+step, target)
	}
	return math.Max(v-step, target)
}
