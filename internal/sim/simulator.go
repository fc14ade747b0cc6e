// Simulator playing a scripted session through the controller
package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"tuw-telemetry/internal/events"
	"tuw-telemetry/internal/scenario"
	"tuw-telemetry/internal/session"
	"tuw-telemetry/internal/telemetry"
	"tuw-telemetry/internal/wire"
)

// TelemetryWriter is an interface to support different output writers.
type TelemetryWriter interface {
	Write(telemetry.FrameRow) error
}

// Optional: Writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.FrameRow) error
}

const (
	respawnTicks  = 30
	cutsceneTicks = 90
)

// Options configure a Simulator.
type Options struct {
	// Markers names the marker bits in slot order.
	Markers      []string
	TickInterval time.Duration
	// Writer receives every emitted frame decoded back into a row. Optional.
	Writer TelemetryWriter
	Rand   *rand.Rand
}

// Simulator is a session.Host that plays a scenario script: it moves a
// generated actor, raises the script's events on the controller and drives
// session boundaries.
type Simulator struct {
	script       *scenario.Script
	markers      []string
	writer       TelemetryWriter
	gen          *telemetry.Generator
	actor        *telemetry.Actor
	tickInterval time.Duration

	tick        int
	elapsed     int64
	deaths      int32
	room        string
	inSession   bool
	exit        bool
	pauseLeft   int
	absentLeft  int
	deadLeft    int
	cutsceneFor int
	transition  bool
	marker      int // held marker slot, -1 for none
	controls    telemetry.Controls
	lastEchoed  int64

	mu   sync.Mutex
	info session.Info
}

// NewSimulator prepares a run of script.
func NewSimulator(script *scenario.Script, opts Options) *Simulator {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(script.Seed))
	}
	interval := opts.TickInterval
	if interval <= 0 {
		interval = time.Second / 60
	}
	room := script.Room
	if room == "" {
		room = "start"
	}
	return &Simulator{
		script:       script,
		markers:      opts.Markers,
		writer:       opts.Writer,
		gen:          telemetry.NewGenerator(rng),
		actor:        telemetry.NewActor(16, telemetry.DefaultBounds),
		tickInterval: interval,
		room:         room,
		marker:       -1,
		lastEchoed:   -1,
	}
}

// Metadata is the stream metadata of the scripted area.
func (s *Simulator) Metadata() wire.StreamMetadata {
	return wire.StreamMetadata{AreaID: s.script.AreaID, DisplayName: s.script.DisplayName}
}

// Ticks returns the number of ticks played so far.
func (s *Simulator) Ticks() int { return s.tick }

// Session returns the info of the session most recently started.
func (s *Simulator) Session() session.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Scene implements session.Host.
func (s *Simulator) Scene() session.SceneSample {
	return session.SceneSample{
		Elapsed:      s.elapsed,
		Deaths:       s.deaths,
		Room:         s.room,
		InCutscene:   s.cutsceneFor > 0,
		InTransition: s.transition,
		Paused:       s.pauseLeft > 0,
	}
}

// Actor implements session.Host.
func (s *Simulator) Actor() (session.ActorSample, bool) {
	if s.absentLeft > 0 {
		return session.ActorSample{}, false
	}
	a := s.actor
	return session.ActorSample{
		PosX:         float32(a.Pos.X),
		PosY:         float32(a.Pos.Y),
		VelX:         float32(a.Vel.X),
		VelY:         float32(a.Vel.Y),
		Stamina:      float32(a.Stamina),
		State:        a.State,
		Dashes:       int32(a.Dashes),
		Dead:         a.Dead,
		HasControl:   !a.Dead && s.pauseLeft == 0 && s.cutsceneFor == 0,
		Crouched:     a.Crouched,
		FacingLeft:   a.FacingLeft,
		OnSafeGround: a.OnGround,
		OnGround:     a.OnGround,
		Introspector: a,
	}, true
}

// Input implements session.Host.
func (s *Simulator) Input() session.InputSample {
	c := s.controls
	in := session.InputSample{
		Buttons: wire.ButtonFlags{
			Pause: s.pauseLeft > 0,
			Grab:  c.Grab,
			Dash:  c.Dash,
			Jump:  c.Jump,
		},
		Directions: wire.DirectionFlags{Up: c.Up, Down: c.Down, Left: c.Left, Right: c.Right},
	}
	if s.marker >= 0 && s.marker < len(in.Directions.Markers) {
		in.Directions.Markers[s.marker] = true
	}
	var x, y float64
	if c.Left {
		x--
	}
	if c.Right {
		x++
	}
	if c.Up {
		y--
	}
	if c.Down {
		y++
	}
	if n := math.Hypot(x, y); n > 0 {
		in.AimX, in.AimY = float32(x/n), float32(y/n)
	}
	return in
}

// Advance plays one tick against ctrl. It reports done once a bounded
// script has run out of ticks.
func (s *Simulator) Advance(ctrl *session.Controller) (bool, error) {
	if s.script.Done(s.tick) {
		return true, nil
	}
	if !s.inSession {
		info := ctrl.BeginSession(s.Metadata())
		s.mu.Lock()
		s.info = info
		s.mu.Unlock()
		s.inSession = true
	}

	s.marker = -1
	s.transition = false
	for _, st := range s.script.StepsAt(s.tick) {
		if err := s.apply(ctrl, st); err != nil {
			return false, err
		}
	}
	s.move()

	err := ctrl.Tick()
	if err != nil && !errors.Is(err, session.ErrTickSkipped) {
		return false, err
	}
	if err == nil {
		if werr := s.echo(ctrl); werr != nil {
			return false, werr
		}
	}

	if s.exit {
		s.exit = false
		s.inSession = false
		if err := ctrl.EndSession(); err != nil {
			return false, fmt.Errorf("end session: %w", err)
		}
	}
	s.afterTick(ctrl)
	s.tick++
	return s.script.Done(s.tick), nil
}

func (s *Simulator) apply(ctrl *session.Controller, st scenario.Step) error {
	acc := ctrl.Events()
	for _, name := range st.Events {
		ev, err := events.ParseEvent(name)
		if err != nil {
			return err
		}
		acc.Mark(ev)
		if ev == events.CutsceneStarted {
			s.cutsceneFor = cutsceneTicks
		}
	}
	names := make([]string, 0, len(st.Flags))
	for name := range st.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		acc.SetFlag(name, st.Flags[name])
	}
	for i := 0; i < st.FlagBurst; i++ {
		acc.SetFlag(fmt.Sprintf("burst_%d_%d", s.tick, i), true)
	}
	if st.Death && !s.actor.Dead {
		s.actor.Dead = true
		s.deaths++
		s.deadLeft = respawnTicks
		ctrl.NotifyDeath()
	}
	if st.Pause > 0 {
		s.pauseLeft = st.Pause
	}
	if st.Absent > 0 {
		s.absentLeft = st.Absent
	}
	if st.Room != "" && st.Room != s.room {
		s.room = st.Room
		s.transition = true
		s.actor.SetBounds(telemetry.DefaultBounds)
		s.actor.Pos.X = telemetry.DefaultBounds.Left + 8
	}
	if st.Marker != "" {
		s.marker = s.markerSlot(st.Marker)
	}
	if st.Exit {
		s.exit = true
	}
	return nil
}

func (s *Simulator) markerSlot(name string) int {
	for i, m := range s.markers {
		if m == name {
			return i
		}
	}
	return -1
}

func (s *Simulator) move() {
	if s.pauseLeft > 0 || s.absentLeft > 0 {
		s.controls = telemetry.Controls{}
		return
	}
	s.elapsed++
	if s.cutsceneFor > 0 {
		s.controls = telemetry.Controls{}
		return
	}
	s.controls = s.gen.Step(s.actor)
}

func (s *Simulator) afterTick(ctrl *session.Controller) {
	if s.pauseLeft > 0 {
		s.pauseLeft--
	}
	if s.absentLeft > 0 {
		s.absentLeft--
	}
	if s.cutsceneFor > 0 {
		s.cutsceneFor--
	}
	if s.deadLeft > 0 {
		s.deadLeft--
		if s.deadLeft == 0 {
			s.actor.Respawn(telemetry.DefaultBounds.Left + 16)
			ctrl.Events().Mark(events.PlayerSpawned)
		}
	}
}

// echo decodes the frame just published and hands it to the writer.
func (s *Simulator) echo(ctrl *session.Controller) error {
	if s.writer == nil {
		return nil
	}
	frame := ctrl.LiveFrame()
	if len(frame) < wire.PrefixSize {
		return nil
	}
	f, err := wire.DecodeFrame(frame[wire.PrefixSize:])
	if err != nil {
		return fmt.Errorf("decode live frame: %w", err)
	}
	if int64(f.Header.Sequence) == s.lastEchoed {
		return nil
	}
	s.lastEchoed = int64(f.Header.Sequence)
	info := s.Session()
	return s.writer.Write(telemetry.FromFrame(f, info.ID, info.Metadata.AreaID))
}
