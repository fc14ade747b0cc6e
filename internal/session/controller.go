// Package session drives per-tick sampling and the two frame sinks.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tuw-telemetry/internal/durable"
	"tuw-telemetry/internal/events"
	"tuw-telemetry/internal/live"
	"tuw-telemetry/internal/metrics"
	"tuw-telemetry/internal/packet"
	"tuw-telemetry/internal/wire"
)

// ErrTickSkipped is returned by Tick when no frame was emitted. Pending
// events stay queued for the next tick and the sequence does not advance.
var ErrTickSkipped = errors.New("session: tick skipped")

// ErrNoActor is returned by Tick when there was nothing to sample.
var ErrNoActor = fmt.Errorf("%w: no controllable actor", ErrTickSkipped)

// Info describes one session file.
type Info struct {
	ID        string              `json:"id"`
	Path      string              `json:"path,omitempty"`
	Metadata  wire.StreamMetadata `json:"metadata"`
	StartedAt time.Time           `json:"started_at"`
	EndedAt   time.Time           `json:"ended_at,omitzero"`
	Frames    int                 `json:"frames"`
}

// Observer is told when session files open and close.
type Observer interface {
	SessionStarted(Info)
	SessionEnded(Info)
}

// SessionState is everything the controller mutates per tick.
type SessionState struct {
	Info
	Active  bool
	Header  wire.HeaderRecord
	Actor   wire.ActorRecord
	Input   wire.InputRecord
	Framing packet.Framing
	Events  *events.Accumulator
}

// Options configure a Controller.
type Options struct {
	// Live receives every live frame. Nil uses live.Discard.
	Live live.Channel
	// Queue receives log frames. Nil disables the durable log.
	Queue        *durable.Queue
	OutputDir    string
	FlagBudget   int
	LiveCapacity int
	Now          func() time.Time
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Observer     Observer
}

// Status is a snapshot safe to read from other goroutines.
type Status struct {
	Session      Info      `json:"session"`
	Active       bool      `json:"active"`
	Sequence     uint32    `json:"sequence"`
	Emitted      uint64    `json:"frames_emitted"`
	Skipped      uint64    `json:"ticks_skipped"`
	Framing      string    `json:"framing"`
	Queue        string    `json:"queue"`
	Pending      int       `json:"pending_frames"`
	PendingBytes int       `json:"pending_bytes"`
	LiveMode     live.Mode `json:"live_mode"`
	Paused       bool      `json:"paused"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Controller samples a Host once per tick. Tick, NotifyDeath, the session
// calls and the accumulator returned by Events must be used from a single
// goroutine; Status, LiveFrame and RequestFlush may be called from any.
type Controller struct {
	host  Host
	opts  Options
	log   *slog.Logger
	state SessionState
	asm   *packet.Assembler
	warn  *rate.Limiter

	sequence     uint32
	emitted      uint64
	skipped      uint64
	paused       bool
	deathPending bool

	flushRequested atomic.Bool
	status         atomic.Pointer[Status]
	liveFrame      atomic.Pointer[[]byte]
}

// NewController returns a controller with no active session.
func NewController(host Host, opts Options) *Controller {
	if opts.Live == nil {
		opts.Live = live.Discard{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		host: host,
		opts: opts,
		log:  log,
		asm:  packet.NewAssembler(opts.LiveCapacity, log),
		warn: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	c.state.Events = events.New(opts.FlagBudget)
	c.publish()
	return c
}

// Events returns the accumulator that event hooks report into.
func (c *Controller) Events() *events.Accumulator { return c.state.Events }

// State exposes the session state for inspection.
func (c *Controller) State() *SessionState { return &c.state }

// BeginSession starts a session for meta, ending any active one. When the
// durable log is enabled a new session file is opened and log framing
// starts over.
func (c *Controller) BeginSession(meta wire.StreamMetadata) Info {
	if c.state.Active {
		c.EndSession()
	}
	now := c.opts.Now()
	st := &c.state
	st.Info = Info{ID: uuid.NewString(), Metadata: meta, StartedAt: now}
	st.Framing.Reset()
	st.Active = true
	c.deathPending = false

	if q := c.opts.Queue; q != nil {
		st.Path = durable.SessionFileName(c.opts.OutputDir, now, meta.AreaID)
		if err := q.Open(st.Path); err != nil {
			c.log.Warn("previous session not fully flushed", "session_id", st.ID, "err", err)
		}
	}
	c.opts.Metrics.SessionStarted()
	if c.opts.Observer != nil {
		c.opts.Observer.SessionStarted(st.Info)
	}
	c.log.Info("session started", "session_id", st.ID, "area", meta.AreaID, "path", st.Path)
	c.publish()
	return st.Info
}

// EndSession flushes the session file and closes it. Frames that could not
// be written stay queued for that file and are retried on later flushes.
func (c *Controller) EndSession() error {
	st := &c.state
	if !st.Active {
		return nil
	}
	var err error
	if q := c.opts.Queue; q != nil {
		err = q.Flush(durable.ReasonExit)
		st.Frames = q.Flushed()
		if cerr := q.Close(); err == nil {
			err = cerr
		}
	}
	st.EndedAt = c.opts.Now()
	st.Active = false
	c.deathPending = false
	if c.opts.Observer != nil {
		c.opts.Observer.SessionEnded(st.Info)
	}
	c.log.Info("session ended", "session_id", st.ID, "frames", st.Frames, "err", err)
	c.publish()
	return err
}

// NotifyDeath requests a flush at the end of the current tick.
func (c *Controller) NotifyDeath() {
	c.deathPending = true
}

// RequestFlush asks for a flush at the end of the next tick.
func (c *Controller) RequestFlush() {
	c.flushRequested.Store(true)
}

// Tick samples the host once. It returns an error wrapping ErrTickSkipped
// when no frame was emitted, either for lack of an actor or because the
// room name leaves no room for a frame. Flush failures are logged and never
// returned.
func (c *Controller) Tick() error {
	err := c.sample()
	c.flushIfTriggered()
	c.publish()
	return err
}

func (c *Controller) sample() error {
	scene := c.host.Scene()
	c.paused = scene.Paused
	actor, ok := c.host.Actor()
	if !ok {
		c.skipped++
		c.opts.Metrics.TickSkipped()
		return ErrNoActor
	}

	st := &c.state
	now := c.opts.Now()
	st.Header = wire.HeaderRecord{
		Sequence:  c.sequence,
		Timestamp: float64(now.UnixMicro()) / 1e6,
		Elapsed:   scene.Elapsed,
		Deaths:    scene.Deaths,
		Room:      scene.Room,
	}
	st.Actor = encodeActor(actor, scene)
	st.Input = encodeInput(c.host.Input())

	if err := packet.CheckFits(st.Header, st.Metadata); err != nil {
		return c.skip(err)
	}
	drained := st.Events.Drain()
	c.opts.Metrics.FlagRecordsDropped(drained.Dropped)

	var framing *packet.Framing
	logging := st.Active && c.opts.Queue != nil
	if logging {
		framing = &st.Framing
	}
	pkt, err := c.asm.Assemble(packet.Tick{
		Header:   st.Header,
		Actor:    st.Actor,
		Input:    st.Input,
		Events:   drained,
		Metadata: st.Metadata,
	}, framing)
	if err != nil {
		return c.skip(err)
	}
	c.sequence++
	c.emitted++
	c.opts.Metrics.FrameEmitted()
	if pkt.FlagsTrimmed {
		c.opts.Metrics.FlagsTrimmed()
	}

	written := pkt.Live != nil && c.opts.Live.Write(pkt.Live)
	c.opts.Metrics.LiveWrite(written)
	if pkt.Live != nil {
		c.liveFrame.Store(&pkt.Live)
	}
	if logging {
		c.opts.Queue.Append(pkt.Log)
	}
	return nil
}

func (c *Controller) skip(err error) error {
	c.skipped++
	c.opts.Metrics.TickSkipped()
	if c.warn.Allow() {
		c.log.Warn("frame not assembled, tick skipped", "sequence", c.sequence, "room", c.state.Header.Room, "err", err)
	}
	return fmt.Errorf("%w: %w", ErrTickSkipped, err)
}

func (c *Controller) flushIfTriggered() {
	q := c.opts.Queue
	if q == nil {
		return
	}
	var reason durable.Reason
	switch {
	case c.deathPending:
		reason = durable.ReasonDeath
	case c.flushRequested.Swap(false):
		reason = durable.ReasonManual
	case q.StallDue(c.paused):
		reason = durable.ReasonStall
	default:
		return
	}
	c.deathPending = false
	if err := q.Flush(reason); err != nil {
		c.log.Debug("flush deferred", "reason", reason, "pending", q.Pending(), "err", err)
	}
}

// Shutdown ends the active session and releases both sinks.
func (c *Controller) Shutdown() error {
	err := c.EndSession()
	if q := c.opts.Queue; q != nil {
		if n := q.Pending(); n > 0 {
			c.log.Warn("frames lost at shutdown", "frames", n)
		}
		err = errors.Join(err, q.Close())
	}
	return errors.Join(err, c.opts.Live.Close())
}

func (c *Controller) publish() {
	st := &c.state
	s := &Status{
		Session:   st.Info,
		Active:    st.Active,
		Sequence:  c.sequence,
		Emitted:   c.emitted,
		Skipped:   c.skipped,
		Framing:   st.Framing.State().String(),
		Queue:     durable.Idle.String(),
		LiveMode:  c.opts.Live.Mode(),
		Paused:    c.paused,
		UpdatedAt: c.opts.Now(),
	}
	if q := c.opts.Queue; q != nil {
		s.Queue = q.State().String()
		s.Pending = q.Pending()
		s.PendingBytes = q.PendingBytes()
		s.Session.Frames = q.Flushed()
	}
	c.status.Store(s)
}

// Status returns the snapshot taken after the latest tick.
func (c *Controller) Status() Status {
	return *c.status.Load()
}

// LiveFrame returns the most recent live frame, prefix included.
func (c *Controller) LiveFrame() []byte {
	if p := c.liveFrame.Load(); p != nil {
		return *p
	}
	return nil
}
