package session

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"tuw-telemetry/internal/durable"
	"tuw-telemetry/internal/events"
	"tuw-telemetry/internal/live"
	"tuw-telemetry/internal/packet"
	"tuw-telemetry/internal/wire"
)

type fakeHost struct {
	scene    SceneSample
	actor    ActorSample
	hasActor bool
	input    InputSample
}

func (h *fakeHost) Scene() SceneSample         { return h.scene }
func (h *fakeHost) Actor() (ActorSample, bool) { return h.actor, h.hasActor }
func (h *fakeHost) Input() InputSample         { return h.input }

type wallProbe struct{ grace time.Duration }

func (w wallProbe) GraceTimer() time.Duration { return w.grace }
func (w wallProbe) ProbeWall(dir int) bool    { return dir > 0 }

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

type storage struct {
	files map[string]*bytes.Buffer
	deny  map[string]bool
	opens int
}

func (s *storage) open(path string) (io.WriteCloser, error) {
	if s.deny[path] {
		return nil, errors.New("permission denied")
	}
	s.opens++
	if s.files == nil {
		s.files = map[string]*bytes.Buffer{}
	}
	b, ok := s.files[path]
	if !ok {
		b = &bytes.Buffer{}
		s.files[path] = b
	}
	return nopCloser{b}, nil
}

func (s *storage) frames(t *testing.T, path string) []wire.Frame {
	t.Helper()
	lr := wire.NewLogReader(bytes.NewReader(s.files[path].Bytes()))
	var out []wire.Frame
	for {
		f, err := lr.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		out = append(out, f)
	}
}

type recorder struct{ started, ended []Info }

func (r *recorder) SessionStarted(i Info) { r.started = append(r.started, i) }
func (r *recorder) SessionEnded(i Info)   { r.ended = append(r.ended, i) }

type memLive struct{ last []byte }

func (m *memLive) Write(f []byte) bool { m.last = append(m.last[:0], f...); return true }
func (m *memLive) Mode() live.Mode     { return live.ModeNative }
func (m *memLive) Close() error        { return nil }

func newTestController(persistent bool) (*Controller, *fakeHost, *storage, *memLive) {
	host := &fakeHost{
		scene:    SceneSample{Room: "a-00"},
		actor:    ActorSample{PosX: 1, HasControl: true},
		hasActor: true,
	}
	st := &storage{}
	lv := &memLive{}
	clock := time.Unix(1700000000, 0)
	q := durable.NewQueue(durable.Options{Persistent: persistent, Open: st.open, Now: func() time.Time { return clock }})
	c := NewController(host, Options{
		Live:  lv,
		Queue: q,
		Now:   func() time.Time { return clock },
	})
	return c, host, st, lv
}

var meta = wire.StreamMetadata{AreaID: "Celeste/1-ForsakenCity", DisplayName: "Forsaken City"}

func TestDeathFlushScenario(t *testing.T) {
	c, _, st, _ := newTestController(true)
	info := c.BeginSession(meta)
	q := c.opts.Queue

	for tick := 1; tick <= 1000; tick++ {
		if tick == 500 {
			c.NotifyDeath()
		}
		if err := c.Tick(); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		switch {
		case tick < 500 && q.Pending() != tick:
			t.Fatalf("tick %d: pending %d", tick, q.Pending())
		case tick == 500 && q.Pending() != 0:
			t.Fatalf("death flush left %d frames", q.Pending())
		case tick > 500 && q.Pending() != tick-500:
			t.Fatalf("tick %d: pending %d", tick, q.Pending())
		}
		if tick == 500 {
			got := st.frames(t, info.Path)
			if len(got) != 500 {
				t.Fatalf("flushed %d frames at death", len(got))
			}
			if got[499].Header.Sequence != 499 {
				t.Fatalf("last flushed sequence %d", got[499].Header.Sequence)
			}
		}
	}

	if err := c.EndSession(); err != nil {
		t.Fatal(err)
	}
	got := st.frames(t, info.Path)
	if len(got) != 1000 {
		t.Fatalf("session file holds %d frames", len(got))
	}
	for i, f := range got {
		if f.Header.Sequence != uint32(i) {
			t.Fatalf("frame %d has sequence %d", i, f.Header.Sequence)
		}
	}
	if st.opens != 1 {
		t.Fatalf("persistent sink opened %d times", st.opens)
	}
}

func TestFirstLogFrameCarriesMetadata(t *testing.T) {
	c, _, st, lv := newTestController(false)
	info := c.BeginSession(meta)
	c.Tick()
	c.Tick()
	c.EndSession()

	got := st.frames(t, info.Path)
	if len(got) != 2 {
		t.Fatalf("frames = %d", len(got))
	}
	if got[0].Metadata == nil || *got[0].Metadata != meta {
		t.Fatalf("first frame metadata = %+v", got[0].Metadata)
	}
	if got[1].Metadata != nil {
		t.Fatal("second frame must not carry metadata")
	}
	f, err := wire.DecodeFrame(lv.last[wire.PrefixSize:])
	if err != nil || f.Metadata == nil || f.Header.Sequence != 1 {
		t.Fatalf("live frame = %+v, %v", f, err)
	}
}

func TestSkippedTicksLeaveSequenceGap(t *testing.T) {
	c, host, _, lv := newTestController(true)
	c.BeginSession(meta)
	c.Tick()
	host.hasActor = false
	if err := c.Tick(); !errors.Is(err, ErrNoActor) {
		t.Fatalf("err = %v", err)
	}
	if c.opts.Queue.Pending() != 1 {
		t.Fatal("skipped tick must not queue a frame")
	}
	host.hasActor = true
	c.Tick()
	f, _ := wire.DecodeFrame(lv.last[wire.PrefixSize:])
	if f.Header.Sequence != 1 {
		t.Fatalf("sequence = %d, want 1", f.Header.Sequence)
	}
	if s := c.Status(); s.Skipped != 1 || s.Emitted != 2 {
		t.Fatalf("status = %+v", s)
	}
}

func TestDeathFlushWithoutActor(t *testing.T) {
	c, host, _, _ := newTestController(true)
	c.BeginSession(meta)
	c.Tick()
	c.Tick()
	host.hasActor = false
	c.NotifyDeath()
	c.Tick()
	if c.opts.Queue.Pending() != 0 {
		t.Fatal("death must flush even when the actor is gone")
	}
}

func TestEventsDrainedOncePerTick(t *testing.T) {
	c, _, st, _ := newTestController(true)
	info := c.BeginSession(meta)
	c.Events().Mark(events.CollectedBerry)
	c.Events().Mark(events.CollectedBerry)
	c.Events().SetFlag("door", true)
	c.Tick()
	c.Tick()
	c.EndSession()

	got := st.frames(t, info.Path)
	if got[0].Transient == nil || got[0].Transient.Collection != wire.CollectedBerry {
		t.Fatalf("first frame transient = %+v", got[0].Transient)
	}
	if len(got[0].Flags) != 1 {
		t.Fatalf("first frame flags = %+v", got[0].Flags)
	}
	if got[1].Transient != nil || got[1].Flags != nil {
		t.Fatal("events must not be reported twice")
	}
}

func TestStatusBits(t *testing.T) {
	c, host, _, lv := newTestController(true)
	host.scene.Paused = true
	host.actor.Introspector = wallProbe{grace: time.Millisecond}
	host.input.Directions.Markers[2] = true
	c.Tick()
	f, err := wire.DecodeFrame(lv.last[wire.PrefixSize:])
	if err != nil {
		t.Fatal(err)
	}
	status := wire.UnpackStatus(f.Actor.Status)
	if status.WallLeft || !status.WallRight || !status.CoyoteTime {
		t.Fatalf("status = %+v", status)
	}
	if !wire.UnpackControl(f.Actor.Control).Paused {
		t.Fatal("paused bit")
	}
	if !wire.UnpackDirections(f.Input.Directions).Markers[2] {
		t.Fatal("marker bit")
	}
}

func TestStallFlush(t *testing.T) {
	host := &fakeHost{hasActor: true}
	st := &storage{}
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	q := durable.NewQueue(durable.Options{Persistent: true, Open: st.open, Now: clock})
	c := NewController(host, Options{Queue: q, Now: clock})
	c.BeginSession(meta)

	host.scene.Paused = true
	c.Tick()
	now = now.Add(30 * time.Second)
	c.Tick()
	if q.Pending() != 2 {
		t.Fatalf("pending = %d", q.Pending())
	}
	now = now.Add(31 * time.Second)
	c.Tick()
	if q.Pending() != 0 {
		t.Fatal("stall guard did not flush")
	}
}

func TestRequestFlush(t *testing.T) {
	c, _, _, _ := newTestController(true)
	c.BeginSession(meta)
	c.Tick()
	c.RequestFlush()
	c.Tick()
	if c.opts.Queue.Pending() != 0 {
		t.Fatal("manual flush not honoured")
	}
}

func TestNewSessionResetsFraming(t *testing.T) {
	c, _, st, _ := newTestController(true)
	obs := &recorder{}
	c.opts.Observer = obs

	first := c.BeginSession(meta)
	c.Tick()
	c.Tick()
	second := c.BeginSession(wire.StreamMetadata{AreaID: "Celeste/2-OldSite", DisplayName: "Old Site"})
	c.Tick()
	c.Shutdown()

	if first.Path == second.Path {
		t.Fatal("sessions share a file")
	}
	a, b := st.frames(t, first.Path), st.frames(t, second.Path)
	if len(a) != 2 || len(b) != 1 {
		t.Fatalf("frames %d / %d", len(a), len(b))
	}
	if b[0].Metadata == nil || b[0].Metadata.DisplayName != "Old Site" {
		t.Fatalf("new file must start with metadata: %+v", b[0].Metadata)
	}
	if b[0].Header.Sequence != 2 {
		t.Fatalf("sequence continues across sessions, got %d", b[0].Header.Sequence)
	}
	if len(obs.started) != 2 || len(obs.ended) != 2 || obs.ended[0].Frames != 2 {
		t.Fatalf("observer = %+v", obs)
	}
}

func TestNoSessionWritesLiveOnly(t *testing.T) {
	c, _, st, lv := newTestController(true)
	if err := c.Tick(); err != nil {
		t.Fatal(err)
	}
	if lv.last == nil {
		t.Fatal("live frame expected without a session")
	}
	if c.opts.Queue.Pending() != 0 || len(st.files) != 0 {
		t.Fatal("no log frames without a session")
	}
	if c.LiveFrame() == nil {
		t.Fatal("live frame snapshot missing")
	}
}

func TestUnwrittenFramesStayInTheirSessionFile(t *testing.T) {
	c, _, st, _ := newTestController(true)
	firstMeta := wire.StreamMetadata{AreaID: "one", DisplayName: "first"}
	secondMeta := wire.StreamMetadata{AreaID: "two", DisplayName: "second"}
	firstPath := durable.SessionFileName("", time.Unix(1700000000, 0), firstMeta.AreaID)
	st.deny = map[string]bool{firstPath: true}

	first := c.BeginSession(firstMeta)
	c.Tick()
	c.Tick()
	second := c.BeginSession(secondMeta)
	if c.opts.Queue.PendingFor(first.Path) != 2 {
		t.Fatalf("pending for first file = %d", c.opts.Queue.PendingFor(first.Path))
	}
	c.Tick()
	c.RequestFlush()
	c.Tick()

	b := st.frames(t, second.Path)
	if len(b) != 2 {
		t.Fatalf("second file holds %d frames", len(b))
	}
	if b[0].Metadata == nil || *b[0].Metadata != secondMeta {
		t.Fatalf("second file starts with %+v", b[0].Metadata)
	}
	for _, f := range b {
		if f.Header.Sequence < 2 {
			t.Fatalf("frame %d of the first session landed in the second file", f.Header.Sequence)
		}
	}

	delete(st.deny, firstPath)
	c.RequestFlush()
	c.Tick()
	a := st.frames(t, first.Path)
	if len(a) != 2 || a[0].Metadata == nil || *a[0].Metadata != firstMeta || a[1].Header.Sequence != 1 {
		t.Fatalf("first file = %+v", a)
	}
	if err := c.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if n := len(st.frames(t, second.Path)); n != 3 {
		t.Fatalf("second file holds %d frames after shutdown", n)
	}
}

func TestOversizeRoomSkipsTickAndKeepsEvents(t *testing.T) {
	c, host, st, _ := newTestController(true)
	info := c.BeginSession(meta)
	c.Tick()

	c.Events().SetFlag("door", true)
	c.Events().Mark(events.CollectedBerry)
	host.scene.Room = strings.Repeat("r", wire.MaxFrameLen-100)
	err := c.Tick()
	if !errors.Is(err, ErrTickSkipped) || !errors.Is(err, packet.ErrFrameTooLarge) {
		t.Fatalf("err = %v", err)
	}
	if !c.Events().Pending() {
		t.Fatal("events of a skipped tick must stay pending")
	}

	host.scene.Room = "a-01"
	if err := c.Tick(); err != nil {
		t.Fatal(err)
	}
	c.EndSession()

	got := st.frames(t, info.Path)
	if len(got) != 2 {
		t.Fatalf("frames = %d", len(got))
	}
	f := got[1]
	if f.Header.Sequence != 1 || f.Header.Room != "a-01" {
		t.Fatalf("header = %+v", f.Header)
	}
	if len(f.Flags) != 1 || f.Transient == nil || f.Transient.Collection != wire.CollectedBerry {
		t.Fatalf("events not carried to the next frame: flags=%+v transient=%+v", f.Flags, f.Transient)
	}
	if s := c.Status(); s.Skipped != 1 || s.Emitted != 2 {
		t.Fatalf("status = %+v", s)
	}
}
