package telemetry

import (
	"math/rand"
	"testing"
	"time"

	"tuw-telemetry/internal/wire"
)

func TestGeneratorStaysInBounds(t *testing.T) {
	gen := NewGenerator(rand.New(rand.NewSource(1)))
	a := NewActor(100, DefaultBounds)
	moved, jumped := false, false
	for i := 0; i < 5000; i++ {
		gen.Step(a)
		if a.Pos.X < DefaultBounds.Left || a.Pos.X > DefaultBounds.Right {
			t.Fatalf("tick %d: x = %f out of bounds", i, a.Pos.X)
		}
		if a.Pos.Y > DefaultBounds.Bottom || a.Pos.Y < DefaultBounds.Top {
			t.Fatalf("tick %d: y = %f out of bounds", i, a.Pos.Y)
		}
		if a.Pos.X != 100 {
			moved = true
		}
		if !a.OnGround {
			jumped = true
		}
	}
	if !moved || !jumped {
		t.Errorf("expected movement and jumps, moved=%v jumped=%v", moved, jumped)
	}
}

func TestDeadActorDoesNotMove(t *testing.T) {
	gen := NewGenerator(rand.New(rand.NewSource(2)))
	a := NewActor(50, DefaultBounds)
	a.Dead = true
	if c := gen.Step(a); c != (Controls{}) || a.Pos.X != 50 {
		t.Fatalf("dead actor moved: %+v %+v", c, a.Pos)
	}
	a.Respawn(10)
	if a.Dead || a.Pos.X != 10 || !a.OnGround || a.Dashes != 1 {
		t.Fatalf("respawn = %+v", a)
	}
}

func TestProbeWallAndGrace(t *testing.T) {
	a := NewActor(DefaultBounds.Left+1, DefaultBounds)
	if !a.ProbeWall(-1) || a.ProbeWall(1) {
		t.Fatal("left wall probe")
	}
	if a.GraceTimer() != 0 {
		t.Fatal("no grace on ground")
	}
	a.Pos.Y = DefaultBounds.Bottom - 10
	a.collide()
	if a.GraceTimer() <= 0 || a.GraceTimer() > 100*time.Millisecond {
		t.Fatalf("grace after leaving ground = %v", a.GraceTimer())
	}
}

func TestFromFrame(t *testing.T) {
	f := wire.Frame{
		Header: wire.HeaderRecord{Sequence: 4, Timestamp: 1700000000.5, Room: "b-02", Deaths: 1},
		Actor: wire.ActorRecord{
			PosX:    12,
			Control: wire.PackControl(wire.ControlFlags{Dead: true}),
			Status:  wire.PackStatus(wire.StatusFlags{OnGround: true}),
		},
		Transient: &wire.TransientEvent{State: wire.PlayerSpawned},
		Flags:     []wire.FlagChange{{Name: "x", Value: true}},
	}
	row := FromFrame(f, "sess", "area")
	if row.Sequence != 4 || row.Room != "b-02" || row.SessionID != "sess" || row.AreaID != "area" {
		t.Fatalf("row = %+v", row)
	}
	if !row.Control.Dead || !row.Status.OnGround {
		t.Fatalf("flags not unpacked: %+v", row)
	}
	if !row.Spawned() || !row.HasEvents() {
		t.Fatal("events")
	}
	want := time.Unix(1700000000, 500000000).UTC()
	if !row.Timestamp.Equal(want) {
		t.Fatalf("ts = %v", row.Timestamp)
	}
	if row.TableName() != FrameTableName {
		t.Fatal("table name")
	}
}

func rowsFor(deaths []int32, dead []bool, rooms []string) []FrameRow {
	out := make([]FrameRow, len(deaths))
	for i := range out {
		out[i] = FrameRow{Sequence: uint32(i), Deaths: deaths[i], Room: rooms[i]}
		out[i].Control.Dead = dead[i]
	}
	return out
}

func TestExtractRuns(t *testing.T) {
	rows := rowsFor(
		[]int32{0, 0, 0, 0, 1, 1, 1, 1, 1},
		[]bool{false, false, false, true, true, false, false, false, false},
		[]string{"a", "a", "b", "b", "b", "b", "b", "c", "c"},
	)
	runs := ExtractRuns(rows)
	if len(runs) != 2 {
		t.Fatalf("runs = %d", len(runs))
	}
	first := runs[0]
	if !first.Died || len(first.Frames) != 4 || len(first.Rooms) != 2 {
		t.Fatalf("first run = %+v", first)
	}
	second := runs[1]
	if second.Died || second.Start().Sequence != 5 || !second.Visited("c") || second.Visited("a") {
		t.Fatalf("second run = %+v", second)
	}
}

func TestExtractRunsDropsShort(t *testing.T) {
	rows := rowsFor([]int32{0, 1, 1}, []bool{false, false, false}, []string{"a", "a", "a"})
	runs := ExtractRuns(rows)
	if len(runs) != 1 || len(runs[0].Frames) != 2 {
		t.Fatalf("runs = %+v", runs)
	}
}
