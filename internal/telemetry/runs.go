package telemetry

// Run is a stretch of frames between two spawns.
type Run struct {
	Frames []FrameRow
	Rooms  []string // in order of first visit
	Died   bool
}

// Start returns the first frame.
func (r Run) Start() FrameRow { return r.Frames[0] }

// Visited reports whether the run entered room.
func (r Run) Visited(room string) bool {
	for _, rm := range r.Rooms {
		if rm == room {
			return true
		}
	}
	return false
}

// ExtractRuns splits rows at deaths. A run ends on the frame where the dead
// flag is first seen or the death counter moves; frames while dead are not
// part of any run. Runs shorter than two frames are dropped.
func ExtractRuns(rows []FrameRow) []Run {
	var (
		runs []Run
		cur  Run
	)
	flush := func() {
		if len(cur.Frames) >= 2 {
			runs = append(runs, cur)
		}
		cur = Run{}
	}
	for i, row := range rows {
		if i > 0 && row.Deaths != rows[i-1].Deaths && len(cur.Frames) > 0 {
			cur.Died = true
			flush()
		}
		if row.Control.Dead {
			if len(cur.Frames) > 0 {
				cur.Frames = append(cur.Frames, row)
				cur.Died = true
				flush()
			}
			continue
		}
		if len(cur.Frames) == 0 || cur.Frames[len(cur.Frames)-1].Room != row.Room {
			if !cur.Visited(row.Room) {
				cur.Rooms = append(cur.Rooms, row.Room)
			}
		}
		cur.Frames = append(cur.Frames, row)
	}
	flush()
	return runs
}
