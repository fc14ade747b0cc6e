// Package durable buffers log frames and writes them to session files.
package durable

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"tuw-telemetry/internal/metrics"
)

// DefaultStallAfter is how long a paused session may go without a flush.
const DefaultStallAfter = 60 * time.Second

// ErrNoDestination is returned by Flush when no session file is set.
var ErrNoDestination = errors.New("durable: no destination")

// State of the queue.
type State int

const (
	Idle State = iota
	Buffering
)

func (s State) String() string {
	if s == Buffering {
		return "buffering"
	}
	return "idle"
}

// Reason names the trigger of a flush.
type Reason string

const (
	ReasonExit     Reason = "exit"
	ReasonDeath    Reason = "death"
	ReasonStall    Reason = "stall"
	ReasonManual   Reason = "manual"
	ReasonShutdown Reason = "shutdown"
)

// Opener opens the destination for appending.
type Opener func(path string) (io.WriteCloser, error)

// Options configure a Queue.
type Options struct {
	// Persistent keeps one sink open per session. Otherwise each flush
	// opens, writes and closes the file.
	Persistent bool
	StallAfter time.Duration
	Open       Opener
	Now        func() time.Time
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Queue holds log frames in emission order until a flush writes them.
// Frames stay bound to the session file they were appended for, and are
// kept, without bound, while that file cannot be opened or written.
type Queue struct {
	opts Options
	log  *slog.Logger
	warn *rate.Limiter

	// segs holds pending frames per destination, oldest first. The last
	// segment, when its path equals path, belongs to the current file.
	segs   []*segment
	frames int
	bytes  int

	path      string
	sink      io.WriteCloser
	lastFlush time.Time
	flushed   int
}

// segment is the pending tail of one session file. headOff counts the
// bytes of frames[0] already on disk after a short write.
type segment struct {
	path    string
	frames  [][]byte
	headOff int
}

// NewQueue returns an idle queue with no destination.
func NewQueue(opts Options) *Queue {
	if opts.StallAfter <= 0 {
		opts.StallAfter = DefaultStallAfter
	}
	if opts.Open == nil {
		opts.Open = FileOpener
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		opts:      opts,
		log:       log,
		warn:      rate.NewLimiter(rate.Every(5*time.Second), 1),
		lastFlush: opts.Now(),
	}
}

// Open points the queue at a new session file. Frames still pending for
// earlier files are flushed there; any that cannot be written stay queued
// for their own file and are retried on every later flush. Frames appended
// before any destination was set are adopted by path.
func (q *Queue) Open(path string) error {
	var err error
	if q.destined() {
		err = q.Flush(ReasonExit)
	}
	cerr := q.closeSink()
	if cur := q.current(); cur != nil && cur.path == "" {
		cur.path = path
	}
	q.path = path
	q.flushed = 0
	q.lastFlush = q.opts.Now()
	if q.opts.Persistent && path != "" {
		if oerr := q.ensureSink(); oerr != nil {
			q.log.Warn("session file not opened, will retry on flush", "path", path, "err", oerr)
		}
	}
	return errors.Join(err, cerr)
}

// current returns the segment collecting frames for q.path, if any.
func (q *Queue) current() *segment {
	if n := len(q.segs); n > 0 && q.segs[n-1].path == q.path {
		return q.segs[n-1]
	}
	return nil
}

// Append takes ownership of frame.
func (q *Queue) Append(frame []byte) {
	cur := q.current()
	if cur == nil {
		cur = &segment{path: q.path}
		q.segs = append(q.segs, cur)
	}
	cur.frames = append(cur.frames, frame)
	q.frames++
	q.bytes += len(frame)
	q.opts.Metrics.Queue(q.frames, q.bytes)
}

// StallDue reports whether a paused session has gone StallAfter without a
// flush attempt.
func (q *Queue) StallDue(paused bool) bool {
	return paused && q.frames > 0 && q.opts.Now().Sub(q.lastFlush) > q.opts.StallAfter
}

// Flush writes every pending frame, oldest first, one write per session
// file. A frame the sink accepted only in part is resumed at the first
// unwritten byte, so each file stays a plain concatenation of frames.
func (q *Queue) Flush(reason Reason) error {
	q.lastFlush = q.opts.Now()
	if q.frames == 0 {
		return nil
	}
	var errs []error
	cur := q.current()
	kept := q.segs[:0]
	for _, seg := range q.segs {
		if len(seg.frames) > 0 {
			if err := q.flushSegment(seg, reason); err != nil {
				errs = append(errs, err)
			}
		}
		if len(seg.frames) > 0 || seg == cur {
			kept = append(kept, seg)
		}
	}
	clear(q.segs[len(kept):])
	q.segs = kept
	q.opts.Metrics.Queue(q.frames, q.bytes)
	return errors.Join(errs...)
}

func (q *Queue) flushSegment(seg *segment, reason Reason) error {
	if seg.path == "" {
		return ErrNoDestination
	}
	live := seg.path == q.path
	var sink io.WriteCloser
	if live {
		if err := q.ensureSink(); err != nil {
			q.failed(reason, seg, err)
			return fmt.Errorf("open %s: %w", seg.path, err)
		}
		sink = q.sink
	} else {
		w, err := q.opts.Open(seg.path)
		if err != nil {
			q.failed(reason, seg, err)
			return fmt.Errorf("open %s: %w", seg.path, err)
		}
		sink = w
	}

	size := -seg.headOff
	for _, f := range seg.frames {
		size += len(f)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, seg.frames[0][seg.headOff:]...)
	for _, f := range seg.frames[1:] {
		buf = append(buf, f...)
	}
	n, werr := sink.Write(buf)
	frames := q.consume(seg, n)

	var cerr error
	switch {
	case !live:
		cerr = sink.Close()
	case werr != nil || !q.opts.Persistent:
		cerr = q.closeSink()
	}
	if frames > 0 {
		if live {
			q.flushed += frames
		}
		q.opts.Metrics.Flushed(string(reason), frames, n)
		q.log.Debug("log flushed", "reason", reason, "frames", frames, "bytes", n, "path", seg.path)
	}
	if werr != nil {
		q.failed(reason, seg, werr)
		return fmt.Errorf("write %s: %w", seg.path, werr)
	}
	if cerr != nil {
		q.failed(reason, seg, cerr)
		return fmt.Errorf("close %s: %w", seg.path, cerr)
	}
	return nil
}

// consume advances seg past n written bytes and returns the number of
// frames completed.
func (q *Queue) consume(seg *segment, n int) (frames int) {
	q.bytes -= n
	for n > 0 && len(seg.frames) > 0 {
		rest := len(seg.frames[0]) - seg.headOff
		if n < rest {
			seg.headOff += n
			break
		}
		n -= rest
		seg.frames[0] = nil
		seg.frames = seg.frames[1:]
		seg.headOff = 0
		frames++
	}
	if len(seg.frames) == 0 {
		seg.frames = nil
	}
	q.frames -= frames
	return frames
}

func (q *Queue) failed(reason Reason, seg *segment, err error) {
	q.opts.Metrics.FlushFailed()
	if q.warn.Allow() {
		q.log.Warn("log flush failed, frames kept", "reason", reason, "path", seg.path, "pending", len(seg.frames), "err", err)
	}
}

func (q *Queue) ensureSink() error {
	if q.sink != nil {
		return nil
	}
	w, err := q.opts.Open(q.path)
	if err != nil {
		return err
	}
	q.sink = w
	return nil
}

func (q *Queue) closeSink() error {
	if q.sink == nil {
		return nil
	}
	err := q.sink.Close()
	q.sink = nil
	return err
}

// Close flushes what is pending and releases the sink. The destination is
// cleared; frames that could not be written keep their file and are still
// reported by Pending.
func (q *Queue) Close() error {
	var err error
	if q.destined() {
		err = q.Flush(ReasonShutdown)
	}
	err = errors.Join(err, q.closeSink())
	if cur := q.current(); cur != nil && len(cur.frames) == 0 {
		q.segs = q.segs[:len(q.segs)-1]
	}
	q.path = ""
	return err
}

// destined reports whether any pending frame has a session file.
func (q *Queue) destined() bool {
	for _, seg := range q.segs {
		if seg.path != "" && len(seg.frames) > 0 {
			return true
		}
	}
	return false
}

// Pending returns the number of queued frames, across all files.
func (q *Queue) Pending() int { return q.frames }

// PendingFor returns the number of frames queued for path.
func (q *Queue) PendingFor(path string) int {
	n := 0
	for _, seg := range q.segs {
		if seg.path == path {
			n += len(seg.frames)
		}
	}
	return n
}

// PendingBytes returns the unwritten size of queued frames.
func (q *Queue) PendingBytes() int { return q.bytes }

// Flushed returns the frames written since the current file was opened.
func (q *Queue) Flushed() int { return q.flushed }

// Path returns the current destination.
func (q *Queue) Path() string { return q.path }

// State reports Buffering while frames are pending.
func (q *Queue) State() State {
	if q.frames > 0 {
		return Buffering
	}
	return Idle
}
