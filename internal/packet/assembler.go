// Package packet builds live and log frames from one tick's records.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"tuw-telemetry/internal/events"
	"tuw-telemetry/internal/wire"
)

// ErrFrameTooLarge is returned when even the fixed segments cannot be
// described by a u16 length prefix.
var ErrFrameTooLarge = errors.New("packet: frame exceeds u16 length")

// DefaultLiveCapacity is the size of the shared live region.
const DefaultLiveCapacity = 4096

// FramingState is the per-log-file framing state.
type FramingState int

const (
	// AwaitingFirstFrame means the next log frame carries the metadata.
	AwaitingFirstFrame FramingState = iota
	// Streaming means metadata has been written to this log file.
	Streaming
)

func (s FramingState) String() string {
	switch s {
	case AwaitingFirstFrame:
		return "awaiting_first_frame"
	case Streaming:
		return "streaming"
	default:
		return fmt.Sprintf("FramingState(%d)", int(s))
	}
}

// Framing tracks whether the open log file has received its first frame.
// The zero value is AwaitingFirstFrame.
type Framing struct {
	state FramingState
}

// Reset returns to AwaitingFirstFrame. Call it whenever a new log file is opened.
func (f *Framing) Reset() { f.state = AwaitingFirstFrame }

// State reports the current state.
func (f *Framing) State() FramingState { return f.state }

// Tick is everything one frame is built from.
type Tick struct {
	Header   wire.HeaderRecord
	Actor    wire.ActorRecord
	Input    wire.InputRecord
	Events   events.Drained
	Metadata wire.StreamMetadata
}

// Packet holds the frames built for one tick. Both include the u16 prefix.
// Live is nil when it could not fit the live region; Log is nil when no
// framing was supplied.
type Packet struct {
	Live []byte
	Log  []byte
	// FirstLogFrame is set when Log carries the metadata.
	FirstLogFrame bool
	// FlagsTrimmed is set when the flag sub-record was left out of a frame.
	FlagsTrimmed bool
}

// Assembler turns ticks into frames.
type Assembler struct {
	liveCap int
	log     *slog.Logger
	warn    *rate.Limiter
}

// NewAssembler returns an assembler for a live region of liveCap bytes.
func NewAssembler(liveCap int, log *slog.Logger) *Assembler {
	if liveCap <= 0 {
		liveCap = DefaultLiveCapacity
	}
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{liveCap: liveCap, log: log, warn: rate.NewLimiter(rate.Limit(1), 1)}
}

// LiveCapacity returns the region size frames are checked against.
func (a *Assembler) LiveCapacity() int { return a.liveCap }

// CheckFits returns ErrFrameTooLarge when no frame with header h and
// metadata meta fits a u16 length, whatever events the tick carries.
func CheckFits(h wire.HeaderRecord, meta wire.StreamMetadata) error {
	if n := h.Size() + wire.ActorSize + wire.InputSize + wire.TransientSize + meta.Size(); n > wire.MaxFrameLen {
		return fmt.Errorf("%w: %d bytes before flags", ErrFrameTooLarge, n)
	}
	return nil
}

// Assemble builds the live frame and, when framing is non-nil, the log frame.
// The framing advances to Streaming once a log frame has been built.
func (a *Assembler) Assemble(t Tick, framing *Framing) (Packet, error) {
	var pkt Packet

	fixed := t.Header.Size() + wire.ActorSize + wire.InputSize
	if t.Events.Transient.Any() {
		fixed += wire.TransientSize
	}
	flagLen := wire.FlagSubrecordSize(t.Events.Changes)
	metaLen := t.Metadata.Size()

	if fixed+metaLen > wire.MaxFrameLen {
		return pkt, fmt.Errorf("%w: %d bytes before flags", ErrFrameTooLarge, fixed+metaLen)
	}
	withFlags := flagLen > 0
	if withFlags && fixed+flagLen+metaLen > wire.MaxFrameLen {
		withFlags = false
		pkt.FlagsTrimmed = true
		a.warnf("flag sub-record dropped from frame", "sequence", t.Header.Sequence, "records", len(t.Events.Changes))
	}

	core := a.core(t, withFlags, fixed+flagLen)

	liveLen := len(core) + metaLen
	switch {
	case wire.PrefixSize+liveLen <= a.liveCap:
		pkt.Live = frame(core, t.Metadata, true)
	case wire.PrefixSize+fixed+metaLen <= a.liveCap:
		// The live channel only needs the latest state; keep the flag bit but
		// leave the record list to the log.
		pkt.Live = frame(a.core(t, false, fixed), t.Metadata, true)
		pkt.FlagsTrimmed = true
	default:
		a.warnf("live frame exceeds region", "sequence", t.Header.Sequence, "bytes", wire.PrefixSize+liveLen, "capacity", a.liveCap)
	}

	if framing == nil {
		return pkt, nil
	}
	switch framing.state {
	case AwaitingFirstFrame:
		if pkt.Live != nil && len(pkt.Live) == wire.PrefixSize+liveLen {
			pkt.Log = append([]byte(nil), pkt.Live...)
		} else {
			pkt.Log = frame(core, t.Metadata, true)
		}
		pkt.FirstLogFrame = true
		framing.state = Streaming
	default:
		pkt.Log = frame(core, t.Metadata, false)
	}
	return pkt, nil
}

func (a *Assembler) core(t Tick, withFlags bool, sizeHint int) []byte {
	b := make([]byte, 0, sizeHint)
	b = t.Header.AppendTo(b)
	b = t.Actor.AppendTo(b)
	b = t.Input.AppendTo(b)
	if t.Events.Transient.Any() {
		b = t.Events.Transient.AppendTo(b)
	}
	if withFlags {
		b = wire.AppendFlagSubrecord(b, t.Events.Changes)
	}
	return b
}

func frame(core []byte, meta wire.StreamMetadata, withMeta bool) []byte {
	n := len(core)
	if withMeta {
		n += meta.Size()
	}
	b := make([]byte, 0, wire.PrefixSize+n)
	b = binary.LittleEndian.AppendUint16(b, uint16(n))
	b = append(b, core...)
	if withMeta {
		b = meta.AppendTo(b)
	}
	return b
}

func (a *Assembler) warnf(msg string, args ...any) {
	if a.warn.Allow() {
		a.log.Warn(msg, args...)
	}
}
