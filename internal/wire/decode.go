package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	// ErrShortBuffer is returned when a payload ends inside a segment.
	ErrShortBuffer = errors.New("wire: short buffer")
	// ErrUnknownTag is returned for a malformed sub-record.
	ErrUnknownTag = errors.New("wire: unknown sub-record")
)

// Frame is one decoded payload. Transient and Metadata are nil when the
// frame did not carry them.
type Frame struct {
	Header    HeaderRecord    `json:"header"`
	Actor     ActorRecord     `json:"actor"`
	Input     InputRecord     `json:"input"`
	Transient *TransientEvent `json:"transient,omitempty"`
	Flags     []FlagChange    `json:"flags,omitempty"`
	Metadata  *StreamMetadata `json:"metadata,omitempty"`
}

type decoder struct {
	b   []byte
	off int
}

func (d *decoder) need(n int) error {
	if len(d.b)-d.off < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, d.off, len(d.b)-d.off)
	}
	return nil
}

func (d *decoder) u8() byte {
	v := d.b[d.off]
	d.off++
	return v
}

func (d *decoder) u16() uint16 {
	v := binary.LittleEndian.Uint16(d.b[d.off:])
	d.off += 2
	return v
}

func (d *decoder) u32() uint32 {
	v := binary.LittleEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v
}

func (d *decoder) u64() uint64 {
	v := binary.LittleEndian.Uint64(d.b[d.off:])
	d.off += 8
	return v
}

func (d *decoder) f32() float32 { return math.Float32frombits(d.u32()) }

func (d *decoder) cstring() (string, error) {
	i := bytes.IndexByte(d.b[d.off:], 0)
	if i < 0 {
		return "", fmt.Errorf("%w: unterminated string at offset %d", ErrShortBuffer, d.off)
	}
	s := string(d.b[d.off : d.off+i])
	d.off += i + 1
	return s, nil
}

// DecodeFrame parses a payload (the bytes after the u16 prefix) of either
// a live frame or a log frame.
func DecodeFrame(payload []byte) (Frame, error) {
	var f Frame
	d := &decoder{b: payload}

	if err := d.need(HeaderFixedSize); err != nil {
		return f, fmt.Errorf("header: %w", err)
	}
	f.Header.Sequence = d.u32()
	f.Header.Timestamp = math.Float64frombits(d.u64())
	f.Header.Elapsed = int64(d.u64())
	f.Header.Deaths = int32(d.u32())
	room, err := d.cstring()
	if err != nil {
		return f, fmt.Errorf("room: %w", err)
	}
	f.Header.Room = room

	if err := d.need(ActorSize + InputSize); err != nil {
		return f, fmt.Errorf("actor: %w", err)
	}
	a := &f.Actor
	a.PosX, a.PosY, a.VelX, a.VelY = d.f32(), d.f32(), d.f32(), d.f32()
	a.Stamina, a.LiftX, a.LiftY = d.f32(), d.f32(), d.f32()
	a.State = int32(d.u32())
	a.Dashes = int32(d.u32())
	a.Control, a.Status = d.u8(), d.u8()
	f.Input.Buttons, f.Input.Directions = d.u8(), d.u8()
	f.Input.AimX, f.Input.AimY = d.f32(), d.f32()

	if d.off < len(payload) && payload[d.off] == TagTransient {
		if err := d.need(TransientSize); err != nil {
			return f, fmt.Errorf("transient: %w", err)
		}
		d.off++
		if n := d.u8(); n != 2 {
			return f, fmt.Errorf("%w: transient length %d", ErrUnknownTag, n)
		}
		f.Transient = &TransientEvent{Collection: d.u8(), State: d.u8()}
	}

	if d.off < len(payload) && payload[d.off] == TagFlags {
		flags, err := d.flags()
		if err != nil {
			return f, fmt.Errorf("flags: %w", err)
		}
		f.Flags = flags
	}

	if d.off < len(payload) {
		var m StreamMetadata
		if m.AreaID, err = d.cstring(); err != nil {
			return f, fmt.Errorf("metadata: %w", err)
		}
		if m.DisplayName, err = d.cstring(); err != nil {
			return f, fmt.Errorf("metadata: %w", err)
		}
		if d.off != len(payload) {
			return f, fmt.Errorf("%w: %d trailing bytes", ErrUnknownTag, len(payload)-d.off)
		}
		f.Metadata = &m
	}
	return f, nil
}

func (d *decoder) flags() ([]FlagChange, error) {
	if err := d.need(FlagHeaderSize); err != nil {
		return nil, err
	}
	start := d.off
	d.off++
	total := int(d.u16())
	if total < FlagHeaderSize {
		return nil, fmt.Errorf("%w: flag sub-record length %d", ErrUnknownTag, total)
	}
	if len(d.b)-start < total {
		return nil, fmt.Errorf("%w: flag sub-record length %d", ErrShortBuffer, total)
	}
	end := start + total
	sub := &decoder{b: d.b[:end], off: d.off}
	var out []FlagChange
	for sub.off < end {
		name, err := sub.cstring()
		if err != nil {
			return nil, err
		}
		if err := sub.need(1); err != nil {
			return nil, err
		}
		switch st := sub.u8(); st {
		case FlagTrue:
			out = append(out, FlagChange{Name: name, Value: true})
		case FlagFalse:
			out = append(out, FlagChange{Name: name, Value: false})
		default:
			return nil, fmt.Errorf("%w: flag state %d", ErrUnknownTag, st)
		}
	}
	d.off = end
	return out, nil
}

// ReadFramed reads one u16-prefixed payload. It returns io.EOF only when r
// is exhausted exactly on a frame boundary.
func ReadFramed(r io.Reader) ([]byte, error) {
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.LittleEndian.Uint16(prefix[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// LogReader decodes a concatenation of log frames. Metadata from the first
// frame of the file is remembered and exposed through Metadata.
type LogReader struct {
	r    *bufio.Reader
	meta *StreamMetadata
	n    int
}

// NewLogReader wraps r.
func NewLogReader(r io.Reader) *LogReader {
	return &LogReader{r: bufio.NewReader(r)}
}

// Next returns the next frame, or io.EOF at the end of the log.
func (lr *LogReader) Next() (Frame, error) {
	payload, err := ReadFramed(lr.r)
	if err != nil {
		return Frame{}, err
	}
	f, err := DecodeFrame(payload)
	if err != nil {
		return f, fmt.Errorf("frame %d: %w", lr.n, err)
	}
	lr.n++
	if f.Metadata != nil && lr.meta == nil {
		m := *f.Metadata
		lr.meta = &m
	}
	return f, nil
}

// Metadata returns the session identity seen so far, if any.
func (lr *LogReader) Metadata() (StreamMetadata, bool) {
	if lr.meta == nil {
		return StreamMetadata{}, false
	}
	return *lr.meta, true
}

// Count returns the number of frames decoded.
func (lr *LogReader) Count() int { return lr.n }
