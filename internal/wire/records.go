package wire

import (
	"encoding/binary"
	"math"
)

// Fixed segment sizes in bytes.
const (
	HeaderFixedSize = 24 // without the room name
	ActorSize       = 38
	InputSize       = 10
	TransientSize   = 4
	FlagHeaderSize  = 3
	PrefixSize      = 2
)

// Sub-record tags following the input segment.
const (
	TagTransient byte = 1
	TagFlags     byte = 2
)

// Flag change states.
const (
	FlagTrue  byte = 1
	FlagFalse byte = 255
)

// MaxFrameLen is the largest payload a u16 length prefix can describe.
const MaxFrameLen = math.MaxUint16

// HeaderRecord opens every frame.
type HeaderRecord struct {
	Sequence  uint32  `json:"sequence"`
	Timestamp float64 `json:"timestamp"`
	Elapsed   int64   `json:"elapsed"`
	Deaths    int32   `json:"deaths"`
	Room      string  `json:"room"`
}

// Size returns the encoded length including the room terminator.
func (h HeaderRecord) Size() int {
	return HeaderFixedSize + StringSize(h.Room)
}

// AppendTo appends the encoded header to b.
func (h HeaderRecord) AppendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.Sequence)
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(h.Timestamp))
	b = binary.LittleEndian.AppendUint64(b, uint64(h.Elapsed))
	b = binary.LittleEndian.AppendUint32(b, uint32(h.Deaths))
	return AppendString(b, h.Room)
}

// ActorRecord is the fixed 38 byte actor snapshot.
type ActorRecord struct {
	PosX    float32 `json:"pos_x"`
	PosY    float32 `json:"pos_y"`
	VelX    float32 `json:"vel_x"`
	VelY    float32 `json:"vel_y"`
	Stamina float32 `json:"stamina"`
	LiftX   float32 `json:"lift_x"`
	LiftY   float32 `json:"lift_y"`
	State   int32   `json:"state"`
	Dashes  int32   `json:"dashes"`
	Control byte    `json:"control"`
	Status  byte    `json:"status"`
}

// AppendTo appends the encoded actor to b.
func (a ActorRecord) AppendTo(b []byte) []byte {
	for _, f := range [...]float32{a.PosX, a.PosY, a.VelX, a.VelY, a.Stamina, a.LiftX, a.LiftY} {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(a.State))
	b = binary.LittleEndian.AppendUint32(b, uint32(a.Dashes))
	return append(b, a.Control, a.Status)
}

// InputRecord is the fixed 10 byte input snapshot.
type InputRecord struct {
	Buttons    byte    `json:"buttons"`
	Directions byte    `json:"directions"`
	AimX       float32 `json:"aim_x"`
	AimY       float32 `json:"aim_y"`
}

// AppendTo appends the encoded input to b.
func (in InputRecord) AppendTo(b []byte) []byte {
	b = append(b, in.Buttons, in.Directions)
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(in.AimX))
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(in.AimY))
}

// StreamMetadata identifies the session a frame belongs to.
type StreamMetadata struct {
	AreaID      string `json:"area_id"`
	DisplayName string `json:"display_name"`
}

// Size returns the encoded length of both strings and terminators.
func (m StreamMetadata) Size() int {
	return StringSize(m.AreaID) + StringSize(m.DisplayName)
}

// AppendTo appends the encoded metadata to b.
func (m StreamMetadata) AppendTo(b []byte) []byte {
	b = AppendString(b, m.AreaID)
	return AppendString(b, m.DisplayName)
}

// TransientEvent carries the two event bitfields of one tick.
type TransientEvent struct {
	Collection byte `json:"collection"`
	State      byte `json:"state"`
}

// Any reports whether at least one bit is set.
func (t TransientEvent) Any() bool {
	return t.Collection|t.State != 0
}

// AppendTo appends the tagged 4 byte sub-record to b.
func (t TransientEvent) AppendTo(b []byte) []byte {
	return append(b, TagTransient, 2, t.Collection, t.State)
}

// FlagChange records one transition of a named flag.
type FlagChange struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

// Size returns the encoded record length.
func (f FlagChange) Size() int {
	return StringSize(f.Name) + 1
}

// AppendFlagChange appends a single flag change record to b.
func AppendFlagChange(b []byte, f FlagChange) []byte {
	b = AppendString(b, f.Name)
	if f.Value {
		return append(b, FlagTrue)
	}
	return append(b, FlagFalse)
}

// FlagSubrecordSize returns the encoded length of the flag sub-record
// including its 3 byte header, or 0 when changes is empty.
func FlagSubrecordSize(changes []FlagChange) int {
	if len(changes) == 0 {
		return 0
	}
	n := FlagHeaderSize
	for _, c := range changes {
		n += c.Size()
	}
	return n
}

// AppendFlagSubrecord appends the tagged flag sub-record. Nothing is
// written for an empty list. The caller keeps the total under MaxFrameLen.
func AppendFlagSubrecord(b []byte, changes []FlagChange) []byte {
	if len(changes) == 0 {
		return b
	}
	b = append(b, TagFlags)
	b = binary.LittleEndian.AppendUint16(b, uint16(FlagSubrecordSize(changes)))
	for _, c := range changes {
		b = AppendFlagChange(b, c)
	}
	return b
}

// StringSize is the encoded length of s: one byte per rune plus the terminator.
func StringSize(s string) int {
	n := 1
	for range s {
		n++
	}
	return n
}

// AppendString writes s as printable ASCII followed by 0x00. Runes outside
// 0x20..0x7e become '?', which keeps a string from ever starting with a
// sub-record tag or embedding a terminator.
func AppendString(b []byte, s string) []byte {
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			r = '?'
		}
		b = append(b, byte(r))
	}
	return append(b, 0)
}
