package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func sampleHeader() HeaderRecord {
	return HeaderRecord{Sequence: 7, Timestamp: 1700000000.25, Elapsed: 123456, Deaths: 3, Room: "a-01"}
}

func sampleActor() ActorRecord {
	return ActorRecord{
		PosX: 10.5, PosY: -20.25, VelX: 90, VelY: -105, Stamina: 110,
		LiftX: 1, LiftY: -2, State: 2, Dashes: 1,
		Control: PackControl(ControlFlags{HasControl: true}),
		Status:  PackStatus(StatusFlags{OnGround: true, OnSafeGround: true}),
	}
}

func TestHeaderLayout(t *testing.T) {
	b := sampleHeader().AppendTo(nil)
	if len(b) != HeaderFixedSize+5 {
		t.Fatalf("len = %d", len(b))
	}
	if binary.LittleEndian.Uint32(b[0:]) != 7 {
		t.Errorf("sequence not at offset 0")
	}
	if int64(binary.LittleEndian.Uint64(b[12:])) != 123456 {
		t.Errorf("elapsed not at offset 12")
	}
	if int32(binary.LittleEndian.Uint32(b[20:])) != 3 {
		t.Errorf("deaths not at offset 20")
	}
	if string(b[24:28]) != "a-01" || b[28] != 0 {
		t.Errorf("room = %q", b[24:])
	}
}

func TestFixedSizes(t *testing.T) {
	if n := len(sampleActor().AppendTo(nil)); n != ActorSize {
		t.Errorf("actor size %d", n)
	}
	if n := len(InputRecord{AimX: 1}.AppendTo(nil)); n != InputSize {
		t.Errorf("input size %d", n)
	}
	if n := len(TransientEvent{Collection: 1}.AppendTo(nil)); n != TransientSize {
		t.Errorf("transient size %d", n)
	}
}

func TestBitOrder(t *testing.T) {
	tests := []struct {
		name string
		got  byte
		want byte
	}{
		{"dead", PackControl(ControlFlags{Dead: true}), 0x80},
		{"gravity", PackControl(ControlFlags{GravityInverted: true}), 0x04},
		{"paused", PackControl(ControlFlags{Paused: true}), 0x08},
		{"holding", PackStatus(StatusFlags{Holding: true}), 0x80},
		{"on ground", PackStatus(StatusFlags{OnGround: true}), 0x01},
		{"quick restart", PackButtons(ButtonFlags{QuickRestart: true}), 0x80},
		{"jump", PackButtons(ButtonFlags{Jump: true}), 0x01},
		{"marker0", PackDirections(DirectionFlags{Markers: [4]bool{true}}), 0x80},
		{"up", PackDirections(DirectionFlags{Up: true}), 0x08},
		{"right", PackDirections(DirectionFlags{Right: true}), 0x01},
		{"berry", CollectedBerry, 0x01},
		{"follower", GainedFollower, 0x80},
		{"flag changed", FlagChanged, 0x02},
		{"clutter", ClutterSwitchPressed, 0x80},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %#02x want %#02x", tt.name, tt.got, tt.want)
		}
	}
}

func TestUnpackInverse(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		if got := PackStatus(UnpackStatus(b)); got != b {
			t.Fatalf("status %#02x -> %#02x", b, got)
		}
		if got := PackButtons(UnpackButtons(b)); got != b {
			t.Fatalf("buttons %#02x -> %#02x", b, got)
		}
		if got := PackDirections(UnpackDirections(b)); got != b {
			t.Fatalf("directions %#02x -> %#02x", b, got)
		}
		if got := PackControl(UnpackControl(b)); got != b&0xfc {
			t.Fatalf("control %#02x -> %#02x", b, got)
		}
	}
}

func TestEventNames(t *testing.T) {
	got := CollectionNames(GainedFollower | CollectedBerry | collectionReserved)
	want := []string{"gained_follower", "collected_berry"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("collection names = %v", got)
	}
	if got := StateNames(FlagChanged); !reflect.DeepEqual(got, []string{"flag_changed"}) {
		t.Errorf("state names = %v", got)
	}
}

func TestAppendStringSanitises(t *testing.T) {
	b := AppendString(nil, "é\x01ok")
	if string(b) != "??ok\x00" {
		t.Fatalf("got %q", b)
	}
	if StringSize("é\x01ok") != len(b) {
		t.Fatalf("size mismatch")
	}
}

func TestFlagSubrecord(t *testing.T) {
	changes := []FlagChange{{Name: "door", Value: true}, {Name: "x", Value: false}}
	b := AppendFlagSubrecord(nil, changes)
	if b[0] != TagFlags {
		t.Fatalf("tag = %d", b[0])
	}
	if n := int(binary.LittleEndian.Uint16(b[1:])); n != len(b) || n != FlagSubrecordSize(changes) {
		t.Fatalf("total_len = %d, encoded %d", n, len(b))
	}
	want := []byte{2, 12, 0, 'd', 'o', 'o', 'r', 0, 1, 'x', 0, 255}
	if !bytes.Equal(b, want) {
		t.Fatalf("got %v", b)
	}
	if AppendFlagSubrecord(nil, nil) != nil {
		t.Fatalf("empty list should write nothing")
	}
}

func buildPayload(withMeta bool, tr *TransientEvent, flags []FlagChange) []byte {
	b := sampleHeader().AppendTo(nil)
	b = sampleActor().AppendTo(b)
	b = InputRecord{Buttons: 0x81, Directions: 0x0a, AimX: 0.5, AimY: -1}.AppendTo(b)
	if tr != nil {
		b = tr.AppendTo(b)
	}
	b = AppendFlagSubrecord(b, flags)
	if withMeta {
		b = StreamMetadata{AreaID: "Celeste/1-ForsakenCity", DisplayName: "Forsaken City"}.AppendTo(b)
	}
	return b
}

func TestDecodeRoundTrip(t *testing.T) {
	tr := &TransientEvent{Collection: CollectedBerry, State: FlagChanged}
	flags := []FlagChange{{Name: "door", Value: true}}
	payload := buildPayload(true, tr, flags)

	f, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Header != sampleHeader() {
		t.Errorf("header = %+v", f.Header)
	}
	if f.Actor != sampleActor() {
		t.Errorf("actor = %+v", f.Actor)
	}
	if f.Input.Buttons != 0x81 || f.Input.AimY != -1 {
		t.Errorf("input = %+v", f.Input)
	}
	if f.Transient == nil || *f.Transient != *tr {
		t.Errorf("transient = %v", f.Transient)
	}
	if !reflect.DeepEqual(f.Flags, flags) {
		t.Errorf("flags = %v", f.Flags)
	}
	if f.Metadata == nil || f.Metadata.DisplayName != "Forsaken City" {
		t.Errorf("metadata = %v", f.Metadata)
	}

	re := f.Header.AppendTo(nil)
	re = f.Actor.AppendTo(re)
	re = f.Input.AppendTo(re)
	re = f.Transient.AppendTo(re)
	re = AppendFlagSubrecord(re, f.Flags)
	re = f.Metadata.AppendTo(re)
	if !bytes.Equal(re, payload) {
		t.Fatalf("re-encoded payload differs")
	}
}

func TestDecodeOptionalSegments(t *testing.T) {
	f, err := DecodeFrame(buildPayload(false, nil, nil))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Transient != nil || f.Flags != nil || f.Metadata != nil {
		t.Fatalf("unexpected optional segments: %+v", f)
	}
	f, err = DecodeFrame(buildPayload(false, nil, []FlagChange{{Name: "a", Value: false}}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(f.Flags) != 1 || f.Metadata != nil {
		t.Fatalf("flags only frame decoded as %+v", f)
	}
}

func TestDecodeErrors(t *testing.T) {
	full := buildPayload(true, nil, nil)
	if _, err := DecodeFrame(full[:10]); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("short header: %v", err)
	}
	if _, err := DecodeFrame(full[:HeaderFixedSize+5+20]); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("short actor: %v", err)
	}
	bad := buildPayload(false, nil, []FlagChange{{Name: "a", Value: true}})
	bad[len(bad)-1] = 7
	if _, err := DecodeFrame(bad); !errors.Is(err, ErrUnknownTag) {
		t.Errorf("bad flag state: %v", err)
	}
	trailing := append(buildPayload(true, nil, nil), 'z')
	if _, err := DecodeFrame(trailing); err == nil {
		t.Errorf("expected error for unterminated trailing bytes")
	}
}

func frame(payload []byte) []byte {
	b := binary.LittleEndian.AppendUint16(nil, uint16(len(payload)))
	return append(b, payload...)
}

func TestLogReader(t *testing.T) {
	var log bytes.Buffer
	log.Write(frame(buildPayload(true, nil, nil)))
	log.Write(frame(buildPayload(false, &TransientEvent{State: PlayerSpawned}, nil)))

	lr := NewLogReader(&log)
	first, err := lr.Next()
	if err != nil || first.Metadata == nil {
		t.Fatalf("first frame: %v %+v", err, first)
	}
	second, err := lr.Next()
	if err != nil || second.Metadata != nil || second.Transient == nil {
		t.Fatalf("second frame: %v %+v", err, second)
	}
	if _, err := lr.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	meta, ok := lr.Metadata()
	if !ok || !strings.HasPrefix(meta.AreaID, "Celeste/") {
		t.Fatalf("metadata = %+v %v", meta, ok)
	}
	if lr.Count() != 2 {
		t.Fatalf("count = %d", lr.Count())
	}
}

func TestLogReaderTruncated(t *testing.T) {
	b := frame(buildPayload(false, nil, nil))
	lr := NewLogReader(bytes.NewReader(b[:len(b)-3]))
	if _, err := lr.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}
