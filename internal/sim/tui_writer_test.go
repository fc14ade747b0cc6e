package sim

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"tuw-telemetry/internal/telemetry"
)

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

func TestTUIWriterMessages(t *testing.T) {
	p := &fakeProgram{}
	w := &TUIWriter{program: p}
	if err := w.Write(telemetry.FrameRow{Room: "a", Sequence: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(p.msgs) != 2 {
		t.Fatalf("expected log and frame messages, got %d", len(p.msgs))
	}
	if _, ok := p.msgs[0].(logMsg); !ok {
		t.Fatalf("expected logMsg, got %T", p.msgs[0])
	}
	if _, ok := p.msgs[1].(frameMsg); !ok {
		t.Fatalf("expected frameMsg, got %T", p.msgs[1])
	}

	p.msgs = nil
	if err := w.Write(sampleRow()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := p.msgs[1].(eventMsg); !ok {
		t.Fatalf("expected eventMsg for a row with events, got %T", p.msgs[1])
	}
	w.SetAdminStatus(true)
	if _, ok := p.msgs[len(p.msgs)-1].(adminMsg); !ok {
		t.Fatalf("expected adminMsg")
	}
}

func update(t *testing.T, m tuiModel, msg tea.Msg) tuiModel {
	t.Helper()
	mi, _ := m.Update(msg)
	return mi.(tuiModel)
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestWrapToggle(t *testing.T) {
	m := newTUIModel(Overview{AreaID: "a"})
	m = update(t, m, tea.WindowSizeMsg{Width: 20, Height: 40})
	m = update(t, m, logMsg{line: "one two three four five six", room: "a"})
	lines := strings.Split(m.vp.View(), "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[1]) != "" {
		t.Fatalf("expected single line before wrap")
	}
	m = update(t, m, runes("w"))
	if !m.wrap {
		t.Fatalf("wrap not toggled")
	}
	lines = strings.Split(m.vp.View(), "\n")
	if strings.TrimSpace(lines[1]) == "" {
		t.Fatalf("expected wrapped content on second line")
	}
}

func TestScrollToggle(t *testing.T) {
	m := newTUIModel(Overview{})
	m.vp.Height = 1
	m.vp.Width = 20
	m = update(t, m, logMsg{line: "l1"})
	m = update(t, m, logMsg{line: "l2"})
	if m.vp.YOffset != 1 {
		t.Fatalf("expected YOffset 1, got %d", m.vp.YOffset)
	}
	m = update(t, m, runes("s"))
	if m.autoscroll {
		t.Fatalf("autoscroll should be off")
	}
	m = update(t, m, logMsg{line: "l3"})
	if m.vp.YOffset != 1 {
		t.Fatalf("expected YOffset unchanged, got %d", m.vp.YOffset)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.vp.YOffset != 0 {
		t.Fatalf("expected YOffset 0 after scrolling up, got %d", m.vp.YOffset)
	}
	m = update(t, m, runes("s"))
	if !m.autoscroll {
		t.Fatalf("autoscroll should be on")
	}
	if expected := len(m.logs) - m.vp.Height; m.vp.YOffset != expected {
		t.Fatalf("expected YOffset %d, got %d", expected, m.vp.YOffset)
	}
}

func TestRoomFilter(t *testing.T) {
	m := newTUIModel(Overview{})
	m = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 40})
	m = update(t, m, logMsg{line: "first-room", room: "a"})
	m = update(t, m, logMsg{line: "second-room", room: "b"})

	m = update(t, m, runes("/"))
	if !m.filterDialog {
		t.Fatal("filter dialog not opened")
	}
	m = update(t, m, runes("b"))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.filter != "b" || m.filterDialog {
		t.Fatalf("filter = %q dialog=%v", m.filter, m.filterDialog)
	}
	view := m.vp.View()
	if strings.Contains(view, "first-room") || !strings.Contains(view, "second-room") {
		t.Fatalf("filtered view = %q", view)
	}
	m = update(t, m, runes("c"))
	if !strings.Contains(m.vp.View(), "first-room") {
		t.Fatal("filter not cleared")
	}
}

func TestStatusLine(t *testing.T) {
	m := newTUIModel(Overview{})
	if !strings.Contains(m.renderBottom(), "waiting") {
		t.Fatal("expected waiting state")
	}
	m = update(t, m, frameMsg{sampleRow()})
	m = update(t, m, adminMsg{active: true})
	bottom := m.renderBottom()
	if !strings.Contains(bottom, "room=r1") || !strings.Contains(bottom, "dead_frames=1") || !m.admin {
		t.Fatalf("bottom = %q", bottom)
	}
	m = update(t, m, runes("?"))
	if !strings.Contains(m.View(), "Key Bindings") {
		t.Fatal("help not shown")
	}
}
