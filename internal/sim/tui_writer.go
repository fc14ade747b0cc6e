package sim

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"tuw-telemetry/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a frame line for the main viewport.
type logMsg struct {
	line string
	room string
}

// eventMsg carries an event line for the events section.
type eventMsg struct{ line string }

// frameMsg carries the decoded row for the status line.
type frameMsg struct{ telemetry.FrameRow }

// adminMsg reports admin server status.
type adminMsg struct{ active bool }

const (
	maxLogLines         = 2000
	maxSectionHeightPct = 0.25
)

// TUIWriter renders frame rows using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	rooms      roomColors
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(ov Overview) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(ov), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements TelemetryWriter.
func (w *TUIWriter) Write(row telemetry.FrameRow) error {
	w.program.Send(logMsg{line: formatRow(row, w.rooms.get(row.Room)), room: row.Room})
	if row.HasEvents() || row.Control.Dead {
		line := fmt.Sprintf("%s#%d%s %s", colorGray, row.Sequence, colorReset, eventSummary(row))
		if row.Control.Dead {
			line += fmt.Sprintf(" %sdeath %d%s", colorRed, row.Deaths, colorReset)
		}
		w.program.Send(eventMsg{line: line})
	}
	w.program.Send(frameMsg{row})
	return nil
}

// WriteBatch outputs multiple frame rows.
func (w *TUIWriter) WriteBatch(rows []telemetry.FrameRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// SetAdminStatus updates the admin server indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type logLine struct {
	text string
	room string
}

type tuiModel struct {
	ov           Overview
	table        table.Model
	vp           viewport.Model
	evVP         viewport.Model
	logs         []logLine
	evLogs       []string
	last         telemetry.FrameRow
	haveFrame    bool
	frames       int
	deadFrames   int
	admin        bool
	wrap         bool
	autoscroll   bool
	help         bool
	filter       string
	filterInput  textinput.Model
	filterDialog bool
	header       string
	headerHeight int
	height       int
}

func newTUIModel(ov Overview) tuiModel {
	cols := []table.Column{
		{Title: "Session", Width: 12},
		{Title: "Value", Width: 38},
	}
	rows := []table.Row{
		{"Area", ov.AreaID},
		{"Name", ov.DisplayName},
		{"Session ID", ov.SessionID},
		{"Source", ov.Source},
	}
	if len(ov.Markers) > 0 {
		rows = append(rows, table.Row{"Markers", strings.Join(ov.Markers, ", ")})
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	fi := textinput.New()
	fi.Placeholder = "room"
	fi.CharLimit = 64
	return tuiModel{
		ov:          ov,
		table:       t,
		vp:          viewport.New(0, 0),
		evVP:        viewport.New(0, 0),
		filterInput: fi,
		autoscroll:  true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.evVP.Width = msg.Width
		m.height = msg.Height
		m.header = m.renderHeader()
		m.headerHeight = lipgloss.Height(m.header)
		m.updateViewportHeight()
		m.refreshViewport()
		m.refreshEvents()
	case tea.KeyMsg:
		if m.filterDialog {
			switch msg.Type {
			case tea.KeyEnter:
				m.filter = strings.TrimSpace(m.filterInput.Value())
				m.filterDialog = false
				m.filterInput.Blur()
				m.updateViewportHeight()
				m.refreshViewport()
			case tea.KeyEsc:
				m.filterDialog = false
				m.filterInput.Blur()
				m.updateViewportHeight()
			default:
				var cmd tea.Cmd
				m.filterInput, cmd = m.filterInput.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		if m.help {
			switch msg.String() {
			case "h", "?", "esc", "q":
				m.help = false
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			m.refreshEvents()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
				m.evVP.GotoBottom()
			}
		case "/":
			m.filterDialog = true
			m.filterInput.SetValue(m.filter)
			m.filterInput.Focus()
			m.updateViewportHeight()
			return m, textinput.Blink
		case "c":
			m.filter = ""
			m.refreshViewport()
		case "h", "?":
			m.help = true
		default:
			if !m.autoscroll {
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
	case logMsg:
		m.logs = append(m.logs, logLine{text: msg.line, room: msg.room})
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case eventMsg:
		m.evLogs = append(m.evLogs, msg.line)
		if len(m.evLogs) > maxLogLines {
			m.evLogs = m.evLogs[len(m.evLogs)-maxLogLines:]
		}
		m.updateViewportHeight()
		m.refreshEvents()
	case frameMsg:
		m.last = msg.FrameRow
		m.haveFrame = true
		m.frames++
		if msg.Control.Dead {
			m.deadFrames++
		}
	case adminMsg:
		m.admin = msg.active
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	bottomHeight := lipgloss.Height(m.renderBottom())
	evLines := len(m.evLogs)
	if evLines == 0 {
		evLines = 1
	}
	if limit := m.maxSectionLines(); evLines > limit {
		evLines = limit
	}
	m.evVP.Height = evLines
	dialog := 0
	if m.filterDialog {
		dialog = 2
	}
	h := m.height - m.headerHeight - bottomHeight - (1 + m.evVP.Height) - dialog - 3
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.evVP.GotoBottom()
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.filter != "" && l.room != m.filter {
			continue
		}
		if m.wrap && m.vp.Width > 0 {
			lines = append(lines, wordwrap.String(l.text, m.vp.Width))
		} else {
			lines = append(lines, l.text)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshEvents() {
	content := "none"
	if len(m.evLogs) > 0 {
		lines := m.evLogs
		if m.wrap && m.evVP.Width > 0 {
			lines = make([]string, len(m.evLogs))
			for i, l := range m.evLogs {
				lines[i] = wordwrap.String(l, m.evVP.Width)
			}
		}
		content = strings.Join(lines, "\n")
	}
	m.evVP.SetContent(content)
	if m.autoscroll {
		m.evVP.GotoBottom()
	}
}

func (m tuiModel) maxSectionLines() int {
	h := int(float64(m.height) * maxSectionHeightPct)
	if h < 1 {
		h = 1
	}
	return h
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	sections := []string{
		m.header,
		divider,
		m.vp.View(),
		divider,
		"Events:",
		m.evVP.View(),
	}
	if m.filterDialog {
		sections = append(sections, divider, "Filter by room (enter to apply, esc to cancel): "+m.filterInput.View())
	}
	sections = append(sections, divider, m.renderBottom())
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	return m.table.View()
}

func indicator(on bool) string {
	c := lipgloss.Color("9")
	if on {
		c = lipgloss.Color("10")
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m tuiModel) renderBottom() string {
	state := fmt.Sprintf("%sSTATE%s waiting for frames", colorBlue, colorReset)
	if m.haveFrame {
		state = fmt.Sprintf("%sSTATE%s %sseq=%d%s %sroom=%s%s %sdeaths=%d%s %sframes=%d%s %sdead_frames=%d%s",
			colorBlue, colorReset,
			colorGreen, m.last.Sequence, colorReset,
			colorYellow, m.last.Room, colorReset,
			colorRed, m.last.Deaths, colorReset,
			colorCyan, m.frames, colorReset,
			colorMagenta, m.deadFrames, colorReset)
	}
	filter := "off"
	if m.filter != "" {
		filter = m.filter
	}
	return fmt.Sprintf("%s | Admin %s | Wrap %s | Scroll %s | Filter %s | Help %s",
		state, indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll), filter, indicator(m.help))
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle line wrap",
		" s  toggle auto-scroll",
		" /  filter frames by room",
		" c  clear the room filter",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}
