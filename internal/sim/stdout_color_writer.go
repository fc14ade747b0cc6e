// ColorStdoutWriter prints human-friendly, colorized frame rows to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"tuw-telemetry/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

var roomPalette = []string{colorGreen, colorYellow, colorBlue, colorMagenta, colorCyan}

// roomColors hands out a stable colour per room name.
type roomColors struct {
	colors map[string]string
	next   int
}

func (rc *roomColors) get(room string) string {
	if rc.colors == nil {
		rc.colors = make(map[string]string)
	}
	if c, ok := rc.colors[room]; ok {
		return c
	}
	c := roomPalette[rc.next%len(roomPalette)]
	rc.colors[room] = c
	rc.next++
	return c
}

// ColorStdoutWriter prints frame rows using ANSI colors.
type ColorStdoutWriter struct {
	ov    Overview
	out   io.Writer
	once  sync.Once
	rooms roomColors
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(ov Overview) *ColorStdoutWriter {
	return &ColorStdoutWriter{ov: ov, out: os.Stdout}
}

func (w *ColorStdoutWriter) printOverview() {
	fmt.Fprintln(w.out, "Session:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	if w.ov.Source != "" {
		fmt.Fprintf(tw, "Source:\t%s\n", w.ov.Source)
	}
	if w.ov.SessionID != "" {
		fmt.Fprintf(tw, "Session ID:\t%s\n", w.ov.SessionID)
	}
	fmt.Fprintf(tw, "Area:\t%s\n", w.ov.AreaID)
	if w.ov.DisplayName != "" {
		fmt.Fprintf(tw, "Name:\t%s\n", w.ov.DisplayName)
	}
	if len(w.ov.Markers) > 0 {
		fmt.Fprintf(tw, "Markers:\t%s\n", strings.Join(w.ov.Markers, ", "))
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single frame row in colorized format.
func (w *ColorStdoutWriter) Write(row telemetry.FrameRow) error {
	w.once.Do(w.printOverview)
	_, err := fmt.Fprintln(w.out, formatRow(row, w.rooms.get(row.Room)))
	return err
}

// WriteBatch outputs multiple frame rows.
func (w *ColorStdoutWriter) WriteBatch(rows []telemetry.FrameRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

func formatRow(row telemetry.FrameRow, roomColor string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]%s ", colorGray, row.Timestamp.Format(time.TimeOnly+".000"), colorReset)
	fmt.Fprintf(&b, "%sseq=%d%s ", colorBlue, row.Sequence, colorReset)
	fmt.Fprintf(&b, "%sroom=%s%s ", roomColor, row.Room, colorReset)
	fmt.Fprintf(&b, "%spos=(%.1f,%.1f)%s ", colorGreen, row.PosX, row.PosY, colorReset)
	fmt.Fprintf(&b, "%svel=(%.1f,%.1f)%s ", colorYellow, row.VelX, row.VelY, colorReset)
	fmt.Fprintf(&b, "%sstam=%.0f%s ", colorCyan, row.Stamina, colorReset)
	fmt.Fprintf(&b, "%sdash=%d%s ", colorMagenta, row.Dashes, colorReset)
	fmt.Fprintf(&b, "deaths=%d", row.Deaths)
	if row.Control.Dead {
		fmt.Fprintf(&b, " %sDEAD%s", colorRed, colorReset)
	}
	if row.Control.Paused {
		fmt.Fprintf(&b, " %spaused%s", colorGray, colorReset)
	}
	if ev := eventSummary(row); ev != "" {
		fmt.Fprintf(&b, " %s%s%s", colorMagenta, ev, colorReset)
	}
	return b.String()
}

// eventSummary lists transient bits and flag changes of a row.
func eventSummary(row telemetry.FrameRow) string {
	var parts []string
	parts = append(parts, row.Collection...)
	parts = append(parts, row.StateEvents...)
	for _, f := range row.Flags {
		sign := "+"
		if !f.Value {
			sign = "-"
		}
		parts = append(parts, sign+f.Name)
	}
	if len(parts) > 8 {
		parts = append(parts[:8], fmt.Sprintf("…%d more", len(parts)-8))
	}
	return strings.Join(parts, " ")
}
