// Writer selection for STDOUT
package sim

import (
	"os"

	"golang.org/x/term"
)

// Overview is printed once before the first colourised row.
type Overview struct {
	Source      string
	SessionID   string
	AreaID      string
	DisplayName string
	Markers     []string
}

// NewStdoutWriter returns a colourised writer when STDOUT is a terminal and
// a JSON lines writer otherwise, so piped output stays machine-readable.
func NewStdoutWriter(ov Overview) TelemetryWriter {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return NewColorStdoutWriter(ov)
	}
	return NewJSONStdoutWriter()
}
