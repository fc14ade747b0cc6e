package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"tuw-telemetry/internal/telemetry"
)

// JSONStdoutWriter prints frame rows as JSON lines to STDOUT.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return NewJSONWriter(os.Stdout)
}

// NewJSONWriter writes JSON lines to out.
func NewJSONWriter(out io.Writer) *JSONStdoutWriter {
	return &JSONStdoutWriter{out: out}
}

// Write outputs a frame row in JSON format.
func (w *JSONStdoutWriter) Write(row telemetry.FrameRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteBatch outputs multiple frame rows in JSON format.
func (w *JSONStdoutWriter) WriteBatch(rows []telemetry.FrameRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
