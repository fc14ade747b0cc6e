package sim

import (
	"encoding/json"
	"os"
	"path/filepath"

	"tuw-telemetry/internal/telemetry"
)

// FileWriter writes frame rows to a JSONL file.
type FileWriter struct {
	file *os.File
	enc  *json.Encoder
}

// NewFileWriter creates a FileWriter, creating parent directories as needed.
func NewFileWriter(path string) (*FileWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// Write logs a single frame row.
func (f *FileWriter) Write(row telemetry.FrameRow) error {
	return f.enc.Encode(row)
}

// WriteBatch logs multiple frame rows.
func (f *FileWriter) WriteBatch(rows []telemetry.FrameRow) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying file.
func (f *FileWriter) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}
