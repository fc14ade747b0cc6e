package durable

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SessionExt is the extension of session log files.
const SessionExt = ".dump"

const sessionTimeLayout = "2006-01-02_15-04-05"

// FileOpener opens path for appending, creating it and its directory.
func FileOpener(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// SessionFileName returns the log path for a session of area started at t.
// Separators and other characters unsafe in file names become '_'.
func SessionFileName(dir string, t time.Time, area string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, area)
	if clean == "" {
		clean = "unknown"
	}
	return filepath.Join(dir, t.Format(sessionTimeLayout)+"_"+clean+SessionExt)
}

// ParseSessionTime recovers the start time from a session file name.
func ParseSessionTime(path string) (time.Time, bool) {
	base := filepath.Base(path)
	if len(base) < len(sessionTimeLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(sessionTimeLayout, base[:len(sessionTimeLayout)], time.Local)
	return t, err == nil
}
