// Package live publishes the latest frame through a shared memory region.
package live

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Defaults for the shared region identity.
const (
	DefaultName = "celeste_tuw"
	DefaultSize = 4096
)

// Mode describes which backing a channel ended up with.
type Mode string

const (
	ModeNative   Mode = "native"
	ModeFile     Mode = "file"
	ModeDisabled Mode = "disabled"
)

// Channel receives one live frame per tick.
type Channel interface {
	// Write replaces the region contents with frame. It reports false when
	// the frame was not published.
	Write(frame []byte) bool
	Mode() Mode
	Close() error
}

// Options select the region identity.
type Options struct {
	// Name of the native region. Empty skips the native attempt.
	Name string
	// FallbackPath is the file backing used when the native region cannot
	// be created. Empty selects DefaultFallbackPath(Name).
	FallbackPath string
	Size         int
}

func (o Options) withDefaults() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.FallbackPath == "" {
		name := o.Name
		if name == "" {
			name = DefaultName
		}
		o.FallbackPath = DefaultFallbackPath(name)
	}
	return o
}

// DefaultFallbackPath returns <tmp>/<name>.share.
func DefaultFallbackPath(name string) string {
	return filepath.Join(os.TempDir(), name+".share")
}

// Region is a writable mapping of the shared region.
type Region struct {
	data   []byte
	mode   Mode
	closer func() error
}

// Open maps the region, trying the native name first and the fallback
// file second. When both fail it returns Discard; it never retries.
func Open(opts Options, log *slog.Logger) Channel {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	if opts.Name != "" {
		r, err := openNative(opts.Name, opts.Size)
		if err == nil {
			log.Info("live region opened", "mode", r.mode, "name", opts.Name, "size", opts.Size)
			return r
		}
		log.Debug("native live region unavailable", "name", opts.Name, "err", err)
	}
	r, err := openFile(opts.FallbackPath, opts.Size)
	if err == nil {
		log.Info("live region opened", "mode", r.mode, "path", opts.FallbackPath, "size", opts.Size)
		return r
	}
	log.Warn("live region disabled", "path", opts.FallbackPath, "err", err)
	return Discard{}
}

func openNative(name string, size int) (*Region, error) {
	data, closer, err := mapNative(name, size, true)
	if err != nil {
		return nil, err
	}
	return &Region{data: data, mode: ModeNative, closer: closer}, nil
}

func openFile(path string, size int) (*Region, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	data, closer, err := mapFile(path, size, true)
	if err != nil {
		return nil, err
	}
	return &Region{data: data, mode: ModeFile, closer: closer}, nil
}

// Write copies frame to offset zero. Frames larger than the region are
// refused and the previous contents stay in place.
func (r *Region) Write(frame []byte) bool {
	if r.data == nil || len(frame) > len(r.data) {
		return false
	}
	copy(r.data, frame)
	return true
}

// Mode reports the backing in use.
func (r *Region) Mode() Mode { return r.mode }

// Size returns the mapped length.
func (r *Region) Size() int { return len(r.data) }

// Close unmaps the region.
func (r *Region) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer()
	r.closer = nil
	r.data = nil
	if err != nil {
		return fmt.Errorf("unmap live region: %w", err)
	}
	return nil
}

// Discard is the channel used when no region could be opened.
type Discard struct{}

func (Discard) Write([]byte) bool { return false }
func (Discard) Mode() Mode        { return ModeDisabled }
func (Discard) Close() error      { return nil }
