package live

import (
	"encoding/binary"
	"errors"
	"fmt"

	"tuw-telemetry/internal/wire"
)

// Reader is the consumer side of a region. Reads race the writer; a torn
// frame shows up as a decode error and the caller simply reads again.
type Reader struct {
	data    []byte
	closer  func() error
	lastSeq uint32
	seen    bool
}

// OpenReader maps an existing region read-only, preferring the native name.
func OpenReader(opts Options) (*Reader, error) {
	opts = opts.withDefaults()
	var errs []error
	if opts.Name != "" {
		data, closer, err := mapNative(opts.Name, opts.Size, false)
		if err == nil {
			return &Reader{data: data, closer: closer}, nil
		}
		errs = append(errs, err)
	}
	data, closer, err := mapFile(opts.FallbackPath, opts.Size, false)
	if err == nil {
		return &Reader{data: data, closer: closer}, nil
	}
	errs = append(errs, err)
	return nil, fmt.Errorf("open live region: %w", errors.Join(errs...))
}

// NewReader reads frames from an in-memory copy of a region.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Raw returns a copy of the current frame, prefix included, or false when
// the region holds no plausible frame.
func (r *Reader) Raw() ([]byte, bool) {
	if len(r.data) < wire.PrefixSize {
		return nil, false
	}
	n := int(binary.LittleEndian.Uint16(r.data))
	if n == 0 || wire.PrefixSize+n > len(r.data) {
		return nil, false
	}
	out := make([]byte, wire.PrefixSize+n)
	copy(out, r.data)
	return out, true
}

// Read decodes the current frame. ok is false when the region is empty or
// still holds the frame returned by the previous Read.
func (r *Reader) Read() (f wire.Frame, ok bool, err error) {
	raw, ok := r.Raw()
	if !ok {
		return f, false, nil
	}
	f, err = wire.DecodeFrame(raw[wire.PrefixSize:])
	if err != nil {
		return f, false, err
	}
	if r.seen && f.Header.Sequence == r.lastSeq {
		return f, false, nil
	}
	r.seen = true
	r.lastSeq = f.Header.Sequence
	return f, true, nil
}

// Close unmaps the region.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer()
	r.closer = nil
	r.data = nil
	return err
}
