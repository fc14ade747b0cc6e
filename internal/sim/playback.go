package sim

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tuw-telemetry/internal/durable"
	"tuw-telemetry/internal/telemetry"
	"tuw-telemetry/internal/wire"
)

const replayBatch = 512

var sleep = time.Sleep

// ReplayLog replays the frames of a session log from r to writer. A speed >0
// scales the recorded frame spacing; if speed <= 0, no artificial delay is
// inserted and batch-capable writers receive rows in batches.
func ReplayLog(r io.Reader, sessionID string, writer TelemetryWriter, speed float64) (int, error) {
	lr := wire.NewLogReader(r)
	bw, batching := writer.(batchWriter)
	batching = batching && speed <= 0
	var (
		prev    time.Time
		pending []telemetry.FrameRow
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := bw.WriteBatch(pending)
		pending = nil
		return err
	}
	for {
		f, err := lr.Next()
		if errors.Is(err, io.EOF) {
			if batching {
				return lr.Count(), flush()
			}
			return lr.Count(), nil
		}
		if err != nil {
			return lr.Count(), err
		}
		meta, _ := lr.Metadata()
		row := telemetry.FromFrame(f, sessionID, meta.AreaID)
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				sleep(diff)
			}
		}
		prev = row.Timestamp
		if batching {
			pending = append(pending, row)
			if len(pending) >= replayBatch {
				if err := flush(); err != nil {
					return lr.Count(), err
				}
			}
			continue
		}
		if err := writer.Write(row); err != nil {
			return lr.Count(), err
		}
	}
}

// ReplayLogFile opens a session log and replays it. The session id of the
// rows is the file name without its extension.
func ReplayLogFile(path string, writer TelemetryWriter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	id := strings.TrimSuffix(filepath.Base(path), durable.SessionExt)
	return ReplayLog(f, id, writer, speed)
}

// ReadRows decodes a whole session log into rows.
func ReadRows(path string) ([]telemetry.FrameRow, error) {
	c := &collector{}
	if _, err := ReplayLogFile(path, c, 0); err != nil {
		return nil, err
	}
	return c.rows, nil
}

type collector struct{ rows []telemetry.FrameRow }

func (c *collector) Write(r telemetry.FrameRow) error {
	c.rows = append(c.rows, r)
	return nil
}
