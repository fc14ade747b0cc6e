package sim

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"tuw-telemetry/internal/telemetry"
	"tuw-telemetry/internal/wire"
)

const defaultGreptimePort = 4001

// greptimeClient is the part of the ingester client the writer uses.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes frame rows to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client greptimeClient
	table  string
	log    *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port"). The
// table is created by GreptimeDB on first write.
func NewGreptimeDBWriter(endpoint, database, tableName string, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port := endpoint, defaultGreptimePort
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptime endpoint %q: %w", endpoint, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	if tableName == "" {
		tableName = telemetry.FrameTableName
	}
	if log == nil {
		log = slog.Default()
	}
	return &GreptimeDBWriter{client: client, table: tableName, log: log}, nil
}

// Write inserts a single frame row.
func (w *GreptimeDBWriter) Write(row telemetry.FrameRow) error {
	return w.WriteBatch([]telemetry.FrameRow{row})
}

// WriteBatch inserts multiple frame rows in one request.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.FrameRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := w.frameTable(rows)
	if err != nil {
		return err
	}
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		w.log.Error("greptime write failed", "table", w.table, "rows", len(rows), "err", err)
		return err
	}
	w.log.Debug("greptime rows written", "table", w.table, "rows", len(rows))
	return nil
}

func (w *GreptimeDBWriter) frameTable(rows []telemetry.FrameRow) (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"session_id", "area_id", "room"} {
		if err := tbl.AddTagColumn(name, types.STRING); err != nil {
			return nil, err
		}
	}
	fields := []struct {
		name string
		typ  types.ColumnType
	}{
		{"seq", types.INT64},
		{"elapsed", types.INT64},
		{"deaths", types.INT64},
		{"pos_x", types.FLOAT64},
		{"pos_y", types.FLOAT64},
		{"vel_x", types.FLOAT64},
		{"vel_y", types.FLOAT64},
		{"stamina", types.FLOAT64},
		{"state", types.INT64},
		{"dashes", types.INT64},
		{"control", types.INT64},
		{"status", types.INT64},
		{"buttons", types.INT64},
		{"directions", types.INT64},
		{"dead", types.BOOLEAN},
		{"events", types.STRING},
	}
	for _, f := range fields {
		if err := tbl.AddFieldColumn(f.name, f.typ); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}

	for _, r := range rows {
		err := tbl.AddRow(
			r.SessionID, r.AreaID, r.Room,
			int64(r.Sequence), r.Elapsed, int64(r.Deaths),
			float64(r.PosX), float64(r.PosY), float64(r.VelX), float64(r.VelY), float64(r.Stamina),
			int64(r.State), int64(r.Dashes),
			int64(wire.PackControl(r.Control)), int64(wire.PackStatus(r.Status)),
			int64(wire.PackButtons(r.Buttons)), int64(wire.PackDirections(r.Directions)),
			r.Control.Dead,
			strings.Join(eventNames(r), ","),
			r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r.Sequence, err)
		}
	}
	return tbl, nil
}

func eventNames(r telemetry.FrameRow) []string {
	names := append([]string{}, r.Collection...)
	names = append(names, r.StateEvents...)
	for _, f := range r.Flags {
		names = append(names, fmt.Sprintf("%s=%t", f.Name, f.Value))
	}
	return names
}
