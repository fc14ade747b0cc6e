package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tuw-telemetry/internal/durable"
	"tuw-telemetry/internal/sim"
	"tuw-telemetry/internal/telemetry"
	"tuw-telemetry/internal/wire"
)

var (
	inspectRows bool
	inspectRuns bool
)

// logSummary aggregates one session log.
type logSummary struct {
	Metadata      wire.StreamMetadata
	Frames        int
	MetaFrames    int
	FirstSeq      uint32
	LastSeq       uint32
	Gaps          int
	First, Last   time.Time
	Deaths        int32
	Rooms         []string
	EventFrames   int
	FlagChanges   int
	DeadFrames    int
	TruncatedTail bool
}

func summarize(r io.Reader, onRow func(wire.Frame) error) (logSummary, error) {
	var sum logSummary
	lr := wire.NewLogReader(r)
	seen := map[string]bool{}
	for {
		f, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			sum.TruncatedTail = true
			break
		}
		if err != nil {
			return sum, err
		}
		h := f.Header
		ts := telemetry.FromFrame(f, "", "").Timestamp
		if sum.Frames == 0 {
			sum.FirstSeq, sum.First = h.Sequence, ts
		} else if h.Sequence != sum.LastSeq+1 {
			sum.Gaps++
		}
		sum.LastSeq, sum.Last = h.Sequence, ts
		sum.Frames++
		if f.Metadata != nil {
			sum.MetaFrames++
		}
		if h.Deaths > sum.Deaths {
			sum.Deaths = h.Deaths
		}
		if !seen[h.Room] {
			seen[h.Room] = true
			sum.Rooms = append(sum.Rooms, h.Room)
		}
		if (f.Transient != nil && f.Transient.Any()) || len(f.Flags) > 0 {
			sum.EventFrames++
		}
		sum.FlagChanges += len(f.Flags)
		if wire.UnpackControl(f.Actor.Control).Dead {
			sum.DeadFrames++
		}
		if onRow != nil {
			if err := onRow(f); err != nil {
				return sum, err
			}
		}
	}
	sum.Metadata, _ = lr.Metadata()
	return sum, nil
}

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE...",
	Short: "Summarize session log files",
	Long:  "inspect decodes session logs and prints their metadata, frame counts and events, or every frame as JSON.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			id := strings.TrimSuffix(filepath.Base(path), durable.SessionExt)
			var (
				onRow func(wire.Frame) error
				rows  []telemetry.FrameRow
			)
			switch {
			case inspectRows:
				w := sim.NewJSONWriter(out)
				var area string
				onRow = func(fr wire.Frame) error {
					if fr.Metadata != nil {
						area = fr.Metadata.AreaID
					}
					return w.Write(telemetry.FromFrame(fr, id, area))
				}
			case inspectRuns:
				onRow = func(fr wire.Frame) error {
					rows = append(rows, telemetry.FromFrame(fr, id, ""))
					return nil
				}
			}
			sum, err := summarize(f, onRow)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if !inspectRows {
				printSummary(out, path, sum)
			}
			if inspectRuns {
				printRuns(out, sum.Rooms, rows)
			}
		}
		return nil
	},
}

func printSummary(out io.Writer, path string, s logSummary) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", path)
	fmt.Fprintf(tw, "Area:\t%s\n", s.Metadata.AreaID)
	if s.Metadata.DisplayName != "" {
		fmt.Fprintf(tw, "Name:\t%s\n", s.Metadata.DisplayName)
	}
	fmt.Fprintf(tw, "Frames:\t%d (metadata in %d)\n", s.Frames, s.MetaFrames)
	if s.Frames > 0 {
		fmt.Fprintf(tw, "Sequence:\t%d..%d (%d gaps)\n", s.FirstSeq, s.LastSeq, s.Gaps)
		fmt.Fprintf(tw, "Span:\t%s\n", s.Last.Sub(s.First).Round(time.Millisecond))
	}
	fmt.Fprintf(tw, "Deaths:\t%d (%d dead frames)\n", s.Deaths, s.DeadFrames)
	fmt.Fprintf(tw, "Rooms:\t%s\n", strings.Join(s.Rooms, " → "))
	fmt.Fprintf(tw, "Events:\t%d frames, %d flag changes\n", s.EventFrames, s.FlagChanges)
	if s.TruncatedTail {
		fmt.Fprintf(tw, "Warning:\tlast frame truncated\n")
	}
	tw.Flush()
	fmt.Fprintln(out)
}

// printRuns lists, per room, how many runs passed through and how they
// cluster. Representatives are run numbers in log order.
func printRuns(out io.Writer, rooms []string, rows []telemetry.FrameRow) {
	runs := telemetry.ExtractRuns(rows)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ROOM\tRUNS\tDEATHS\tCLUSTERS\tBEST RUNS\n")
	for _, room := range rooms {
		paths := telemetry.PathsThrough(runs, room)
		if len(paths) == 0 {
			continue
		}
		deaths := 0
		for _, p := range paths {
			if p.Died {
				deaths++
			}
		}
		groups := telemetry.ClusterPaths(paths, telemetry.ClusterOptions{})
		var best []string
		for _, i := range groups.BestPaths(0) {
			best = append(best, fmt.Sprintf("#%d (%d)", paths[i].Run, len(groups.Clusters[groups.Labels[i]].Members)))
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", room, len(paths), deaths, len(groups.Clusters), strings.Join(best, " "))
	}
	tw.Flush()
	fmt.Fprintln(out)
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectRows, "rows", false, "Print every frame as a JSON line instead of a summary")
	inspectCmd.Flags().BoolVar(&inspectRuns, "runs", false, "Also list runs per room and how they cluster")
}
