// Package plot draws recorded runs of a room onto a PNG.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"

	"tuw-telemetry/internal/telemetry"
)

const (
	hitboxW = 8
	hitboxH = 11
	margin  = 16
)

// ErrNoFrames is returned when no frame matches the requested room.
var ErrNoFrames = errors.New("plot: no frames in room")

// ErrNoCluster is returned when only cluster representatives were asked for
// and no two runs took the same line.
var ErrNoCluster = errors.New("plot: no cluster of two or more runs")

var (
	background = color.RGBA{18, 18, 30, 255}
	deathColor = color.RGBA{220, 50, 60, 255}
	spawnColor = color.RGBA{250, 250, 255, 255}
	noiseColor = color.RGBA{130, 130, 150, 160}
	runPalette = []color.RGBA{
		{80, 170, 250, 200},
		{120, 220, 120, 200},
		{240, 200, 80, 200},
		{200, 120, 240, 200},
		{80, 220, 220, 200},
	}
)

// Options select what gets drawn.
type Options struct {
	// Room limits the plot to one room. Empty plots the first room seen.
	Room string
	// Scale multiplies world units into pixels. Zero means 2.
	Scale float64
	// HitboxEvery draws the actor's hitbox on every n-th frame. Zero disables.
	HitboxEvery int
	// Best draws only the representative run of the n largest clusters.
	// Zero draws every run, coloured by cluster.
	Best int
	// ClusterEps overrides the clustering distance.
	ClusterEps float64
}

// Summary describes what Render drew.
type Summary struct {
	Room     string
	Runs     int
	Clusters int
	Drawn    int
	Deaths   int
	Frames   int
	Width    int
	Height   int
}

type extent struct{ minX, minY, maxX, maxY float64 }

func (e *extent) add(x, y float64) {
	e.minX, e.maxX = math.Min(e.minX, x), math.Max(e.maxX, x)
	e.minY, e.maxY = math.Min(e.minY, y), math.Max(e.maxY, y)
}

// Render draws the runs passing through the room and writes a PNG to out.
// Runs are clustered by the line they took; each cluster gets its own
// colour and runs that fit no cluster are drawn grey.
func Render(rows []telemetry.FrameRow, out io.Writer, opts Options) (Summary, error) {
	if opts.Scale <= 0 {
		opts.Scale = 2
	}
	room := opts.Room
	if room == "" && len(rows) > 0 {
		room = rows[0].Room
	}

	sum := Summary{Room: room}
	paths := telemetry.PathsThrough(telemetry.ExtractRuns(rows), room)
	if len(paths) == 0 {
		return sum, fmt.Errorf("%w %q", ErrNoFrames, room)
	}
	groups := telemetry.ClusterPaths(paths, telemetry.ClusterOptions{Eps: opts.ClusterEps})
	sum.Runs = len(paths)
	sum.Clusters = len(groups.Clusters)

	drawn := make([]int, len(paths))
	for i := range drawn {
		drawn[i] = i
	}
	if opts.Best > 0 {
		drawn = groups.BestPaths(opts.Best)
	}
	ext := extent{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, i := range drawn {
		for _, f := range paths[i].Frames {
			ext.add(float64(f.PosX), float64(f.PosY))
		}
		sum.Frames += len(paths[i].Frames)
		if paths[i].Died {
			sum.Deaths++
		}
	}
	sum.Drawn = len(drawn)
	if sum.Drawn == 0 {
		return sum, fmt.Errorf("%w in %q", ErrNoCluster, room)
	}

	sum.Width = int(math.Ceil((ext.maxX-ext.minX+hitboxW)*opts.Scale)) + 2*margin
	sum.Height = int(math.Ceil((ext.maxY-ext.minY+hitboxH)*opts.Scale)) + 2*margin
	dc := gg.NewContext(sum.Width, sum.Height)
	dc.SetColor(background)
	dc.Clear()

	project := func(f telemetry.FrameRow) (float64, float64) {
		return margin + (float64(f.PosX)-ext.minX)*opts.Scale,
			margin + (float64(f.PosY)-ext.minY)*opts.Scale
	}

	dc.SetLineWidth(1.5)
	for _, i := range drawn {
		path, died := paths[i].Frames, paths[i].Died
		var c color.RGBA
		switch l := groups.Labels[i]; {
		case died:
			c = deathColor
		case l == telemetry.Noise:
			c = noiseColor
		default:
			c = runPalette[l%len(runPalette)]
		}
		dc.SetColor(c)
		for j, f := range path {
			x, y := project(f)
			if j == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.Stroke()

		if opts.HitboxEvery > 0 {
			for j := 0; j < len(path); j += opts.HitboxEvery {
				x, y := project(path[j])
				dc.DrawRectangle(x-hitboxW*opts.Scale/2, y-hitboxH*opts.Scale, hitboxW*opts.Scale, hitboxH*opts.Scale)
				dc.Stroke()
			}
		}

		x, y := project(path[0])
		dc.SetColor(spawnColor)
		dc.DrawCircle(x, y, 3)
		dc.Fill()
		if died {
			x, y = project(path[len(path)-1])
			dc.SetColor(deathColor)
			dc.DrawLine(x-4, y-4, x+4, y+4)
			dc.DrawLine(x-4, y+4, x+4, y-4)
			dc.Stroke()
		}
	}
	if err := dc.EncodePNG(out); err != nil {
		return sum, fmt.Errorf("encode png: %w", err)
	}
	return sum, nil
}
