package telemetry

import (
	"math"
	"slices"
	"sort"
)

// Noise labels a path that belongs to no cluster.
const Noise = -1

// RoomPath is the part of one run spent in a room.
type RoomPath struct {
	Run    int // index into the runs it was cut from
	Frames []FrameRow
	// Died is set when the run ended in this room by dying.
	Died bool
}

// PathsThrough cuts every run that visits room down to its frames in room.
func PathsThrough(runs []Run, room string) []RoomPath {
	var out []RoomPath
	for i, run := range runs {
		var frames []FrameRow
		for _, f := range run.Frames {
			if f.Room == room {
				frames = append(frames, f)
			}
		}
		if len(frames) == 0 {
			continue
		}
		out = append(out, RoomPath{
			Run:    i,
			Frames: frames,
			Died:   run.Died && run.Frames[len(run.Frames)-1].Room == room,
		})
	}
	return out
}

// Features places a path in the space clusters are formed in: its length
// in frames, where it left the room and where it entered.
func (p RoomPath) Features() [5]float64 {
	first, last := p.Frames[0], p.Frames[len(p.Frames)-1]
	return [5]float64{
		float64(len(p.Frames)),
		float64(last.PosX), float64(last.PosY),
		float64(first.PosX), float64(first.PosY),
	}
}

// Cluster is a group of paths that took the same line through a room.
type Cluster struct {
	Members  []int // indices into the clustered paths
	Centroid [5]float64
	// Best is the member closest to the centroid.
	Best int
}

// Clustering is the result of ClusterPaths. Clusters are ordered largest
// first and Labels[i] is the index of the cluster holding path i, or Noise.
type Clustering struct {
	Clusters []Cluster
	Labels   []int
	Eps      float64
}

// ClusterOptions tune ClusterPaths.
type ClusterOptions struct {
	// Eps is the largest feature distance between two neighbouring paths.
	// Zero derives it from the median nearest neighbour distance.
	Eps float64
}

// ClusterPaths groups paths by density: two paths within Eps of each other
// share a cluster, and so does everything reachable through such links. A
// cluster has at least two members; a path with no neighbour is Noise.
func ClusterPaths(paths []RoomPath, opts ClusterOptions) Clustering {
	pts := make([][5]float64, len(paths))
	for i, p := range paths {
		pts[i] = p.Features()
	}
	eps := opts.Eps
	if eps <= 0 {
		eps = autoEps(pts)
	}

	const unvisited = -2
	labels := make([]int, len(pts))
	for i := range labels {
		labels[i] = unvisited
	}
	var groups [][]int
	for i := range pts {
		if labels[i] != unvisited {
			continue
		}
		nb := neighbours(pts, i, eps)
		if len(nb) == 0 {
			labels[i] = Noise
			continue
		}
		id := len(groups)
		labels[i] = id
		members := []int{i}
		for len(nb) > 0 {
			j := nb[0]
			nb = nb[1:]
			if labels[j] != unvisited {
				continue
			}
			labels[j] = id
			members = append(members, j)
			nb = append(nb, neighbours(pts, j, eps)...)
		}
		slices.Sort(members)
		groups = append(groups, members)
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return len(groups[order[a]]) > len(groups[order[b]]) })
	rank := make([]int, len(groups))
	res := Clustering{Labels: labels, Eps: eps}
	for r, g := range order {
		rank[g] = r
		res.Clusters = append(res.Clusters, newCluster(groups[g], pts))
	}
	for i, l := range labels {
		if l != Noise {
			labels[i] = rank[l]
		}
	}
	return res
}

// BestPaths returns the representative path of each of the n largest
// clusters. n <= 0 returns one per cluster.
func (c Clustering) BestPaths(n int) []int {
	if n <= 0 || n > len(c.Clusters) {
		n = len(c.Clusters)
	}
	out := make([]int, n)
	for i := range out {
		out[i] = c.Clusters[i].Best
	}
	return out
}

func newCluster(members []int, pts [][5]float64) Cluster {
	c := Cluster{Members: members}
	for _, m := range members {
		for k, v := range pts[m] {
			c.Centroid[k] += v
		}
	}
	for k := range c.Centroid {
		c.Centroid[k] /= float64(len(members))
	}
	best := math.Inf(1)
	for _, m := range members {
		if d := sqDist(pts[m], c.Centroid); d < best {
			best, c.Best = d, m
		}
	}
	return c
}

func neighbours(pts [][5]float64, i int, eps float64) []int {
	var out []int
	for j := range pts {
		if j != i && sqDist(pts[i], pts[j]) <= eps*eps {
			out = append(out, j)
		}
	}
	return out
}

// autoEps is 1.5 times the median nearest neighbour distance, at least one
// pixel.
func autoEps(pts [][5]float64) float64 {
	if len(pts) < 2 {
		return 1
	}
	nn := make([]float64, len(pts))
	for i := range pts {
		nn[i] = math.Inf(1)
		for j := range pts {
			if j != i {
				nn[i] = math.Min(nn[i], sqDist(pts[i], pts[j]))
			}
		}
	}
	slices.Sort(nn)
	return math.Max(1.5*math.Sqrt(nn[len(nn)/2]), 1)
}

func sqDist(a, b [5]float64) float64 {
	var s float64
	for k := range a {
		d := a[k] - b[k]
		s += d * d
	}
	return s
}
