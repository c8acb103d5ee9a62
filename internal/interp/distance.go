package interp

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/sensormap/internal/geometry"
)

// ErrInvalidCancelDistance is returned for negative, NaN or infinite cutoffs.
var ErrInvalidCancelDistance = errors.New("invalid cancel distance")

// Contribution is one sensor reaching a vertex within the cancel distance.
type Contribution struct {
	Sensor   int
	Distance float64
}

// DistanceField records, per vertex, every sensor whose surface-constrained
// distance is within the cancel distance. Entries are ordered by distance and
// then by sensor index. A vertex with no entries is out of reach of every
// sensor, which is different from a vertex at distance zero.
type DistanceField struct {
	CancelDistance float64
	numSensors     int
	entries        [][]Contribution
}

// NumVertices returns the number of surface vertices covered by the field.
func (f *DistanceField) NumVertices() int { return len(f.entries) }

// NumSensors returns the number of projected sensors used as sources.
func (f *DistanceField) NumSensors() int { return f.numSensors }

// At returns the contributions for vertex v. The slice must not be modified.
func (f *DistanceField) At(v int) []Contribution {
	if v < 0 || v >= len(f.entries) {
		return nil
	}
	return f.entries[v]
}

// Nearest returns the closest sensor to v. Ties go to the lower sensor index.
func (f *DistanceField) Nearest(v int) (Contribution, bool) {
	c := f.At(v)
	if len(c) == 0 {
		return Contribution{}, false
	}
	return c[0], true
}

// Assigned returns the number of vertices reached by at least one sensor.
func (f *DistanceField) Assigned() int {
	n := 0
	for _, e := range f.entries {
		if len(e) > 0 {
			n++
		}
	}
	return n
}

type label struct {
	dist   float64
	sensor int
	vertex int
}

// labelQueue is a min-heap over (dist, sensor, vertex).
type labelQueue []label

func (q labelQueue) Len() int { return len(q) }
func (q labelQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	if q[i].sensor != q[j].sensor {
		return q[i].sensor < q[j].sensor
	}
	return q[i].vertex < q[j].vertex
}
func (q labelQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *labelQueue) Push(x any)   { *q = append(*q, x.(label)) }
func (q *labelQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// BuildDistanceField runs a multi-source shortest-path expansion along the
// mesh edges, seeded at every projected sensor vertex. projection[s] is the
// vertex index of sensor s. Paths are pruned as soon as they exceed cancel.
// The expansion polls ctx and gives up with ctx.Err() once it is cancelled.
func BuildDistanceField(ctx context.Context, surface *geometry.Surface, projection []int, cancel float64) (*DistanceField, error) {
	if err := surface.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(cancel) || math.IsInf(cancel, 0) || cancel < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCancelDistance, cancel)
	}
	n := surface.NumVertices()
	field := &DistanceField{
		CancelDistance: cancel,
		numSensors:     len(projection),
		entries:        make([][]Contribution, n),
	}
	if len(projection) == 0 {
		return field, nil
	}
	for s, v := range projection {
		if v < 0 || v >= n {
			return nil, fmt.Errorf("sensor %d projected to vertex %d of %d", s, v, n)
		}
	}

	adj := surface.Adjacency()
	type key struct{ vertex, sensor int }
	best := make(map[key]float64, len(projection)*8)
	settled := make(map[key]struct{}, len(projection)*8)

	q := make(labelQueue, 0, len(projection))
	for s, v := range projection {
		best[key{v, s}] = 0
		q = append(q, label{dist: 0, sensor: s, vertex: v})
	}
	heap.Init(&q)

	for pops := 0; q.Len() > 0; pops++ {
		if pops&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cur := heap.Pop(&q).(label)
		k := key{cur.vertex, cur.sensor}
		if _, done := settled[k]; done {
			continue
		}
		settled[k] = struct{}{}
		field.entries[cur.vertex] = append(field.entries[cur.vertex], Contribution{Sensor: cur.sensor, Distance: cur.dist})

		for _, e := range adj[cur.vertex] {
			nd := cur.dist + e.Length
			if nd > cancel {
				continue
			}
			nk := key{e.To, cur.sensor}
			if _, done := settled[nk]; done {
				continue
			}
			if d, ok := best[nk]; ok && d <= nd {
				continue
			}
			best[nk] = nd
			heap.Push(&q, label{dist: nd, sensor: cur.sensor, vertex: e.To})
		}
	}
	return field, nil
}
