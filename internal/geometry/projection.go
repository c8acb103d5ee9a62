package geometry

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/golang/geo/r3"
)

// vertexPoint is a surface vertex carrying its original index, since the
// kd-tree reorders its backing slice during construction.
type vertexPoint struct {
	r3.Vector
	index int
}

func (p vertexPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(vertexPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

func (p vertexPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance.
func (p vertexPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(vertexPoint)
	return p.Sub(q.Vector).Norm2()
}

type vertexPoints []vertexPoint

func (p vertexPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p vertexPoints) Len() int                              { return len(p) }
func (p vertexPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p vertexPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(vertexPlane{vertexPoints: p, Dim: d}, kdtree.MedianOfMedians(vertexPlane{vertexPoints: p, Dim: d}))
}

type vertexPlane struct {
	vertexPoints
	kdtree.Dim
}

func (p vertexPlane) Less(i, j int) bool {
	a, b := p.vertexPoints[i], p.vertexPoints[j]
	switch p.Dim {
	case 0:
		return a.X < b.X
	case 1:
		return a.Y < b.Y
	case 2:
		return a.Z < b.Z
	default:
		panic("illegal dimension")
	}
}

func (p vertexPlane) Slice(start, end int) kdtree.SortSlicer {
	p.vertexPoints = p.vertexPoints[start:end]
	return p
}

func (p vertexPlane) Swap(i, j int) {
	p.vertexPoints[i], p.vertexPoints[j] = p.vertexPoints[j], p.vertexPoints[i]
}

// ProjectSensors maps every sensor position to the index of its nearest
// surface vertex. When several vertices are equally close the lowest index wins.
func ProjectSensors(surface *Surface, sensors []r3.Vector) ([]int, error) {
	if err := surface.Validate(); err != nil {
		return nil, err
	}
	if len(sensors) == 0 {
		return []int{}, nil
	}

	pts := make(vertexPoints, len(surface.Vertices))
	for i, v := range surface.Vertices {
		pts[i] = vertexPoint{Vector: v, index: i}
	}
	tree := kdtree.New(pts, false)

	mapped := make([]int, len(sensors))
	for i, pos := range sensors {
		q := vertexPoint{Vector: pos, index: -1}
		nearest, dist := tree.Nearest(q)
		best := nearest.(vertexPoint).index
		// Collect every vertex at the nearest distance so ties resolve by index.
		keeper := kdtree.NewDistKeeper(dist)
		tree.NearestSet(keeper, q)
		for _, cd := range keeper.Heap {
			if cd.Comparable == nil || cd.Dist > dist {
				continue
			}
			if idx := cd.Comparable.(vertexPoint).index; idx < best {
				best = idx
			}
		}
		mapped[i] = best
	}
	return mapped, nil
}
