// Package geometry holds the surface mesh and sensor layout types consumed by
// the interpolation builder. Loading from disk is the caller's job; this
// package only validates and derives topology.
package geometry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/golang/geo/r3"
)

var (
	// ErrEmptySurface is returned when a surface has no vertices.
	ErrEmptySurface = errors.New("surface has no vertices")
	// ErrFaceIndex is returned when a face references a vertex that does not exist
	// or repeats a vertex.
	ErrFaceIndex = errors.New("invalid face index")
)

// Face is a triangle given as three vertex indices.
type Face [3]int

// Surface is a triangulated mesh. It is treated as immutable once constructed.
type Surface struct {
	Vertices []r3.Vector
	Faces    []Face
}

// NewSurface builds and validates a surface.
func NewSurface(vertices []r3.Vector, faces []Face) (*Surface, error) {
	s := &Surface{Vertices: vertices, Faces: faces}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NumVertices returns the number of vertices, or 0 for a nil surface.
func (s *Surface) NumVertices() int {
	if s == nil {
		return 0
	}
	return len(s.Vertices)
}

// Validate checks that faces only reference existing vertices and that no face
// is degenerate.
func (s *Surface) Validate() error {
	if s == nil || len(s.Vertices) == 0 {
		return ErrEmptySurface
	}
	n := len(s.Vertices)
	for i, f := range s.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return fmt.Errorf("face %d references vertex %d of %d: %w", i, idx, n, ErrFaceIndex)
			}
		}
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			return fmt.Errorf("face %d is degenerate %v: %w", i, f, ErrFaceIndex)
		}
	}
	return nil
}

// Edge is one directed half of a mesh edge.
type Edge struct {
	To     int
	Length float64
}

// Adjacency returns, for each vertex, its neighbours along mesh edges with the
// Euclidean edge length. Shared edges are listed once per endpoint and
// neighbours are sorted by index so traversal order is reproducible.
func (s *Surface) Adjacency() [][]Edge {
	adj := make([][]Edge, len(s.Vertices))
	seen := make(map[[2]int]struct{}, len(s.Faces)*3)
	add := func(a, b int) {
		key := [2]int{a, b}
		if a > b {
			key = [2]int{b, a}
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		d := s.Vertices[a].Distance(s.Vertices[b])
		adj[a] = append(adj[a], Edge{To: b, Length: d})
		adj[b] = append(adj[b], Edge{To: a, Length: d})
	}
	for _, f := range s.Faces {
		add(f[0], f[1])
		add(f[1], f[2])
		add(f[2], f[0])
	}
	for _, edges := range adj {
		sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
	}
	return adj
}
