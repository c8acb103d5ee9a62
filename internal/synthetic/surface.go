// Package synthetic generates surfaces, sensor layouts and sensor data for
// demos and tests.
package synthetic

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/sensormap/internal/geometry"
)

// Icosphere returns a sphere of the given radius built by subdividing an
// icosahedron. Level 0 has 12 vertices; each level roughly quadruples the
// face count.
func Icosphere(radius float64, level int) *geometry.Surface {
	t := (1 + math.Sqrt(5)) / 2
	base := []r3.Vector{
		{X: -1, Y: t}, {X: 1, Y: t}, {X: -1, Y: -t}, {X: 1, Y: -t},
		{Y: -1, Z: t}, {Y: 1, Z: t}, {Y: -1, Z: -t}, {Y: 1, Z: -t},
		{X: t, Z: -1}, {X: t, Z: 1}, {X: -t, Z: -1}, {X: -t, Z: 1},
	}
	s := &geometry.Surface{}
	for _, v := range base {
		s.Vertices = append(s.Vertices, v.Normalize().Mul(radius))
	}
	s.Faces = []geometry.Face{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}

	for l := 0; l < level; l++ {
		mid := make(map[[2]int]int)
		midpoint := func(a, b int) int {
			key := [2]int{min(a, b), max(a, b)}
			if i, ok := mid[key]; ok {
				return i
			}
			v := s.Vertices[a].Add(s.Vertices[b]).Normalize().Mul(radius)
			s.Vertices = append(s.Vertices, v)
			i := len(s.Vertices) - 1
			mid[key] = i
			return i
		}
		faces := make([]geometry.Face, 0, 4*len(s.Faces))
		for _, f := range s.Faces {
			ab := midpoint(f[0], f[1])
			bc := midpoint(f[1], f[2])
			ca := midpoint(f[2], f[0])
			faces = append(faces,
				geometry.Face{f[0], ab, ca},
				geometry.Face{f[1], bc, ab},
				geometry.Face{f[2], ca, bc},
				geometry.Face{ab, bc, ca},
			)
		}
		s.Faces = faces
	}
	return s
}

// SensorCap places n sensors of kind on a spherical cap above the z = 0
// plane, spread with a Fibonacci spiral. offset is added to radius so the
// sensors sit just off a surface of that radius. Names are "<KIND> 001",
// "<KIND> 002" and so on.
func SensorCap(radius, offset float64, n int, kind geometry.ChannelKind) geometry.SensorSet {
	golden := math.Pi * (3 - math.Sqrt(5))
	r := radius + offset
	out := make(geometry.SensorSet, n)
	for i := range out {
		// z runs from near the pole down towards the equator.
		z := 1 - (float64(i)+0.5)/float64(n)
		ring := math.Sqrt(1 - z*z)
		theta := golden * float64(i)
		out[i] = geometry.Sensor{
			Name:     fmt.Sprintf("%s %03d", kind, i+1),
			Kind:     kind,
			Position: r3.Vector{X: ring * math.Cos(theta), Y: ring * math.Sin(theta), Z: z}.Mul(r),
		}
	}
	return out
}
