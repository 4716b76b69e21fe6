package comm

import "sort"

// Point is a node position used for partitioning.
type Point struct {
	ID      int
	X, Y, Z float64
}

// Partition assigns each point to one of parts by recursive coordinate
// bisection. The result maps point id to partition index.
func Partition(points []Point, parts int) map[int]int {
	out := make(map[int]int, len(points))
	if parts < 1 {
		parts = 1
	}
	pts := append([]Point(nil), points...)
	bisect(pts, 0, parts, out)
	return out
}

func bisect(pts []Point, first, parts int, out map[int]int) {
	if parts == 1 || len(pts) == 0 {
		for _, p := range pts {
			out[p.ID] = first
		}
		return
	}

	axis := widestAxis(pts)
	sort.SliceStable(pts, func(i, j int) bool {
		a, b := coord(pts[i], axis), coord(pts[j], axis)
		if a != b {
			return a < b
		}
		return pts[i].ID < pts[j].ID
	})

	left := parts / 2
	cut := len(pts) * left / parts
	bisect(pts[:cut], first, left, out)
	bisect(pts[cut:], first+left, parts-left, out)
}

func widestAxis(pts []Point) int {
	lo := [3]float64{pts[0].X, pts[0].Y, pts[0].Z}
	hi := lo
	for _, p := range pts[1:] {
		for a := 0; a < 3; a++ {
			c := coord(p, a)
			if c < lo[a] {
				lo[a] = c
			}
			if c > hi[a] {
				hi[a] = c
			}
		}
	}
	axis := 0
	for a := 1; a < 3; a++ {
		if hi[a]-lo[a] > hi[axis]-lo[axis] {
			axis = a
		}
	}
	return axis
}

func coord(p Point, axis int) float64 {
	switch axis {
	case 1:
		return p.Y
	case 2:
		return p.Z
	}
	return p.X
}
