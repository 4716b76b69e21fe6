package tui

import (
	"math"

	"github.com/san-kum/femstage/internal/kernel"
)

// Segment is an element edge in the xy plane with the nodal values of the
// drawn vector variable at both ends.
type Segment struct {
	A, B   [2]float64
	UA, UB [2]float64
}

// Snapshot is the state of a model part after one step.
type Snapshot struct {
	Step     int
	Time     float64
	Peak     float64
	Segments []Segment
}

// Capture reads the element edges of mp and the largest nodal norm of v.
// Two node elements give one segment, larger ones their closed outline.
func Capture(mp *kernel.ModelPart, v kernel.Vector, step int, time float64) Snapshot {
	s := Snapshot{Step: step, Time: time}
	for _, n := range mp.Nodes() {
		s.Peak = math.Max(s.Peak, math.Hypot(n.Value(v[0]), n.Value(v[1])))
	}
	for _, e := range mp.Elements() {
		ids := e.NodeIDs
		edges := len(ids)
		if edges == 2 {
			edges = 1
		}
		for i := 0; i < edges; i++ {
			a, okA := mp.Node(ids[i])
			b, okB := mp.Node(ids[(i+1)%len(ids)])
			if !okA || !okB {
				continue
			}
			s.Segments = append(s.Segments, segment(a, b, v))
		}
	}
	return s
}

func segment(a, b *kernel.Node, v kernel.Vector) Segment {
	ca, cb := a.Coordinates(), b.Coordinates()
	return Segment{
		A:  [2]float64{ca[0], ca[1]},
		B:  [2]float64{cb[0], cb[1]},
		UA: [2]float64{a.Value(v[0]), a.Value(v[1])},
		UB: [2]float64{b.Value(v[0]), b.Value(v[1])},
	}
}

// DrawnVector is the first of displacement, mesh displacement and velocity
// that mp stores.
func DrawnVector(mp *kernel.ModelPart) kernel.Vector {
	for _, v := range []kernel.Vector{kernel.Displacement, kernel.MeshDisp, kernel.Velocity} {
		if mp.HasNodalSolutionStepVariable(v[0]) {
			return v
		}
	}
	return kernel.Displacement
}

// canvas is a character grid with y growing downwards.
type canvas struct {
	w, h  int
	cells [][]rune
}

func newCanvas(w, h int) *canvas {
	c := &canvas{w: w, h: h, cells: make([][]rune, h)}
	for y := range c.cells {
		c.cells[y] = make([]rune, w)
		for x := range c.cells[y] {
			c.cells[y][x] = ' '
		}
	}
	return c
}

func (c *canvas) set(x, y int, r rune) {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		c.cells[y][x] = r
	}
}

func (c *canvas) line(x1, y1, x2, y2 int, r rune) {
	dx := intAbs(x2 - x1)
	dy := intAbs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		c.set(x1, y1, r)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (c *canvas) rows() []string {
	out := make([]string, c.h)
	for y, row := range c.cells {
		out[y] = string(row)
	}
	return out
}

// drawMesh draws the undeformed segments dotted and the deformed ones
// solid. Displacements are scaled so the peak is a tenth of the extent.
func drawMesh(c *canvas, segs []Segment, peak float64) {
	if len(segs) == 0 {
		return
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range segs {
		for _, p := range [][2]float64{s.A, s.B} {
			minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
			minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
		}
	}
	extent := math.Max(maxX-minX, maxY-minY)
	if extent == 0 {
		extent = 1
	}
	scale := 0.0
	if peak > 0 {
		scale = 0.1 * extent / peak
	}
	pad := 0.15 * extent
	minX, maxX = minX-pad, maxX+pad
	minY, maxY = minY-pad, maxY+pad

	sx := float64(c.w-1) / math.Max(maxX-minX, 1e-12)
	sy := float64(c.h-1) / math.Max(maxY-minY, 1e-12)
	project := func(p, u [2]float64) (int, int) {
		x := p[0] + scale*u[0]
		y := p[1] + scale*u[1]
		return int(math.Round((x - minX) * sx)), c.h - 1 - int(math.Round((y-minY)*sy))
	}

	var zero [2]float64
	for _, s := range segs {
		x1, y1 := project(s.A, zero)
		x2, y2 := project(s.B, zero)
		c.line(x1, y1, x2, y2, '·')
	}
	for _, s := range segs {
		x1, y1 := project(s.A, s.UA)
		x2, y2 := project(s.B, s.UB)
		c.line(x1, y1, x2, y2, '█')
		c.set(x1, y1, 'o')
		c.set(x2, y2, 'o')
	}
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
