// Package assembly builds node-graph operators and lumped measures from the
// elements of a model part and solves them with Dirichlet constraints.
package assembly

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/linalg"
)

// Edge connects two equations. W is the edge weight and Dir the unit vector
// from the owner node to To.
type Edge struct {
	To  int
	W   float64
	Dir [3]float64
}

// Graph is the node adjacency induced by element connectivity.
type Graph struct {
	Dim   int
	IDs   []int
	Index map[int]int
	Edges [][]Edge
	Area  []float64
}

// NewGraph builds the graph of the elements of mp. Equations are numbered
// in ascending node id order. Edge weights are the inverse squared length.
func NewGraph(mp *kernel.ModelPart, dim int) *Graph {
	if dim < 1 || dim > 3 {
		dim = 3
	}
	g := &Graph{Dim: dim, Index: make(map[int]int)}
	for _, n := range mp.Nodes() {
		g.IDs = append(g.IDs, n.ID)
	}
	sort.Ints(g.IDs)
	for i, id := range g.IDs {
		g.Index[id] = i
	}
	g.Edges = make([][]Edge, len(g.IDs))
	g.Area = make([]float64, len(g.IDs))

	seen := make(map[[2]int]bool)
	for _, e := range mp.Elements() {
		nodes := make([]*kernel.Node, 0, len(e.NodeIDs))
		for _, id := range e.NodeIDs {
			if n, ok := mp.Node(id); ok {
				nodes = append(nodes, n)
			}
		}
		if len(nodes) != len(e.NodeIDs) {
			continue
		}

		share := Measure(nodes, dim) / float64(len(nodes))
		for _, n := range nodes {
			g.Area[g.Index[n.ID]] += share
		}

		for a := 0; a < len(nodes); a++ {
			for b := a + 1; b < len(nodes); b++ {
				i, j := g.Index[nodes[a].ID], g.Index[nodes[b].ID]
				key := [2]int{min(i, j), max(i, j)}
				if seen[key] {
					continue
				}
				seen[key] = true
				d, l := direction(nodes[a], nodes[b])
				if l == 0 {
					continue
				}
				w := 1 / (l * l)
				g.Edges[i] = append(g.Edges[i], Edge{To: j, W: w, Dir: d})
				g.Edges[j] = append(g.Edges[j], Edge{To: i, W: w, Dir: [3]float64{-d[0], -d[1], -d[2]}})
			}
		}
	}
	return g
}

func (g *Graph) Size() int { return len(g.IDs) }

func direction(a, b *kernel.Node) ([3]float64, float64) {
	d := [3]float64{b.X - a.X, b.Y - a.Y, b.Z - a.Z}
	l := math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
	if l == 0 {
		return d, 0
	}
	return [3]float64{d[0] / l, d[1] / l, d[2] / l}, l
}

// Measure is the length, area or volume of the simplex or quadrilateral
// spanned by nodes.
func Measure(nodes []*kernel.Node, dim int) float64 {
	switch len(nodes) {
	case 2:
		_, l := direction(nodes[0], nodes[1])
		return l
	case 3:
		return triangleArea(nodes[0], nodes[1], nodes[2])
	case 4:
		if dim == 3 {
			return tetVolume(nodes[0], nodes[1], nodes[2], nodes[3])
		}
		return triangleArea(nodes[0], nodes[1], nodes[2]) + triangleArea(nodes[0], nodes[2], nodes[3])
	}
	return 0
}

func sub(a, b *kernel.Node) [3]float64 {
	return [3]float64{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

func cross(u, v [3]float64) [3]float64 {
	return [3]float64{u[1]*v[2] - u[2]*v[1], u[2]*v[0] - u[0]*v[2], u[0]*v[1] - u[1]*v[0]}
}

func triangleArea(a, b, c *kernel.Node) float64 {
	n := cross(sub(b, a), sub(c, a))
	return 0.5 * math.Sqrt(n[0]*n[0]+n[1]*n[1]+n[2]*n[2])
}

func tetVolume(a, b, c, d *kernel.Node) float64 {
	n := cross(sub(b, a), sub(c, a))
	w := sub(d, a)
	return math.Abs(n[0]*w[0]+n[1]*w[1]+n[2]*w[2]) / 6
}

// Laplacian assembles shift_i*delta_ij + scale*L, where L is the weighted
// graph Laplacian.
func (g *Graph) Laplacian(scale float64, shift []float64) *linalg.Triplet {
	n := g.Size()
	nnz := n
	for _, edges := range g.Edges {
		nnz += 2 * len(edges)
	}
	t := linalg.NewTriplet(n, nnz)
	for i, edges := range g.Edges {
		if shift != nil {
			t.Put(i, i, shift[i])
		}
		for _, e := range edges {
			t.Put(i, i, scale*e.W)
			t.Put(i, e.To, -scale*e.W)
		}
	}
	return t
}

// Gradient reconstructs the gradient of a nodal scalar field by least
// squares over the edges of each equation. Linear fields are reproduced
// exactly wherever the neighbours span the space.
func (g *Graph) Gradient(p []float64) [][3]float64 {
	out := make([][3]float64, g.Size())
	dim := g.Dim
	m := mat.NewSymDense(dim, nil)
	rhs := mat.NewVecDense(dim, nil)
	x := mat.NewVecDense(dim, nil)

	for i, edges := range g.Edges {
		if len(edges) == 0 {
			continue
		}
		for a := 0; a < dim; a++ {
			rhs.SetVec(a, 0)
			for b := a; b < dim; b++ {
				reg := 0.0
				if a == b {
					reg = 1e-12
				}
				m.SetSym(a, b, reg)
			}
		}
		for _, e := range edges {
			l := 1 / math.Sqrt(e.W)
			slope := (p[e.To] - p[i]) / l
			for a := 0; a < dim; a++ {
				rhs.SetVec(a, rhs.AtVec(a)+slope*e.Dir[a])
				for b := a; b < dim; b++ {
					m.SetSym(a, b, m.At(a, b)+e.Dir[a]*e.Dir[b])
				}
			}
		}
		if err := x.SolveVec(m, rhs); err != nil {
			continue
		}
		for a := 0; a < dim; a++ {
			out[i][a] = x.AtVec(a)
		}
	}
	return out
}

// Divergence is the trace of the reconstructed gradient of u.
func (g *Graph) Divergence(u [][3]float64) []float64 {
	out := make([]float64, g.Size())
	comp := make([]float64, g.Size())
	for a := 0; a < g.Dim; a++ {
		for i := range comp {
			comp[i] = u[i][a]
		}
		grad := g.Gradient(comp)
		for i := range out {
			out[i] += grad[i][a]
		}
	}
	return out
}
