package assembly

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/linalg"
)

// grid builds an nx by ny grid of unit squares split into triangles.
func grid(t *testing.T, nx, ny int) *kernel.ModelPart {
	t.Helper()
	mp, err := kernel.NewModel().CreateModelPart("Grid", 1)
	require.NoError(t, err)
	id := func(i, j int) int { return j*(nx+1) + i + 1 }
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			_, err := mp.CreateNode(id(i, j), float64(i), float64(j), 0)
			require.NoError(t, err)
		}
	}
	e := 1
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			_, err := mp.CreateElement(e, "Element2D3N", 0, []int{id(i, j), id(i+1, j), id(i+1, j+1)})
			require.NoError(t, err)
			_, err = mp.CreateElement(e+1, "Element2D3N", 0, []int{id(i, j), id(i+1, j+1), id(i, j+1)})
			require.NoError(t, err)
			e += 2
		}
	}
	return mp
}

func TestGraphAreaSumsToDomain(t *testing.T) {
	g := NewGraph(grid(t, 3, 2), 2)
	var total float64
	for _, a := range g.Area {
		total += a
	}
	assert.InDelta(t, 6.0, total, 1e-12)
	assert.Equal(t, 12, g.Size())
}

func TestGradientOfLinearField(t *testing.T) {
	mp := grid(t, 3, 3)
	g := NewGraph(mp, 2)

	p := make([]float64, g.Size())
	u := make([][3]float64, g.Size())
	for i, id := range g.IDs {
		n, _ := mp.Node(id)
		p[i] = 2*n.X - 3*n.Y + 1
		u[i] = [3]float64{n.X, 4 * n.Y, 0}
	}

	for i, grad := range g.Gradient(p) {
		assert.InDelta(t, 2.0, grad[0], 1e-8, "node %d", g.IDs[i])
		assert.InDelta(t, -3.0, grad[1], 1e-8, "node %d", g.IDs[i])
	}
	for _, d := range g.Divergence(u) {
		assert.InDelta(t, 5.0, d, 1e-8)
	}
}

func TestConstrainedLaplaceMaximumPrinciple(t *testing.T) {
	mp := grid(t, 4, 1)
	g := NewGraph(mp, 2)

	// prescribe x on the left and right edges; free values obey the
	// discrete maximum principle
	fixed := make([]bool, g.Size())
	prescribed := make([]float64, g.Size())
	for i, id := range g.IDs {
		n, _ := mp.Node(id)
		if n.X == 0 || n.X == 4 {
			fixed[i] = true
			prescribed[i] = n.X
		}
	}

	sys, err := Constrain(g.Laplacian(1, nil), fixed)
	require.NoError(t, err)
	ls := linalg.NewLU()
	require.NoError(t, sys.Bind(ls))

	x, err := sys.Solve(ls, make([]float64, g.Size()), prescribed)
	require.NoError(t, err)
	for i, id := range g.IDs {
		n, _ := mp.Node(id)
		if fixed[i] {
			assert.InDelta(t, n.X, x[i], 1e-12)
			continue
		}
		assert.True(t, x[i] > 0 && x[i] < 4, "node %d value %v", id, x[i])
	}

	r := sys.Residual(x, make([]float64, g.Size()))
	var sum float64
	for i := range r {
		if !fixed[i] {
			assert.InDelta(t, 0, r[i], 1e-9)
		}
		sum += r[i]
	}
	// reactions balance for a pure Laplacian
	assert.InDelta(t, 0, sum, 1e-9)
}

func TestMeasure(t *testing.T) {
	mp, _ := kernel.NewModel().CreateModelPart("M", 1)
	a, _ := mp.CreateNode(1, 0, 0, 0)
	b, _ := mp.CreateNode(2, 1, 0, 0)
	c, _ := mp.CreateNode(3, 0, 1, 0)
	d, _ := mp.CreateNode(4, 0, 0, 1)

	assert.InDelta(t, 1, Measure([]*kernel.Node{a, b}, 3), 1e-15)
	assert.InDelta(t, 0.5, Measure([]*kernel.Node{a, b, c}, 2), 1e-15)
	assert.InDelta(t, 1.0/6.0, Measure([]*kernel.Node{a, b, c, d}, 3), 1e-15)
	assert.False(t, math.IsNaN(Measure(nil, 3)))
}
