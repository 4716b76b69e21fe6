package structural

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/linalg"
)

// Material keys read from element properties.
const (
	YoungModulus = "YOUNG_MODULUS"
	CrossArea    = "CROSS_AREA"
	DensityKey   = "DENSITY"
)

// Numbering maps node ids to the first equation of each node.
type Numbering struct {
	Dim   int
	IDs   []int
	Index map[int]int
}

// Number assigns dim equations per node in ascending node id order.
func Number(mp *kernel.ModelPart, dim int) *Numbering {
	n := &Numbering{Dim: dim, Index: make(map[int]int)}
	for _, node := range mp.Nodes() {
		n.IDs = append(n.IDs, node.ID)
	}
	sort.Ints(n.IDs)
	for i, id := range n.IDs {
		n.Index[id] = i * dim
	}
	return n
}

func (n *Numbering) Size() int { return len(n.IDs) * n.Dim }

// Bar is the geometry and material of a two-node element.
type Bar struct {
	Element *kernel.Element
	A, B    *kernel.Node
	Dir     [3]float64
	Length  float64
	E, Area float64
	Rho     float64
}

// Bars returns the two-node elements of mp with their material.
func Bars(mp *kernel.ModelPart) ([]Bar, error) {
	var bars []Bar
	for _, e := range mp.Elements() {
		if len(e.NodeIDs) != 2 {
			return nil, kernel.Fail("Bars", fmt.Errorf("element %d has %d nodes, want 2", e.ID, len(e.NodeIDs)))
		}
		a, okA := mp.Node(e.NodeIDs[0])
		b, okB := mp.Node(e.NodeIDs[1])
		if !okA || !okB {
			return nil, kernel.Fail("Bars", fmt.Errorf("element %d references nodes outside %s", e.ID, mp.FullName()))
		}
		props := mp.Properties(e.PropertiesID)
		if !props.Has(YoungModulus) {
			return nil, kernel.Fail("Bars", fmt.Errorf("properties %d have no %s", e.PropertiesID, YoungModulus))
		}
		area := 1.0
		if props.Has(CrossArea) {
			area = props.Value(CrossArea)
		}

		d := [3]float64{b.X - a.X, b.Y - a.Y, b.Z - a.Z}
		l := norm(d)
		if l == 0 {
			return nil, kernel.Fail("Bars", fmt.Errorf("element %d has zero length", e.ID))
		}
		bars = append(bars, Bar{
			Element: e,
			A:       a,
			B:       b,
			Dir:     [3]float64{d[0] / l, d[1] / l, d[2] / l},
			Length:  l,
			E:       props.Value(YoungModulus),
			Area:    area,
			Rho:     props.Value(DensityKey),
		})
	}
	return bars, nil
}

// Stiffness assembles the global stiffness of bars.
func Stiffness(bars []Bar, num *Numbering) *linalg.Triplet {
	t := linalg.NewTriplet(num.Size(), len(bars)*4*num.Dim*num.Dim)
	for _, b := range bars {
		k := b.E * b.Area / b.Length
		ia, ib := num.Index[b.A.ID], num.Index[b.B.ID]
		for p := 0; p < num.Dim; p++ {
			for q := 0; q < num.Dim; q++ {
				v := k * b.Dir[p] * b.Dir[q]
				t.Put(ia+p, ia+q, v)
				t.Put(ib+p, ib+q, v)
				t.Put(ia+p, ib+q, -v)
				t.Put(ib+p, ia+q, -v)
			}
		}
	}
	return t
}

// LumpedMass returns the diagonal mass of bars per equation.
func LumpedMass(bars []Bar, num *Numbering) []float64 {
	m := make([]float64, num.Size())
	for _, b := range bars {
		half := 0.5 * b.Rho * b.Area * b.Length
		for p := 0; p < num.Dim; p++ {
			m[num.Index[b.A.ID]+p] += half
			m[num.Index[b.B.ID]+p] += half
		}
	}
	return m
}

// Mass is the total mass of the two-node elements of mp.
func Mass(mp *kernel.ModelPart) (float64, error) {
	bars, err := Bars(mp)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, b := range bars {
		total += b.Rho * b.Area * b.Length
	}
	return total, nil
}

// AxialStress is the stress of b from the current nodal displacements.
func AxialStress(b Bar) float64 {
	var elong float64
	for p, v := range kernel.Displacement {
		elong += (b.B.Value(v) - b.A.Value(v)) * b.Dir[p]
	}
	return b.E * elong / b.Length
}

// StrainEnergy is ½ uᵀKu of bars from the current nodal displacements.
func StrainEnergy(bars []Bar) float64 {
	var w float64
	for _, b := range bars {
		elong := AxialStress(b) * b.Length / b.E
		w += 0.5 * b.E * b.Area / b.Length * elong * elong
	}
	return w
}

func norm(d [3]float64) float64 {
	return math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
}
