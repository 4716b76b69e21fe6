// Package timedisc computes backward differentiation coefficients for
// variable time steps.
package timedisc

import (
	"fmt"

	"github.com/san-kum/femstage/internal/kernel"
)

// BDF holds the coefficients of a backward differentiation formula:
//
//	du/dt ~ c0*u(n) + c1*u(n-1) + c2*u(n-2)
type BDF struct {
	order int
	c     [3]float64
}

func NewBDF1() *BDF { return &BDF{order: 1} }
func NewBDF2() *BDF { return &BDF{order: 2} }

// New returns a BDF of order 1 or 2.
func New(order int) (*BDF, error) {
	switch order {
	case 1:
		return NewBDF1(), nil
	case 2:
		return NewBDF2(), nil
	}
	return nil, fmt.Errorf("timedisc: unsupported time order %d", order)
}

func (b *BDF) Order() int { return b.order }

// MinBufferSize is the number of solution steps the formula reads.
func (b *BDF) MinBufferSize() int { return b.order + 1 }

// Compute sets the coefficients for step dt after a previous step dtOld.
// dtOld is ignored by the first order formula.
func (b *BDF) Compute(dt, dtOld float64) ([3]float64, error) {
	if dt <= 0 {
		return b.c, fmt.Errorf("timedisc: non-positive time step %g", dt)
	}
	switch b.order {
	case 1:
		b.c = [3]float64{1 / dt, -1 / dt, 0}
	case 2:
		if dtOld <= 0 {
			dtOld = dt
		}
		rho := dtOld / dt
		c := 1 / (dt*rho*rho + dt*rho)
		b.c = [3]float64{
			c * (rho*rho + 2*rho),
			-c * (rho*rho + 2*rho + 1),
			c,
		}
	}
	return b.c, nil
}

func (b *BDF) Coefficients() [3]float64 { return b.c }

// Apply computes the coefficients from the clock of info and stores them
// under the BDF coefficient keys.
func (b *BDF) Apply(info *kernel.ProcessInfo, dtOld float64) error {
	c, err := b.Compute(info.DeltaTime(), dtOld)
	if err != nil {
		return err
	}
	info.SetValue(kernel.BDFCoeff0, c[0])
	info.SetValue(kernel.BDFCoeff1, c[1])
	info.SetValue(kernel.BDFCoeff2, c[2])
	info.SetValue(kernel.TimeOrderKey, float64(b.order))
	return nil
}

// Derivative evaluates the formula from a node's buffer.
func (b *BDF) Derivative(n *kernel.Node, v kernel.Variable) float64 {
	d := b.c[0]*n.Value(v) + b.c[1]*n.PreviousValue(v, 1)
	if b.order == 2 {
		d += b.c[2] * n.PreviousValue(v, 2)
	}
	return d
}
