package timedisc

import (
	"math"
	"testing"

	"github.com/san-kum/femstage/internal/kernel"
)

func TestBDFExactOnPolynomials(t *testing.T) {
	tests := []struct {
		name      string
		order     int
		dt, dtOld float64
		u         func(t float64) float64
		du        func(t float64) float64
	}{
		{"bdf1 linear", 1, 0.1, 0, func(t float64) float64 { return 3*t + 1 }, func(float64) float64 { return 3 }},
		{"bdf2 quadratic uniform", 2, 0.1, 0.1, func(t float64) float64 { return t * t }, func(t float64) float64 { return 2 * t }},
		{"bdf2 quadratic variable", 2, 0.05, 0.2, func(t float64) float64 { return 2*t*t - t }, func(t float64) float64 { return 4*t - 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.order)
			if err != nil {
				t.Fatal(err)
			}
			c, err := b.Compute(tt.dt, tt.dtOld)
			if err != nil {
				t.Fatal(err)
			}

			tn := 1.0
			got := c[0]*tt.u(tn) + c[1]*tt.u(tn-tt.dt)
			if tt.order == 2 {
				got += c[2] * tt.u(tn-tt.dt-tt.dtOld)
			}
			if want := tt.du(tn); math.Abs(got-want) > 1e-9 {
				t.Errorf("derivative = %.12f, want %.12f", got, want)
			}
		})
	}
}

func TestBDFCoefficientsSumToZero(t *testing.T) {
	b := NewBDF2()
	c, _ := b.Compute(0.01, 0.02)
	if s := c[0] + c[1] + c[2]; math.Abs(s) > 1e-9 {
		t.Errorf("sum = %v, want 0", s)
	}
}

func TestBDFApplyAndDerivative(t *testing.T) {
	model := kernel.NewModel()
	mp, _ := model.CreateModelPart("Fluid", 3)
	n, _ := mp.CreateNode(1, 0, 0, 0)

	for i, v := range []float64{0, 0.01, 0.04} {
		mp.CloneTimeStep(0.1 * float64(i+1))
		n.SetValue(kernel.Pressure, v)
	}

	b := NewBDF2()
	if err := b.Apply(mp.ProcessInfo(), 0.1); err != nil {
		t.Fatal(err)
	}
	if got := mp.ProcessInfo().Value(kernel.TimeOrderKey); got != 2 {
		t.Errorf("time order = %v", got)
	}
	// p = t^2 shifted: values at t = 0.1, 0.2, 0.3 are 0, 0.01, 0.04
	// -> p(t) = (t-0.1)^2, p'(0.3) = 0.4
	if got := b.Derivative(n, kernel.Pressure); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("derivative = %v, want 0.4", got)
	}
}

func TestNewRejectsOrder(t *testing.T) {
	if _, err := New(3); err == nil {
		t.Error("expected error for order 3")
	}
	if _, err := NewBDF1().Compute(0, 0); err == nil {
		t.Error("expected error for zero time step")
	}
}

func BenchmarkBDF2Compute(b *testing.B) {
	bdf := NewBDF2()
	for i := 0; i < b.N; i++ {
		bdf.Compute(0.01, 0.012)
	}
}
