package fluid

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/assembly"
	"github.com/san-kum/femstage/internal/comm"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/linalg"
	"github.com/san-kum/femstage/internal/timedisc"
)

// StrategyConfig holds the iteration controls of a fractional step.
type StrategyConfig struct {
	PredictorCorrector bool
	VelocityIterations int
	PressureIterations int
	VelocityTolerance  float64
	PressureTolerance  float64
	ComputeReactions   bool
	ReformDofs         bool
}

// FSStrategy advances an incompressible flow with an incremental pressure
// projection on the node graph of a model part:
//
//	momentum   rho (c0 u* + c1 u(n) + c2 u(n-1) + (u.grad)u) + rho nu L u* = -grad p + rho f
//	pressure   L dp = -rho c0 div u*
//	correction u = u* - grad dp / (rho c0)
//
// L is the graph Laplacian, which approximates the negative Laplace
// operator.
type FSStrategy struct {
	mp       *kernel.ModelPart
	dim      int
	velocity linalg.LinSol
	pressure linalg.LinSol
	bdf      *timedisc.BDF
	cfg      StrategyConfig
	comm     comm.Communicator
	log      *zap.Logger
	echo     int

	// periodic maps each slave node id to its master.
	periodic map[int]int

	graph *assembly.Graph
	owned []bool
	dtOld float64
}

// NewFSStrategy creates a strategy. A nil communicator solves serially and
// a nil periodic map disables periodic pairing.
func NewFSStrategy(mp *kernel.ModelPart, dim int, velocity, pressure linalg.LinSol, bdf *timedisc.BDF, cfg StrategyConfig, c comm.Communicator, periodic map[int]int, log *zap.Logger) *FSStrategy {
	if c == nil {
		c = comm.NewLocal(0, 1)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FSStrategy{
		mp:       mp,
		dim:      dim,
		velocity: velocity,
		pressure: pressure,
		bdf:      bdf,
		cfg:      cfg,
		comm:     c,
		periodic: periodic,
		log:      log,
	}
}

// PeriodicPairs pairs the two nodes of every periodic condition of mp. The
// lower node id is the master.
func PeriodicPairs(mp *kernel.ModelPart) map[int]int {
	pairs := make(map[int]int)
	for _, c := range mp.Conditions() {
		if !strings.HasPrefix(c.Name, "PeriodicCondition") || len(c.NodeIDs) != 2 {
			continue
		}
		a, b := c.NodeIDs[0], c.NodeIDs[1]
		pairs[max(a, b)] = min(a, b)
	}
	return pairs
}

func (s *FSStrategy) Periodic() bool { return s.periodic != nil }

func (s *FSStrategy) Initialize() error {
	for _, n := range s.mp.Nodes() {
		if n.Value(kernel.Density) <= 0 {
			return fmt.Errorf("node %d has non-positive %s", n.ID, kernel.Density)
		}
	}
	s.build()
	return nil
}

func (s *FSStrategy) build() {
	s.graph = assembly.NewGraph(s.mp, s.dim)
	rank := s.comm.Rank()
	s.owned = make([]bool, s.graph.Size())
	for i, id := range s.graph.IDs {
		n, _ := s.mp.Node(id)
		s.owned[i] = s.comm.Size() == 1 || int(n.Value(kernel.PartitionIndex)) == rank
	}
}

func (s *FSStrategy) InitializeSolutionStep() error {
	if s.graph == nil || s.cfg.ReformDofs {
		s.build()
	}
	info := s.mp.ProcessInfo()
	dtOld := s.dtOld
	if dtOld == 0 {
		dtOld = info.DeltaTime()
	}
	return s.bdf.Apply(info, dtOld)
}

func (s *FSStrategy) Predict() error { return nil }

// Solve runs one fractional step. With predictor_corrector the momentum and
// pressure stages are repeated until the pressure increment converges.
func (s *FSStrategy) Solve() (bool, error) {
	if s.graph == nil {
		return false, errors.New("fractional step strategy not initialized")
	}
	g := s.graph
	n := g.Size()
	c := s.bdf.Coefficients()

	nodes := make([]*kernel.Node, n)
	rho := make([]float64, n)
	nu := make([]float64, n)
	for i, id := range g.IDs {
		nodes[i], _ = s.mp.Node(id)
		rho[i] = nodes[i].Value(kernel.Density)
		nu[i] = nodes[i].Value(kernel.Viscosity)
	}

	outer := 1
	if s.cfg.PredictorCorrector {
		outer = max(s.cfg.PressureIterations, 1)
	}

	converged := false
	for it := 0; it < outer; it++ {
		ustar, velConverged, err := s.momentum(nodes, rho, nu, c)
		if err != nil {
			return false, err
		}
		dp, err := s.pressureStep(nodes, rho, c[0], ustar)
		if err != nil {
			return false, err
		}
		s.correct(nodes, rho, c[0], ustar, dp)

		pNorm := s.norm(func(i int) float64 { return nodes[i].Value(kernel.Pressure) })
		dpNorm := s.norm(func(i int) float64 { return dp[i] })
		pressConverged := dpNorm <= s.cfg.PressureTolerance*math.Max(pNorm, 1e-30)
		if s.echo > 1 {
			s.log.Debug("fractional step iteration",
				zap.Int("iteration", it+1),
				zap.Bool("velocity_converged", velConverged),
				zap.Float64("pressure_increment", dpNorm))
		}

		converged = velConverged
		if !s.cfg.PredictorCorrector {
			break
		}
		converged = velConverged && pressConverged
		if converged {
			break
		}
	}
	return converged, nil
}

// momentum solves the fractional velocity with Picard iterations on the
// convective term.
func (s *FSStrategy) momentum(nodes []*kernel.Node, rho, nu []float64, c [3]float64) ([][3]float64, bool, error) {
	g := s.graph
	n, d := g.Size(), s.dim

	t := linalg.NewTriplet(n*d, n*d*4)
	fixed := make([]bool, n*d)
	prescribed := make([]float64, n*d)
	for i, edges := range g.Edges {
		for a := 0; a < d; a++ {
			eq := i*d + a
			t.Put(eq, eq, c[0])
			for _, e := range edges {
				t.Put(eq, eq, nu[i]*e.W)
				t.Put(eq, e.To*d+a, -nu[i]*e.W)
			}
			if nodes[i].IsFixed(kernel.Velocity[a]) {
				fixed[eq] = true
				prescribed[eq] = nodes[i].Value(kernel.Velocity[a])
			}
		}
	}
	t = s.fold(t, d)
	sys, err := assembly.Constrain(t, fixed)
	if err != nil {
		return nil, false, err
	}
	if err := sys.Bind(s.velocity); err != nil {
		return nil, false, err
	}

	p := make([]float64, n)
	for i := range nodes {
		p[i] = nodes[i].Value(kernel.Pressure)
	}
	gradP := g.Gradient(p)

	u := make([][3]float64, n)
	for i := range nodes {
		for a := 0; a < d; a++ {
			u[i][a] = nodes[i].Value(kernel.Velocity[a])
		}
	}

	converged := false
	var rhs []float64
	var x []float64
	iterations := max(s.cfg.VelocityIterations, 1)
	for it := 0; it < iterations; it++ {
		conv := s.convection(u)
		rhs = make([]float64, n*d)
		for i := range nodes {
			for a := 0; a < d; a++ {
				history := c[1] * nodes[i].PreviousValue(kernel.Velocity[a], 1)
				if s.bdf.Order() == 2 {
					history += c[2] * nodes[i].PreviousValue(kernel.Velocity[a], 2)
				}
				rhs[i*d+a] = -history - conv[i][a] - gradP[i][a]/rho[i] + nodes[i].Value(kernel.BodyForce[a])
			}
		}
		rhs = s.foldRHS(rhs, d)

		x, err = sys.Solve(s.velocity, rhs, prescribed)
		if err != nil {
			return nil, false, err
		}
		s.unfold(x, d)

		diff := s.norm(func(i int) float64 {
			var sum float64
			for a := 0; a < d; a++ {
				delta := x[i*d+a] - u[i][a]
				sum += delta * delta
			}
			return math.Sqrt(sum)
		})
		for i := range u {
			for a := 0; a < d; a++ {
				u[i][a] = x[i*d+a]
			}
		}
		size := s.norm(func(i int) float64 { return math.Sqrt(u[i][0]*u[i][0] + u[i][1]*u[i][1] + u[i][2]*u[i][2]) })
		if diff <= s.cfg.VelocityTolerance*math.Max(size, 1e-30) {
			converged = true
			break
		}
	}

	if s.cfg.ComputeReactions {
		r := sys.Residual(x, rhs)
		for i := range nodes {
			for a := 0; a < d; a++ {
				if fixed[i*d+a] {
					nodes[i].SetValue(kernel.Reaction[a], -rho[i]*s.graph.Area[i]*r[i*d+a])
				}
			}
		}
	}
	return u, converged, nil
}

func (s *FSStrategy) convection(u [][3]float64) [][3]float64 {
	g := s.graph
	out := make([][3]float64, g.Size())
	comp := make([]float64, g.Size())
	for a := 0; a < s.dim; a++ {
		for i := range comp {
			comp[i] = u[i][a]
		}
		grad := g.Gradient(comp)
		for i := range out {
			for b := 0; b < s.dim; b++ {
				out[i][a] += u[i][b] * grad[i][b]
			}
		}
	}
	return out
}

// pressureStep solves for the pressure increment. Without fixed pressure
// nodes the lowest node id is pinned.
func (s *FSStrategy) pressureStep(nodes []*kernel.Node, rho []float64, c0 float64, ustar [][3]float64) ([]float64, error) {
	g := s.graph
	n := g.Size()
	t := g.Laplacian(1, nil)
	t = s.fold(t, 1)

	fixed := make([]bool, n)
	anyFixed := false
	for i := range nodes {
		if nodes[i].IsFixed(kernel.Pressure) {
			fixed[i] = true
			anyFixed = true
		}
	}
	if !anyFixed && n > 0 {
		fixed[0] = true
	}

	div := g.Divergence(ustar)
	rhs := make([]float64, n)
	for i := range rhs {
		rhs[i] = -rho[i] * c0 * div[i]
	}
	rhs = s.foldRHS(rhs, 1)

	sys, err := assembly.Constrain(t, fixed)
	if err != nil {
		return nil, err
	}
	if err := sys.Bind(s.pressure); err != nil {
		return nil, err
	}
	dp, err := sys.Solve(s.pressure, rhs, make([]float64, n))
	if err != nil {
		return nil, err
	}
	s.unfold(dp, 1)

	if s.cfg.ComputeReactions {
		r := sys.Residual(dp, rhs)
		for i := range nodes {
			if fixed[i] {
				nodes[i].SetValue(kernel.ReactionWater, -s.graph.Area[i]*r[i])
			}
		}
	}
	return dp, nil
}

func (s *FSStrategy) correct(nodes []*kernel.Node, rho []float64, c0 float64, ustar [][3]float64, dp []float64) {
	grad := s.graph.Gradient(dp)
	for i, node := range nodes {
		for a := 0; a < s.dim; a++ {
			node.SetValue(kernel.FractionalVel[a], ustar[i][a])
			v := ustar[i][a]
			if !node.IsFixed(kernel.Velocity[a]) {
				v -= grad[i][a] / (rho[i] * c0)
			}
			node.SetValue(kernel.Velocity[a], v)
		}
		node.SetValue(kernel.Pressure, node.Value(kernel.Pressure)+dp[i])
	}
}

// norm is the Euclidean norm of f over the owned equations of all ranks.
func (s *FSStrategy) norm(f func(i int) float64) float64 {
	var sum float64
	for i := range s.owned {
		if s.owned[i] {
			v := f(i)
			sum += v * v
		}
	}
	return math.Sqrt(s.comm.SumAll(sum))
}

// slaves returns the equation pairs (slave, master) in slave order.
func (s *FSStrategy) slaves() [][2]int {
	if len(s.periodic) == 0 {
		return nil
	}
	var pairs [][2]int
	for slave, master := range s.periodic {
		i, okS := s.graph.Index[slave]
		j, okM := s.graph.Index[master]
		if okS && okM {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a][0] < pairs[b][0] })
	return pairs
}

// fold moves the rows and columns of slave equations onto their masters and
// ties each slave to its master.
func (s *FSStrategy) fold(t *linalg.Triplet, d int) *linalg.Triplet {
	pairs := s.slaves()
	if pairs == nil {
		return t
	}
	rep := make([]int, t.Size())
	for i := range rep {
		rep[i] = i
	}
	for _, p := range pairs {
		for a := 0; a < d; a++ {
			rep[p[0]*d+a] = p[1]*d + a
		}
	}
	a := t.ToCSR()
	out := linalg.NewTriplet(a.N, a.NNZ()+2*len(pairs)*d)
	for i := 0; i < a.N; i++ {
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			out.Put(rep[i], rep[a.ColIdx[k]], a.Val[k])
		}
		if rep[i] != i {
			out.Put(i, i, 1)
			out.Put(i, rep[i], -1)
		}
	}
	return out
}

func (s *FSStrategy) foldRHS(b []float64, d int) []float64 {
	pairs := s.slaves()
	if pairs == nil {
		return b
	}
	for _, p := range pairs {
		for a := 0; a < d; a++ {
			b[p[1]*d+a] += b[p[0]*d+a]
			b[p[0]*d+a] = 0
		}
	}
	return b
}

// unfold copies master values onto slaves, which removes the drift left by
// iterative solvers.
func (s *FSStrategy) unfold(x []float64, d int) {
	for _, p := range s.slaves() {
		for a := 0; a < d; a++ {
			x[p[0]*d+a] = x[p[1]*d+a]
		}
	}
}

func (s *FSStrategy) FinalizeSolutionStep() error {
	s.dtOld = s.mp.ProcessInfo().DeltaTime()
	return nil
}

func (s *FSStrategy) Finalize() error {
	s.Clear()
	return nil
}

func (s *FSStrategy) Clear() {
	s.velocity.Clean()
	s.pressure.Clean()
	s.graph = nil
	s.owned = nil
}

func (s *FSStrategy) SetEchoLevel(level int) { s.echo = level }
