// Package linsolvers builds linear solvers from settings blocks such as
//
//	{"solver_type": "bicgstab", "tolerance": 1e-7, "max_iteration": 300}
package linsolvers

import (
	"fmt"

	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/linalg"
	"github.com/san-kum/femstage/internal/params"
)

const (
	AMGCL     factory.Kind = "amgcl"
	CG        factory.Kind = "cg"
	BiCGSTAB  factory.Kind = "bicgstab"
	SkylineLU factory.Kind = "skyline_lu_factorization"
)

var iterativeSchema = params.MustSchema(`{
	"solver_type": "",
	"tolerance": 1e-6,
	"max_iteration": 200,
	"preconditioner_type": "diagonal",
	"verbosity": 0
}`)

var amgclSchema = params.MustSchema(`{
	"solver_type": "amgcl",
	"krylov_type": "bicgstab",
	"smoother_type": "ilu0",
	"max_levels": 3,
	"coarse_enough": 500,
	"scaling": false
}`).Extend(iterativeSchema)

var luSchema = params.MustSchema(`{
	"solver_type": "skyline_lu_factorization",
	"verbosity": 0
}`)

// Registry is the closed set of linear solver kinds.
var Registry = newRegistry()

func newRegistry() *factory.Registry[linalg.LinSol, struct{}] {
	r := factory.NewRegistry[linalg.LinSol, struct{}]("linear solver", "solver_type")
	r.Register(CG, iterativeSchema, func(s *params.Parameters, _ struct{}) (linalg.LinSol, error) {
		return newKrylov("cg", s)
	})
	r.Register(BiCGSTAB, iterativeSchema, func(s *params.Parameters, _ struct{}) (linalg.LinSol, error) {
		return newKrylov("bicgstab", s)
	})
	r.Register(AMGCL, amgclSchema, newAMGCL)
	r.Register(SkylineLU, luSchema, func(s *params.Parameters, _ struct{}) (linalg.LinSol, error) {
		if _, err := params.Resolve(s, luSchema); err != nil {
			return nil, err
		}
		return linalg.NewLU(), nil
	})
	r.Alias("super_lu", SkylineLU)
	return r
}

// Create builds the linear solver described by settings.
func Create(settings *params.Parameters) (linalg.LinSol, error) {
	return Registry.Create(settings, struct{}{})
}

func newKrylov(method string, settings *params.Parameters) (linalg.LinSol, error) {
	s, err := params.Resolve(settings, iterativeSchema)
	if err != nil {
		return nil, err
	}
	pc, err := preconditioner(s.String("preconditioner_type"))
	if err != nil {
		return nil, err
	}
	if method == "cg" {
		return linalg.NewCG(s.Float("tolerance"), s.Int("max_iteration"), pc), nil
	}
	return linalg.NewBiCGSTAB(s.Float("tolerance"), s.Int("max_iteration"), pc), nil
}

// newAMGCL maps the algebraic multigrid settings onto a Krylov solver with a
// diagonal smoother. Hierarchy settings are accepted and ignored.
func newAMGCL(settings *params.Parameters, _ struct{}) (linalg.LinSol, error) {
	s, err := params.Resolve(settings, amgclSchema)
	if err != nil {
		return nil, err
	}
	krylov := s.String("krylov_type")
	switch krylov {
	case "cg", "bicgstab":
	case "gmres", "lgmres", "fgmres":
		krylov = "bicgstab"
	default:
		return nil, &params.ConfigError{Path: "krylov_type", Reason: fmt.Sprintf("unsupported krylov type %q", krylov)}
	}
	if krylov == "cg" {
		return linalg.NewCG(s.Float("tolerance"), s.Int("max_iteration"), linalg.Diagonal), nil
	}
	return linalg.NewBiCGSTAB(s.Float("tolerance"), s.Int("max_iteration"), linalg.Diagonal), nil
}

func preconditioner(name string) (linalg.Preconditioner, error) {
	switch name {
	case "none", "":
		return linalg.NoPreconditioner, nil
	case "diagonal", "jacobi":
		return linalg.Diagonal, nil
	}
	return "", &params.ConfigError{Path: "preconditioner_type", Reason: fmt.Sprintf("unknown preconditioner %q", name)}
}
