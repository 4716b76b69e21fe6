// Package comm provides the process communicator used by distributed
// solvers.
//
// The communicator is selected once from the launcher environment:
//
//	c := comm.AutoSelect()
//	if c.Size() > 1 { ... }
//
// Only the in-process communicator is implemented. Under an MPI launcher it
// reports the launcher's rank and size so that partitioning and import run
// as they would on that rank; collective operations act on the local value.
package comm

import (
	"os"
	"strconv"
)

type Communicator interface {
	Name() string
	Rank() int
	Size() int
	Barrier()
	SumAll(x float64) float64
	MaxAll(x float64) float64
	Close()
}

// Local is a communicator that performs no inter-process transport.
type Local struct {
	rank, size int
	closed     bool
}

func NewLocal(rank, size int) *Local {
	if size < 1 {
		size = 1
	}
	if rank < 0 || rank >= size {
		rank = 0
	}
	return &Local{rank: rank, size: size}
}

func (l *Local) Name() string {
	if l.size == 1 {
		return "serial"
	}
	return "local(" + strconv.Itoa(l.rank) + "/" + strconv.Itoa(l.size) + ")"
}

func (l *Local) Rank() int                { return l.rank }
func (l *Local) Size() int                { return l.size }
func (l *Local) Barrier()                 {}
func (l *Local) SumAll(x float64) float64 { return x }
func (l *Local) MaxAll(x float64) float64 { return x }
func (l *Local) Close()                   { l.closed = true }
func (l *Local) Closed() bool             { return l.closed }

type envPair struct{ rank, size string }

var launchers = []envPair{
	{"OMPI_COMM_WORLD_RANK", "OMPI_COMM_WORLD_SIZE"},
	{"PMI_RANK", "PMI_SIZE"},
	{"PMIX_RANK", "PMIX_SIZE"},
}

// AutoSelect reads rank and size from the MPI launcher environment and
// falls back to a serial communicator.
func AutoSelect() Communicator {
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) *Local {
	for _, l := range launchers {
		size, err := strconv.Atoi(getenv(l.size))
		if err != nil || size < 1 {
			continue
		}
		rank, _ := strconv.Atoi(getenv(l.rank))
		return NewLocal(rank, size)
	}
	return NewLocal(0, 1)
}
