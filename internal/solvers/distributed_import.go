package solvers

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/comm"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/mdpa"
)

// DistributedImporter partitions a model file and imports the nodes owned
// by the local rank together with the ghost nodes of their elements.
type DistributedImporter struct {
	path string
	comm comm.Communicator
	log  *zap.Logger

	partition    map[int]int
	ghosts       int
	communicator bool
}

func NewDistributedImporter(path string, c comm.Communicator, log *zap.Logger) *DistributedImporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &DistributedImporter{path: path, comm: c, log: log}
}

// Import reads, partitions and populates mp. PARTITION_INDEX must have been
// added to mp.
func (d *DistributedImporter) Import(mp *kernel.ModelPart) error {
	if !mp.HasNodalSolutionStepVariable(kernel.PartitionIndex) {
		return kernel.Fail("DistributedImport", fmt.Errorf("%w: %s", kernel.ErrUnknownVariable, kernel.PartitionIndex))
	}
	doc, err := mdpa.ReadFile(d.path)
	if err != nil {
		return err
	}

	points := make([]comm.Point, len(doc.Nodes))
	for i, n := range doc.Nodes {
		points[i] = comm.Point{ID: n.ID, X: n.X, Y: n.Y, Z: n.Z}
	}
	d.partition = comm.Partition(points, d.comm.Size())

	rank := d.comm.Rank()
	keep := make(map[int]bool)
	for id, p := range d.partition {
		if p == rank {
			keep[id] = true
		}
	}
	owned := len(keep)
	for _, e := range doc.Elements {
		local := false
		for _, id := range e.Nodes {
			if d.partition[id] == rank {
				local = true
				break
			}
		}
		if !local {
			continue
		}
		for _, id := range e.Nodes {
			keep[id] = true
		}
	}
	d.ghosts = len(keep) - owned

	if err := doc.PopulateNodes(mp, keep); err != nil {
		return err
	}
	for _, n := range mp.Nodes() {
		n.SetValue(kernel.PartitionIndex, float64(d.partition[n.ID]))
	}

	d.log.Info("distributed model reading finished",
		zap.Int("rank", rank),
		zap.Int("size", d.comm.Size()),
		zap.Int("owned_nodes", owned),
		zap.Int("ghost_nodes", d.ghosts))
	return nil
}

// CreateCommunicators sets up the per-part communication after import.
func (d *DistributedImporter) CreateCommunicators() error {
	if d.partition == nil {
		return kernel.Fail("CreateCommunicators", errors.New("model part not imported"))
	}
	d.comm.Barrier()
	d.communicator = true
	return nil
}

func (d *DistributedImporter) HasCommunicators() bool { return d.communicator }
func (d *DistributedImporter) GhostNodes() int        { return d.ghosts }

// Owner returns the partition that owns node id.
func (d *DistributedImporter) Owner(id int) (int, bool) {
	p, ok := d.partition[id]
	return p, ok
}
