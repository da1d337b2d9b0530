// Package mesh builds the rank-local mesh of a discontinuous-Galerkin FEM
// solver from a partitioned, globally-indexed source mesh: it redistributes
// elements, nodes and boundary faces to their owning ranks, mirrors the halo
// elements referenced across rank boundaries, reconciles periodic donor
// points geometrically, and derives the per-neighbor DOF communication
// schedule the solver uses every iteration.
package mesh

import (
	"fmt"

	"github.com/notargets/dgmesh/cluster"
)

// LocalMesh is the per-rank result of the construction pipeline, the
// read-mostly input of the downstream solver.
type LocalMesh struct {
	Dim int

	// VolElem holds the owned elements first, ordered by ascending global
	// ID, followed by the halo elements in deduplicated descriptor order.
	VolElem       []VolumeElement
	NVolElemOwned int

	// Points is the deduplicated local point array; element and boundary
	// connectivity index into it.
	Points []Point

	Boundaries []Boundary

	// RanksComm lists the neighbor ranks, ascending. DOFsSend[i] and
	// DOFsRecv[i] are the local solution-DOF indices exchanged with
	// RanksComm[i] every solver communication step.
	RanksComm []int
	DOFsSend  [][]int
	DOFsRecv  [][]int
}

// ConstructFaces would build the DG face pairs of the locally stored grid.
// Non-conforming and conforming face construction is not implemented; the
// entry point exists so callers fail loudly instead of computing on a mesh
// without faces.
func (m *LocalMesh) ConstructFaces() error {
	return fmt.Errorf("mesh: face construction is not implemented")
}

// builder carries the intermediate state threaded through the construction
// phases of one rank.
type builder struct {
	ctx     *cluster.Context
	src     *SourceMesh
	markers []MarkerSpec

	m *LocalMesh

	ownedIDs []int64
	halos    []haloDescriptor

	elemToInd map[int64]int          // owned global element ID -> local element index
	haloToInd map[haloDescriptor]int // halo descriptor -> local element index
	pointInd  map[pointKey]int       // (global point ID, periodic index) -> local point index

	haloPoints []Point
}

// Build runs the whole construction pipeline on one rank: pack and exchange
// ownership data, assemble the local mesh, fetch halo element details from
// their donor ranks, reconcile periodic points, and derive the DOF
// communication schedule. Every rank of ctx's group must call Build; the
// phases contain collective operations.
func Build(ctx *cluster.Context, src *SourceMesh, markers []MarkerSpec) (*LocalMesh, error) {
	if len(markers) != len(src.Boundaries) {
		return nil, fmt.Errorf("mesh: %d marker specs for %d boundaries", len(markers), len(src.Boundaries))
	}
	if len(src.ElemStart) != ctx.Size+1 {
		return nil, fmt.Errorf("mesh: cumulative element table has %d entries, want %d",
			len(src.ElemStart), ctx.Size+1)
	}

	b := &builder{
		ctx:     ctx,
		src:     src,
		markers: markers,
		m:       &LocalMesh{Dim: src.Dim},
	}

	batches, err := b.redistribute()
	if err != nil {
		return nil, err
	}
	if err := b.assemble(batches); err != nil {
		return nil, err
	}
	if err := b.haloRoundTrip(); err != nil {
		return nil, err
	}
	if err := b.reconcilePeriodic(); err != nil {
		return nil, err
	}
	if err := b.buildSchedule(); err != nil {
		return nil, err
	}
	return b.m, nil
}
