package mesh

import (
	"fmt"
	"sort"
)

// packByDestination walks the source mesh and groups everything colored for
// another rank into one elementBatch per destination: the elements, the
// deduplicated set of nodes their connectivity references, and per marker
// the boundary faces whose owning element moves to that destination.
func packByDestination(rank int, src *SourceMesh) (map[int]*elementBatch, error) {
	nodeInd := src.nodeIndex()

	batches := make(map[int]*elementBatch)
	batchFor := func(dest int) *elementBatch {
		b := batches[dest]
		if b == nil {
			b = &elementBatch{Bound: make([][]surfRecord, len(src.Boundaries))}
			batches[dest] = b
		}
		return b
	}

	// Volume elements, each to exactly one destination: its color.
	for i := range src.Elements {
		e := &src.Elements[i]
		b := batchFor(e.Color)
		b.Elems = append(b.Elems, elemRecord{
			Kind:                e.Kind,
			NPolyGrid:           e.NPolyGrid,
			NPolySol:            e.NPolySol,
			NDOFsGrid:           e.NDOFsGrid,
			NDOFsSol:            e.NDOFsSol,
			NFaces:              e.NFaces,
			JacConstant:         e.JacConstant,
			ElemIDGlobal:        e.ElemIDGlobal,
			OffsetDOFsSolGlobal: e.OffsetDOFsSolGlobal,
			NodeIDs:             append([]int64(nil), e.NodeIDs...),
			FaceNeighbors:       append([]int64(nil), e.FaceNeighbors...),
			FacePeriodic:        append([]int(nil), e.FacePeriodic...),
			FaceJacConstant:     append([]bool(nil), e.FaceJacConstant...),
		})
	}

	// Nodes: per destination the distinct node IDs referenced by its
	// elements, with coordinates.
	for _, b := range batches {
		var nodeIDs []int64
		for i := range b.Elems {
			nodeIDs = append(nodeIDs, b.Elems[i].NodeIDs...)
		}
		sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })
		nodeIDs = uniqueInt64(nodeIDs)

		for _, nid := range nodeIDs {
			ind, ok := nodeInd[nid]
			if !ok {
				return nil, fmt.Errorf("mesh: node %d referenced by an element on rank %d is missing from the local node map",
					nid, rank)
			}
			b.Nodes = append(b.Nodes, nodeRecord{
				GlobalID:      nid,
				PeriodicIndex: -1,
				Coor:          src.Nodes[ind].Coor,
			})
		}
	}

	// Boundary faces follow their owning volume element.
	for m, bound := range src.Boundaries {
		for i := range bound.Faces {
			f := &bound.Faces[i]
			owner, err := src.localElem(rank, f.VolElemIDGlobal)
			if err != nil {
				return nil, fmt.Errorf("mesh: boundary face %d of marker %q: %w",
					f.BoundElemIDGlobal, bound.Tag, err)
			}
			b := batchFor(owner.Color)
			b.Bound[m] = append(b.Bound[m], surfRecord{
				Kind:              f.Kind,
				NPolyGrid:         f.NPolyGrid,
				NDOFsGrid:         f.NDOFsGrid,
				VolElemIDGlobal:   f.VolElemIDGlobal,
				BoundElemIDGlobal: f.BoundElemIDGlobal,
				NodeIDs:           append([]int64(nil), f.NodeIDs...),
			})
		}
	}

	return batches, nil
}

func uniqueInt64(a []int64) []int64 {
	out := a[:0]
	for i, v := range a {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
