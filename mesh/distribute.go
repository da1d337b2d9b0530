package mesh

import (
	"fmt"
	"sort"
)

// redistribute performs the ownership-transfer round: pack everything by
// destination color, negotiate the inbound peer count, exchange batches,
// and synchronize. Wildcard receives are used, so the round ends with a
// barrier.
func (b *builder) redistribute() ([]elementBatch, error) {
	batches, err := packByDestination(b.ctx.Rank, b.src)
	if err != nil {
		return nil, err
	}

	sendFlags := make([]int, b.ctx.Size)
	for dest := range batches {
		sendFlags[dest] = 1
	}
	nRecv, err := b.ctx.ReduceScatterSum(sendFlags)
	if err != nil {
		return nil, err
	}

	for dest, batch := range batches {
		if err := b.ctx.Send(dest, tagElemBatch, batch); err != nil {
			return nil, err
		}
	}

	recv := make([]elementBatch, nRecv)
	for i := 0; i < nRecv; i++ {
		if _, err := b.ctx.RecvAny(tagElemBatch, &recv[i]); err != nil {
			return nil, err
		}
	}
	if err := b.ctx.Barrier(); err != nil {
		return nil, err
	}
	return recv, nil
}

// assemble populates the owned part of the local mesh from the received
// batches and determines the halo descriptors from the face neighbor data,
// sizing the final element array as owned plus halo.
func (b *builder) assemble(batches []elementBatch) error {
	// Owned global element IDs, sorted ascending: the local index of an
	// owned element is its position in this list.
	for i := range batches {
		for j := range batches[i].Elems {
			b.ownedIDs = append(b.ownedIDs, batches[i].Elems[j].ElemIDGlobal)
		}
	}
	sort.Slice(b.ownedIDs, func(i, j int) bool { return b.ownedIDs[i] < b.ownedIDs[j] })
	for i := 1; i < len(b.ownedIDs); i++ {
		if b.ownedIDs[i] == b.ownedIDs[i-1] {
			return fmt.Errorf("mesh: element %d owned twice on rank %d", b.ownedIDs[i], b.ctx.Rank)
		}
	}

	// Halo discovery: every face neighbor that is not a domain boundary is
	// a halo unless it is plain adjacency to a locally owned element. A
	// periodic face always produces a halo, even when the neighbor itself
	// lives on this rank.
	for i := range batches {
		for j := range batches[i].Elems {
			e := &batches[i].Elems[j]
			for k := 0; k < e.NFaces; k++ {
				nb := e.FaceNeighbors[k]
				if nb == -1 {
					continue
				}
				if e.FacePeriodic[k] == -1 && searchInt64(b.ownedIDs, nb) {
					continue
				}
				b.halos = append(b.halos, haloDescriptor{globalID: nb, perIndex: e.FacePeriodic[k]})
			}
		}
	}
	b.halos = sortUniqueHalos(b.halos)

	nOwned := len(b.ownedIDs)
	b.m.NVolElemOwned = nOwned
	b.m.VolElem = make([]VolumeElement, nOwned+len(b.halos))

	b.elemToInd = make(map[int64]int, nOwned)
	for i, gid := range b.ownedIDs {
		b.elemToInd[gid] = i
	}
	b.haloToInd = make(map[haloDescriptor]int, len(b.halos))
	for i, h := range b.halos {
		b.haloToInd[h] = nOwned + i
	}

	// Owned elements, points and boundary faces from the batches.
	b.m.Boundaries = make([]Boundary, len(b.markers))
	for m := range b.markers {
		b.m.Boundaries[m].Tag = b.markers[m].Tag
	}

	var points []Point
	for i := range batches {
		for j := range batches[i].Elems {
			e := &batches[i].Elems[j]
			ind, ok := b.elemToInd[e.ElemIDGlobal]
			if !ok {
				return fmt.Errorf("mesh: received element %d not in owned ID list", e.ElemIDGlobal)
			}
			b.m.VolElem[ind] = VolumeElement{
				ElemIDGlobal:        e.ElemIDGlobal,
				RankOriginal:        b.ctx.Rank,
				Kind:                e.Kind,
				NPolyGrid:           e.NPolyGrid,
				NPolySol:            e.NPolySol,
				NDOFsGrid:           e.NDOFsGrid,
				NDOFsSol:            e.NDOFsSol,
				NFaces:              e.NFaces,
				JacConstant:         e.JacConstant,
				JacFaceConstant:     append([]bool(nil), e.FaceJacConstant...),
				NodeIDs:             append([]int64(nil), e.NodeIDs...),
				Owned:               true,
				PeriodicIndex:       -1,
				OffsetDOFsSolGlobal: e.OffsetDOFsSolGlobal,
			}
		}

		for _, n := range batches[i].Nodes {
			points = append(points, Point{GlobalID: n.GlobalID, PeriodicIndex: -1, Coor: n.Coor})
		}

		for m, surfs := range batches[i].Bound {
			for _, s := range surfs {
				b.m.Boundaries[m].SurfElem = append(b.m.Boundaries[m].SurfElem, SurfaceElement{
					Kind:              s.Kind,
					NPolyGrid:         s.NPolyGrid,
					NDOFsGrid:         s.NDOFsGrid,
					VolElemID:         s.VolElemIDGlobal,
					BoundElemIDGlobal: s.BoundElemIDGlobal,
					NodeIDs:           append([]int64(nil), s.NodeIDs...),
				})
			}
		}
	}

	// Different senders reference shared nodes, so deduplicate.
	b.m.Points = sortUniquePoints(points)

	for m := range b.m.Boundaries {
		sortSurfaceElements(b.m.Boundaries[m].SurfElem)
	}
	return nil
}
