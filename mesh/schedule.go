package mesh

import (
	"fmt"
	"sort"
)

// buildSchedule derives the per-neighbor send and receive DOF lists used
// every solver communication step. Both sides derive their half of the
// schedule: each rank tells a neighbor which of the neighbor's elements it
// mirrors, and records receive indices from its own halo layout while the
// neighbor records the matching send indices from the IDs it is told.
// Messages are matched by known source, so no barrier is needed.
func (b *builder) buildSchedule() error {
	if len(b.m.VolElem) == 0 {
		return nil
	}

	// Local contiguous solution-DOF offsets in element array order.
	b.m.VolElem[0].OffsetDOFsSolLocal = 0
	for i := 1; i < len(b.m.VolElem); i++ {
		b.m.VolElem[i].OffsetDOFsSolLocal = b.m.VolElem[i-1].OffsetDOFsSolLocal +
			b.m.VolElem[i-1].NDOFsSol
	}

	// The neighbor set is the distinct origin ranks of the halo elements.
	commWith := make(map[int]bool)
	for i := b.m.NVolElemOwned; i < len(b.m.VolElem); i++ {
		commWith[b.m.VolElem[i].RankOriginal] = true
	}
	for r := range commWith {
		b.m.RanksComm = append(b.m.RanksComm, r)
	}
	sort.Ints(b.m.RanksComm)

	rankToInd := make(map[int]int, len(b.m.RanksComm))
	for i, r := range b.m.RanksComm {
		rankToInd[r] = i
	}

	// Receive side: the DOFs of every halo element, bucketed by origin, in
	// the same order as the element IDs sent to that origin.
	elemIDs := make([][]int64, len(b.m.RanksComm))
	b.m.DOFsRecv = make([][]int, len(b.m.RanksComm))
	b.m.DOFsSend = make([][]int, len(b.m.RanksComm))
	for i := b.m.NVolElemOwned; i < len(b.m.VolElem); i++ {
		v := &b.m.VolElem[i]
		ind := rankToInd[v.RankOriginal]
		elemIDs[ind] = append(elemIDs[ind], v.ElemIDGlobal)
		for j := 0; j < v.NDOFsSol; j++ {
			b.m.DOFsRecv[ind] = append(b.m.DOFsRecv[ind], v.OffsetDOFsSolLocal+j)
		}
	}

	ownedInd := make(map[int64]int, b.m.NVolElemOwned)
	for i := 0; i < b.m.NVolElemOwned; i++ {
		ownedInd[b.m.VolElem[i].ElemIDGlobal] = i
	}

	for i, r := range b.m.RanksComm {
		if err := b.ctx.Send(r, tagScheduleIDs, &scheduleRequest{ElemIDs: elemIDs[i]}); err != nil {
			return err
		}
	}

	// Send side: a neighbor mirrors some of this rank's owned elements; it
	// names them by global ID and this rank records the matching DOFs. The
	// halo relation is symmetric, so the peers messaging here are exactly
	// RanksComm.
	for i, r := range b.m.RanksComm {
		var req scheduleRequest
		if err := b.ctx.Recv(r, tagScheduleIDs, &req); err != nil {
			return err
		}
		for _, gid := range req.ElemIDs {
			ind, ok := ownedInd[gid]
			if !ok {
				return fmt.Errorf("mesh: rank %d asks for DOFs of element %d, not owned by rank %d",
					r, gid, b.ctx.Rank)
			}
			v := &b.m.VolElem[ind]
			for k := 0; k < v.NDOFsSol; k++ {
				b.m.DOFsSend[i] = append(b.m.DOFsSend[i], v.OffsetDOFsSolLocal+k)
			}
		}
	}
	return nil
}
