package mesh

import (
	"fmt"
	"sort"
)

// haloRoundTrip asks the donor rank of every halo descriptor for the
// element's full description and stores the answers directly by the echoed
// slot index. The donor is the rank holding the element in the source
// partitioning, found through the cumulative element table; the rank that
// owns the element after redistribution travels back in the reply.
func (b *builder) haloRoundTrip() error {
	requests := make(map[int]*haloRequest)
	sendFlags := make([]int, b.ctx.Size)
	for _, h := range b.halos {
		donor := b.src.rankOfElem(h.globalID)
		if donor < 0 || donor >= b.ctx.Size {
			return fmt.Errorf("mesh: halo element %d maps to invalid donor rank %d", h.globalID, donor)
		}
		r := requests[donor]
		if r == nil {
			r = &haloRequest{}
			requests[donor] = r
			sendFlags[donor] = 1
		}
		r.Items = append(r.Items, haloRequestItem{
			ElemIDGlobal:  h.globalID,
			PeriodicIndex: h.perIndex,
			LocalIndex:    b.haloToInd[h],
		})
	}

	nServe, err := b.ctx.ReduceScatterSum(sendFlags)
	if err != nil {
		return err
	}
	for donor, req := range requests {
		if err := b.ctx.Send(donor, tagHaloRequest, req); err != nil {
			return err
		}
	}

	// Serve the requests that arrived here: this rank is the source-mesh
	// donor for those elements.
	for i := 0; i < nServe; i++ {
		var req haloRequest
		source, err := b.ctx.RecvAny(tagHaloRequest, &req)
		if err != nil {
			return err
		}
		reply, err := b.answerHaloRequest(&req)
		if err != nil {
			return err
		}
		if err := b.ctx.Send(source, tagHaloReply, reply); err != nil {
			return err
		}
	}

	// Collect the replies to this rank's own requests. Each reply is
	// self-contained through the echoed slot indices, so arrival order does
	// not matter.
	for i := 0; i < len(requests); i++ {
		var reply haloReply
		if _, err := b.ctx.RecvAny(tagHaloReply, &reply); err != nil {
			return err
		}
		if err := b.storeHaloReply(&reply); err != nil {
			return err
		}
	}
	return b.ctx.Barrier()
}

// answerHaloRequest builds the reply for one peer: per requested element its
// topological description, plus the deduplicated (node ID, periodic index)
// point list the answered elements reference, with coordinates.
func (b *builder) answerHaloRequest(req *haloRequest) (*haloReply, error) {
	reply := &haloReply{}
	nodeInd := b.src.nodeIndex()

	var nodeKeys []pointKey
	for _, item := range req.Items {
		e, err := b.src.localElem(b.ctx.Rank, item.ElemIDGlobal)
		if err != nil {
			return nil, fmt.Errorf("mesh: halo request: %w", err)
		}
		reply.Elems = append(reply.Elems, haloElemRecord{
			LocalIndex:    item.LocalIndex,
			PeriodicIndex: item.PeriodicIndex,
			RankOriginal:  e.Color,
			Kind:          e.Kind,
			NPolyGrid:     e.NPolyGrid,
			NPolySol:      e.NPolySol,
			NDOFsGrid:     e.NDOFsGrid,
			NDOFsSol:      e.NDOFsSol,
			NFaces:        e.NFaces,
			ElemIDGlobal:  e.ElemIDGlobal,
			NodeIDs:       append([]int64(nil), e.NodeIDs...),
		})
		for _, nid := range e.NodeIDs {
			nodeKeys = append(nodeKeys, pointKey{globalID: nid, perIndex: item.PeriodicIndex})
		}
	}

	sort.Slice(nodeKeys, func(i, j int) bool {
		if nodeKeys[i].globalID != nodeKeys[j].globalID {
			return nodeKeys[i].globalID < nodeKeys[j].globalID
		}
		return nodeKeys[i].perIndex < nodeKeys[j].perIndex
	})
	for i, k := range nodeKeys {
		if i > 0 && k == nodeKeys[i-1] {
			continue
		}
		ind, ok := nodeInd[k.globalID]
		if !ok {
			return nil, fmt.Errorf("mesh: node %d requested for a halo element is missing from the local node map",
				k.globalID)
		}
		reply.Nodes = append(reply.Nodes, nodeRecord{
			GlobalID:      k.globalID,
			PeriodicIndex: k.perIndex,
			Coor:          b.src.Nodes[ind].Coor,
		})
	}
	return reply, nil
}

// storeHaloReply writes the received halo element data into the slots the
// requests carried and accumulates the halo points for the periodic
// reconciliation.
func (b *builder) storeHaloReply(reply *haloReply) error {
	for _, rec := range reply.Elems {
		if rec.LocalIndex < b.m.NVolElemOwned || rec.LocalIndex >= len(b.m.VolElem) {
			return fmt.Errorf("mesh: halo reply echoes slot %d outside halo range [%d,%d)",
				rec.LocalIndex, b.m.NVolElemOwned, len(b.m.VolElem))
		}
		v := &b.m.VolElem[rec.LocalIndex]
		v.ElemIDGlobal = rec.ElemIDGlobal
		v.RankOriginal = rec.RankOriginal
		v.PeriodicIndex = rec.PeriodicIndex
		v.Kind = rec.Kind
		v.NPolyGrid = rec.NPolyGrid
		v.NPolySol = rec.NPolySol
		v.NDOFsGrid = rec.NDOFsGrid
		v.NDOFsSol = rec.NDOFsSol
		v.NFaces = rec.NFaces
		v.NodeIDs = append([]int64(nil), rec.NodeIDs...)

		// Not communicated; halo elements never provide these.
		v.Owned = false
		v.JacConstant = false
		v.OffsetDOFsSolGlobal = -1
	}

	for _, n := range reply.Nodes {
		b.haloPoints = append(b.haloPoints, Point{
			GlobalID:      n.GlobalID,
			PeriodicIndex: n.PeriodicIndex,
			Coor:          n.Coor,
		})
	}
	return nil
}
