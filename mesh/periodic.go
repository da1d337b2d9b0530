package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// reconcilePeriodic folds the received halo points into the local point
// array. Non-periodic halo points already present through ordinary adjacency
// are dropped; periodic halo points are transformed back from their donor
// and matched geometrically against this rank's own boundary points of the
// marker, merging on a hit and appending otherwise. Afterwards every element
// and boundary node list is rewritten to local point indices.
func (b *builder) reconcilePeriodic() error {
	b.haloPoints = sortUniquePoints(b.haloPoints)

	// Non-periodic halo points sort first. Drop the ones this rank already
	// holds; the rest become local points as they are.
	kept := b.haloPoints[:0]
	for _, p := range b.haloPoints {
		if p.PeriodicIndex == -1 && searchPoint(b.m.Points, p) {
			continue
		}
		kept = append(kept, p)
	}
	b.haloPoints = kept

	for _, p := range b.haloPoints {
		if p.PeriodicIndex != -1 {
			break
		}
		b.m.Points = append(b.m.Points, p)
	}

	b.pointInd = make(map[pointKey]int, len(b.m.Points))
	for i, p := range b.m.Points {
		b.pointInd[pointKey{globalID: p.GlobalID, perIndex: p.PeriodicIndex}] = i
	}

	if err := b.translateBoundaries(); err != nil {
		return err
	}
	if err := b.matchPeriodicGroups(); err != nil {
		return err
	}
	return b.translateElements()
}

// translateBoundaries rewrites every boundary face to local indices: the
// owning volume element through the owned-element map and the nodes through
// the point map. Boundary nodes never carry a periodic transformation.
func (b *builder) translateBoundaries() error {
	for m := range b.m.Boundaries {
		bound := &b.m.Boundaries[m]
		for i := range bound.SurfElem {
			s := &bound.SurfElem[i]
			ind, ok := b.elemToInd[s.VolElemID]
			if !ok {
				return fmt.Errorf("mesh: boundary face %d of marker %q references element %d not owned by rank %d",
					s.BoundElemIDGlobal, bound.Tag, s.VolElemID, b.ctx.Rank)
			}
			s.VolElemID = int64(ind)
			for j, nid := range s.NodeIDs {
				loc, ok := b.pointInd[pointKey{globalID: nid, perIndex: -1}]
				if !ok {
					return fmt.Errorf("mesh: boundary face %d of marker %q references unknown point %d",
						s.BoundElemIDGlobal, bound.Tag, nid)
				}
				s.NodeIDs[j] = int64(loc)
			}
		}
	}
	return nil
}

// matchPeriodicGroups walks the periodic halo points marker by marker.
func (b *builder) matchPeriodicGroups() error {
	for iLow := 0; iLow < len(b.haloPoints); {
		iUpp := iLow + 1
		for iUpp < len(b.haloPoints) &&
			b.haloPoints[iUpp].PeriodicIndex == b.haloPoints[iLow].PeriodicIndex {
			iUpp++
		}

		per := b.haloPoints[iLow].PeriodicIndex
		if per != -1 {
			if per < 0 || per >= len(b.markers) {
				return fmt.Errorf("mesh: halo point %d carries periodic index %d, only %d markers configured",
					b.haloPoints[iLow].GlobalID, per, len(b.markers))
			}
			if err := b.matchPeriodicGroup(per, b.haloPoints[iLow:iUpp]); err != nil {
				return err
			}
		}
		iLow = iUpp
	}
	return nil
}

// matchPeriodicGroup matches the halo points of one periodic marker against
// the marker's own boundary points.
func (b *builder) matchPeriodicGroup(per int, group []Point) error {
	set, err := b.boundaryPointSet(per)
	if err != nil {
		return err
	}

	rot := rotationFromDonor(b.markers[per].RotAngles)
	center := b.markers[per].RotCenter
	// The translation back from the donor reduces to center minus the
	// configured periodic translation.
	var translation [3]float64
	for l := 0; l < 3; l++ {
		translation[l] = center[l] - b.markers[per].Translation[l]
	}

	d := mat.NewVecDense(3, nil)
	var out mat.VecDense
	for i := range group {
		p := &group[i]
		for l := 0; l < 3; l++ {
			if l < b.m.Dim {
				d.SetVec(l, p.Coor[l]-center[l])
			} else {
				d.SetVec(l, 0)
			}
		}
		out.MulVec(rot, d)
		for l := 0; l < 3; l++ {
			p.Coor[l] = out.AtVec(l) + translation[l]
		}

		probe := comparablePoint{
			dim:    b.m.Dim,
			nodeID: -1,
			tol:    1e10, // defer entirely to the boundary point's tolerance
			coor:   p.Coor,
		}
		key := pointKey{globalID: p.GlobalID, perIndex: p.PeriodicIndex}
		if nodeID, ok := set.find(probe); ok {
			b.pointInd[key] = nodeID
		} else {
			b.pointInd[key] = len(b.m.Points)
			b.m.Points = append(b.m.Points, *p)
		}
	}
	return nil
}

// boundaryPointSet collects the distinct boundary points of one periodic
// marker, each tagged with a matching tolerance of 1e-4 times the shortest
// edge of any surface element touching it.
func (b *builder) boundaryPointSet(per int) (*pointSearchSet, error) {
	surf := b.m.Boundaries[per].SurfElem
	set := &pointSearchSet{}
	indInSet := make([]int, len(b.m.Points))
	for i := range indInSet {
		indInSet[i] = -1
	}

	for j := range surf {
		ls, err := surf[j].LengthScale(b.m.Points, b.m.Dim)
		if err != nil {
			return nil, fmt.Errorf("mesh: marker %q: %w", b.m.Boundaries[per].Tag, err)
		}
		tolElem := 1e-4 * ls

		for _, nn := range surf[j].NodeIDs {
			if indInSet[nn] == -1 {
				indInSet[nn] = len(set.pts)
				set.pts = append(set.pts, comparablePoint{
					dim:    b.m.Dim,
					nodeID: int(nn),
					tol:    tolElem,
					coor:   b.m.Points[nn].Coor,
				})
			} else {
				cp := &set.pts[indInSet[nn]]
				cp.tol = math.Min(cp.tol, tolElem)
			}
		}
	}
	set.sort()
	return set, nil
}

// rotationFromDonor builds the rotation matrix of the transformation from
// the donor back to the marker: the transpose of the rotation composed
// about the x, y, then z axes.
func rotationFromDonor(angles [3]float64) mat.Matrix {
	st, ct := math.Sincos(angles[0])
	sp, cp := math.Sincos(angles[1])
	ss, cs := math.Sincos(angles[2])

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, ct, -st,
		0, st, ct,
	})
	ry := mat.NewDense(3, 3, []float64{
		cp, 0, sp,
		0, 1, 0,
		-sp, 0, cp,
	})
	rz := mat.NewDense(3, 3, []float64{
		cs, -ss, 0,
		ss, cs, 0,
		0, 0, 1,
	})

	var ryx, rot mat.Dense
	ryx.Mul(ry, rx)
	rot.Mul(rz, &ryx)
	return rot.T()
}

// translateElements rewrites every volume element's node list to local
// point indices through the (global ID, periodic index) map. A miss here
// means an invariant of the halo exchange was violated.
func (b *builder) translateElements() error {
	for i := range b.m.VolElem {
		v := &b.m.VolElem[i]
		for j, nid := range v.NodeIDs {
			loc, ok := b.pointInd[pointKey{globalID: nid, perIndex: v.PeriodicIndex}]
			if !ok {
				return fmt.Errorf("mesh: element %d references point (%d, periodic %d) with no local index",
					v.ElemIDGlobal, nid, v.PeriodicIndex)
			}
			v.NodeIDs[j] = int64(loc)
		}
	}
	return nil
}
