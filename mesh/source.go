package mesh

import (
	"fmt"
	"sort"
)

// SourceElement is one element of the source partitioned mesh, tagged with
// the rank (Color) that must own it after redistribution. Face arrays are
// indexed by local face number; FaceNeighbors holds the global ID of the
// neighboring element, -1 on a domain boundary.
type SourceElement struct {
	Color int

	Kind      GeometryType
	NPolyGrid int
	NPolySol  int
	NDOFsGrid int
	NDOFsSol  int
	NFaces    int

	JacConstant bool

	ElemIDGlobal        int64
	OffsetDOFsSolGlobal int64

	NodeIDs []int64

	FaceNeighbors   []int64
	FacePeriodic    []int
	FaceJacConstant []bool
}

// SourceNode is one node of the source partitioned mesh.
type SourceNode struct {
	GlobalID int64
	Coor     [3]float64
}

// SourceFace is one boundary face of the source partitioned mesh.
// VolElemIDGlobal is the global ID of the volume element owning the face.
type SourceFace struct {
	VolElemIDGlobal   int64
	BoundElemIDGlobal int64

	Kind      GeometryType
	NPolyGrid int
	NDOFsGrid int

	NodeIDs []int64
}

// SourceBoundary is one named boundary marker of the source mesh with its
// rank-local face list.
type SourceBoundary struct {
	Tag   string
	Faces []SourceFace
}

// SourceMesh is the rank-local view of the source partitioned mesh, the
// read-only collaborator the construction pipeline consumes. Elements of
// this rank cover the contiguous global ID range
// [ElemStart[rank], ElemStart[rank+1]).
type SourceMesh struct {
	Dim int

	Elements   []SourceElement
	Nodes      []SourceNode
	Boundaries []SourceBoundary

	GlobalPointCount int64

	// ElemStart has Size+1 entries: the cumulative element-count table of
	// the source partitioning, used to map a global element ID back to the
	// rank that holds its source data.
	ElemStart []int64
}

// MarkerSpec carries the configuration of one boundary marker, aligned with
// SourceMesh.Boundaries. The periodic transform fields are meaningful only
// for periodic markers; the rotation is applied about the x, y, then z axes.
type MarkerSpec struct {
	Tag         string
	RotCenter   [3]float64
	RotAngles   [3]float64
	Translation [3]float64
}

// rankOfElem returns the rank holding the source data of the element with
// the given global ID, by lower-bound search on the cumulative table.
func (src *SourceMesh) rankOfElem(gid int64) int {
	i := sort.Search(len(src.ElemStart), func(i int) bool { return src.ElemStart[i] >= gid })
	r := i - 1
	if i < len(src.ElemStart) && src.ElemStart[i] == gid {
		r++
	}
	return r
}

// localElem returns the rank-local source element with the given global ID,
// or a fatal consistency error when the ID does not fall in this rank's
// range.
func (src *SourceMesh) localElem(rank int, gid int64) (*SourceElement, error) {
	loc := gid - src.ElemStart[rank]
	if loc < 0 || loc >= int64(len(src.Elements)) {
		return nil, fmt.Errorf("mesh: global element %d resolves to local index %d, outside [0,%d) on rank %d",
			gid, loc, len(src.Elements), rank)
	}
	return &src.Elements[loc], nil
}

// nodeIndex builds the global-to-local map over the source node array.
func (src *SourceMesh) nodeIndex() map[int64]int {
	m := make(map[int64]int, len(src.Nodes))
	for i, n := range src.Nodes {
		m[n.GlobalID] = i
	}
	return m
}
