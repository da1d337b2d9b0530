package mesh

import (
	"fmt"
	"math"
	"sort"
)

// GeometryType identifies the shape of an element.
type GeometryType uint8

const (
	// 3D element types
	Tet     GeometryType = iota // Tetrahedron
	Hex                         // Hexahedron
	Prism                       // Triangular prism
	Pyramid                     // Square-based pyramid

	// 2D element types
	Tri       // Triangle
	Rectangle // Rectangle/Quadrilateral

	// 1D element type
	Line // Line segment
)

// VolumeElement is one volume element of the local mesh, either owned by
// this rank or mirrored as a halo. NodeIDs hold global point IDs until the
// final assembly pass rewrites them to local indices into the point array.
type VolumeElement struct {
	ElemIDGlobal int64
	RankOriginal int // rank owning the authoritative copy

	Kind      GeometryType
	NPolyGrid int
	NPolySol  int
	NDOFsGrid int
	NDOFsSol  int
	NFaces    int

	JacConstant     bool
	JacFaceConstant []bool

	NodeIDs []int64

	Owned         bool
	PeriodicIndex int // -1 unless this is a halo reached through a periodic marker

	OffsetDOFsSolGlobal int64 // -1 for halo elements
	OffsetDOFsSolLocal  int
}

// SurfaceElement is one boundary face. VolElemID holds the global ID of the
// owning volume element until assembly rewrites it to the local element
// index; NodeIDs are likewise global until translated.
type SurfaceElement struct {
	Kind      GeometryType
	NPolyGrid int
	NDOFsGrid int

	VolElemID         int64
	BoundElemIDGlobal int64

	NodeIDs []int64
}

// Less gives surface elements a deterministic total order, sufficient for
// the repeatable sorts the periodic search relies on.
func (s SurfaceElement) Less(o SurfaceElement) bool {
	if s.VolElemID != o.VolElemID {
		return s.VolElemID < o.VolElemID
	}
	return s.BoundElemIDGlobal < o.BoundElemIDGlobal
}

// LengthScale returns the shortest edge length of the face, used to derive
// the matching tolerance for periodic points. NodeIDs must already be local
// indices into points.
func (s *SurfaceElement) LengthScale(points []Point, dim int) (float64, error) {
	var edges [][2]int64
	n := s.NodeIDs
	switch s.Kind {
	case Line:
		edges = [][2]int64{{n[0], n[len(n)-1]}}
	case Tri:
		edges = [][2]int64{
			{n[0], n[s.NPolyGrid]},
			{n[s.NPolyGrid], n[len(n)-1]},
			{n[len(n)-1], n[0]},
		}
	case Rectangle:
		edges = [][2]int64{
			{n[0], n[s.NPolyGrid]},
			{n[s.NPolyGrid], n[len(n)-1]},
			{n[len(n)-1], n[s.NPolyGrid*(s.NPolyGrid+1)]},
			{n[s.NPolyGrid*(s.NPolyGrid+1)], n[0]},
		}
	default:
		return 0, fmt.Errorf("mesh: length scale undefined for surface element kind %d", s.Kind)
	}

	lenScale := 0.0
	for i, e := range edges {
		d := 0.0
		for l := 0; l < dim; l++ {
			ds := points[e[1]].Coor[l] - points[e[0]].Coor[l]
			d += ds * ds
		}
		d = math.Sqrt(d)
		if i == 0 || d < lenScale {
			lenScale = d
		}
	}
	return lenScale, nil
}

// Boundary groups the surface elements of one named boundary marker.
type Boundary struct {
	Tag      string
	SurfElem []SurfaceElement
}

func sortSurfaceElements(surf []SurfaceElement) {
	sort.Slice(surf, func(i, j int) bool { return surf[i].Less(surf[j]) })
}

// haloDescriptor identifies one halo instance: the same neighbor element
// reached through two different periodic transformations is two distinct
// halos. PeriodicIndex is -1 for plain adjacency.
type haloDescriptor struct {
	globalID int64
	perIndex int
}

func (h haloDescriptor) less(o haloDescriptor) bool {
	if h.globalID != o.globalID {
		return h.globalID < o.globalID
	}
	return h.perIndex < o.perIndex
}

// sortUniqueHalos sorts descriptors and drops duplicates.
func sortUniqueHalos(halos []haloDescriptor) []haloDescriptor {
	sort.Slice(halos, func(i, j int) bool { return halos[i].less(halos[j]) })
	out := halos[:0]
	for i, h := range halos {
		if i == 0 || h != out[len(out)-1] {
			out = append(out, h)
		}
	}
	return out
}

func searchInt64(a []int64, v int64) bool {
	i := sort.Search(len(a), func(i int) bool { return a[i] >= v })
	return i < len(a) && a[i] == v
}
