package mesh

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats/scalar"
)

// Point is one grid point of the local mesh. PeriodicIndex is -1 for an
// ordinary point; otherwise it identifies the periodic marker through whose
// donor boundary this point was received. Within a rank's final point array
// every (GlobalID, PeriodicIndex) pair occurs exactly once.
type Point struct {
	GlobalID      int64
	PeriodicIndex int
	Coor          [3]float64
}

// Less orders points primarily by periodic index, so non-periodic points
// sort in front of all periodic ones, with the global ID as tie breaker.
func (p Point) Less(q Point) bool {
	if p.PeriodicIndex != q.PeriodicIndex {
		return p.PeriodicIndex < q.PeriodicIndex
	}
	return p.GlobalID < q.GlobalID
}

// Same reports identity on the (GlobalID, PeriodicIndex) pair. Coordinates
// do not participate.
func (p Point) Same(q Point) bool {
	return p.GlobalID == q.GlobalID && p.PeriodicIndex == q.PeriodicIndex
}

// pointKey is the map key for the global-to-local point translation.
type pointKey struct {
	globalID int64
	perIndex int
}

// sortUniquePoints sorts pts and removes entries with a duplicate
// (GlobalID, PeriodicIndex) pair. The first occurrence wins.
func sortUniquePoints(pts []Point) []Point {
	sort.Slice(pts, func(i, j int) bool { return pts[i].Less(pts[j]) })
	out := pts[:0]
	for i, p := range pts {
		if i == 0 || !p.Same(out[len(out)-1]) {
			out = append(out, p)
		}
	}
	return out
}

// searchPoint reports whether pts, sorted by Less, contains an entry with
// the same (GlobalID, PeriodicIndex) pair as p.
func searchPoint(pts []Point, p Point) bool {
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].Less(p) })
	return i < len(pts) && pts[i].Same(p)
}

// comparablePoint is the transient record used for tolerance-based geometric
// matching of periodic points. Two points compare equal when every coordinate
// differs by no more than the smaller of the two tolerances. This is a
// nearest-neighbor match within tolerance, not a strict weak order; callers
// use it only through sorted-slice searches where the original call pattern
// is known to behave.
type comparablePoint struct {
	dim    int
	nodeID int
	tol    float64
	coor   [3]float64
}

func (a comparablePoint) less(b comparablePoint) bool {
	if a.dim != b.dim {
		return a.dim < b.dim
	}
	tol := math.Min(a.tol, b.tol)
	for l := 0; l < a.dim; l++ {
		if !scalar.EqualWithinAbs(a.coor[l], b.coor[l], tol) {
			return a.coor[l] < b.coor[l]
		}
	}
	return false
}

// pointSearchSet holds the boundary points of one periodic marker, sorted
// with the tolerance-aware comparator so transformed halo points can be
// matched against them.
type pointSearchSet struct {
	pts []comparablePoint
}

func (s *pointSearchSet) sort() {
	sort.Slice(s.pts, func(i, j int) bool { return s.pts[i].less(s.pts[j]) })
}

// find looks p up in the set and, when matched, returns the node index the
// matched boundary point refers to. The comparator is not transitive near
// the tolerance boundary, so the lookup scans outward from the binary-search
// position in both directions until a definite ordering bounds the scan.
func (s *pointSearchSet) find(p comparablePoint) (int, bool) {
	i := sort.Search(len(s.pts), func(i int) bool { return !s.pts[i].less(p) })
	for j := i; j < len(s.pts); j++ {
		if p.less(s.pts[j]) {
			break
		}
		if !s.pts[j].less(p) {
			return s.pts[j].nodeID, true
		}
	}
	for j := i - 1; j >= 0; j-- {
		if s.pts[j].less(p) {
			break
		}
		if !p.less(s.pts[j]) {
			return s.pts[j].nodeID, true
		}
	}
	return 0, false
}
