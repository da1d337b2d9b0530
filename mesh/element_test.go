package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurfaceLengthScaleLine(t *testing.T) {
	points := []Point{
		{GlobalID: 0, Coor: [3]float64{0, 0, 0}},
		{GlobalID: 1, Coor: [3]float64{3, 4, 0}},
	}
	s := SurfaceElement{Kind: Line, NPolyGrid: 1, NDOFsGrid: 2, NodeIDs: []int64{0, 1}}
	ls, err := s.LengthScale(points, 2)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, ls, 1e-14)
}

func TestSurfaceLengthScaleTriangle(t *testing.T) {
	points := []Point{
		{Coor: [3]float64{0, 0, 0}},
		{Coor: [3]float64{2, 0, 0}},
		{Coor: [3]float64{0, 1, 0}},
	}
	s := SurfaceElement{Kind: Tri, NPolyGrid: 1, NDOFsGrid: 3, NodeIDs: []int64{0, 1, 2}}
	ls, err := s.LengthScale(points, 3)
	require.NoError(t, err)
	// Shortest of the three edges: the one of length 1.
	assert.InDelta(t, 1.0, ls, 1e-14)
}

func TestSurfaceLengthScaleRectangle(t *testing.T) {
	// Corner ordering follows the lexicographic grid-DOF layout.
	points := []Point{
		{Coor: [3]float64{0, 0, 0}},
		{Coor: [3]float64{2, 0, 0}},
		{Coor: [3]float64{0, 0.5, 0}},
		{Coor: [3]float64{2, 0.5, 0}},
	}
	s := SurfaceElement{Kind: Rectangle, NPolyGrid: 1, NDOFsGrid: 4, NodeIDs: []int64{0, 1, 2, 3}}
	ls, err := s.LengthScale(points, 3)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ls, 1e-14)
}

func TestSurfaceLengthScaleUnsupportedKind(t *testing.T) {
	s := SurfaceElement{Kind: Tet}
	_, err := s.LengthScale(nil, 3)
	assert.Error(t, err)
}

func TestSurfaceElementOrdering(t *testing.T) {
	a := SurfaceElement{VolElemID: 1, BoundElemIDGlobal: 5}
	b := SurfaceElement{VolElemID: 2, BoundElemIDGlobal: 0}
	c := SurfaceElement{VolElemID: 2, BoundElemIDGlobal: 3}
	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(b))
}

func TestRankOfElem(t *testing.T) {
	src := &SourceMesh{ElemStart: []int64{0, 3, 5, 9}}
	cases := []struct {
		gid  int64
		rank int
	}{
		{0, 0}, {2, 0}, {3, 1}, {4, 1}, {5, 2}, {8, 2},
	}
	for _, c := range cases {
		assert.Equal(t, c.rank, src.rankOfElem(c.gid), "gid %d", c.gid)
	}
}

func TestLocalElemRange(t *testing.T) {
	src := &SourceMesh{
		Elements:  make([]SourceElement, 2),
		ElemStart: []int64{0, 2, 4},
	}
	src.Elements[0].ElemIDGlobal = 0
	src.Elements[1].ElemIDGlobal = 1

	e, err := src.localElem(0, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.ElemIDGlobal)

	_, err = src.localElem(0, 3)
	assert.Error(t, err)
}
