package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackByDestinationGroupsByColor(t *testing.T) {
	src, _ := chainSource(0)
	batches, err := packByDestination(0, src)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	require.Len(t, batches[0].Elems, 1)
	assert.EqualValues(t, 0, batches[0].Elems[0].ElemIDGlobal)
	require.Len(t, batches[1].Elems, 1)
	assert.EqualValues(t, 1, batches[1].Elems[0].ElemIDGlobal)

	// Each batch carries exactly the nodes its elements reference.
	var gids []int64
	for _, n := range batches[1].Nodes {
		gids = append(gids, n.GlobalID)
	}
	assert.Equal(t, []int64{1, 2}, gids)
}

func TestPackByDestinationMissingNode(t *testing.T) {
	src, _ := twoElemLineSource(0)
	src.Nodes = src.Nodes[:1] // element 0 still references node 1

	_, err := packByDestination(0, src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing from the local node map")
}
