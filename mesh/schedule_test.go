package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/dgmesh/cluster"
)

// A halo claiming an element its origin rank does not own is a fatal
// consistency error on the serving side of the schedule exchange.
func TestScheduleRejectsForeignElementRequest(t *testing.T) {
	g, err := cluster.NewGroup(2)
	require.NoError(t, err)

	err = g.Run(func(ctx *cluster.Context) error {
		peer := 1 - ctx.Rank
		b := &builder{
			ctx: ctx,
			m: &LocalMesh{
				NVolElemOwned: 1,
				VolElem: []VolumeElement{
					{ElemIDGlobal: int64(ctx.Rank), Owned: true, NDOFsSol: 2, RankOriginal: ctx.Rank},
					{ElemIDGlobal: 99, RankOriginal: peer, NDOFsSol: 2, PeriodicIndex: -1},
				},
			},
		}
		return b.buildSchedule()
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "not owned by rank")
}
