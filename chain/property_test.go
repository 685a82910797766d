package chain_test

import (
	"fmt"
	"math/big"
	"testing"

	"finality-project/chain"
	"finality-project/models"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// randomForest grows a random block tree: every new block picks any known
// block as parent, gets a random work value and is occasionally reported
// invalid.
func randomForest(rt *rapid.T, c *chain.Chain) []models.Header {
	genesis := models.Header{
		Hash: hashOf("genesis"),
		Work: big.NewInt(int64(rapid.IntRange(1, 10).Draw(rt, "genesis_work"))),
	}
	_, err := c.SubmitHeader(genesis)
	require.NoError(rt, err)

	headers := []models.Header{genesis}
	n := rapid.IntRange(1, 60).Draw(rt, "blocks")
	for i := 0; i < n; i++ {
		parent := headers[rapid.IntRange(0, len(headers)-1).Draw(rt, "parent")]
		h := models.Header{
			Hash:       hashOf(fmt.Sprintf("block-%d", i)),
			ParentHash: parent.Hash,
			Height:     parent.Height + 1,
			Work:       big.NewInt(int64(rapid.IntRange(1, 10).Draw(rt, "work"))),
			Invalid:    rapid.IntRange(0, 19).Draw(rt, "invalid") == 0,
		}
		_, err := c.SubmitHeader(h)
		require.NoError(rt, err)
		headers = append(headers, h)
	}
	return headers
}

func checkForestInvariants(rt *rapid.T, c *chain.Chain) {
	snap := c.Snapshot()

	// Cumulative work strictly increases from parent to child.
	for _, b := range snap.Blocks {
		if b.Height == 0 {
			require.Zero(rt, b.CumulativeWork.Cmp(b.Work))
			continue
		}
		parent, ok := snap.Blocks[b.ParentHash]
		require.True(rt, ok)
		require.Equal(rt, parent.Height+1, b.Height)
		require.Equal(rt, 1, b.CumulativeWork.Cmp(parent.CumulativeWork))
		if parent.Status == models.StatusInvalid {
			require.Equal(rt, models.StatusInvalid, b.Status)
		}
	}

	best, ok := c.BestTip()
	if !ok {
		require.Empty(rt, snap.Tips)
		require.Empty(rt, snap.Active)
		return
	}

	// The active chain ends at the best tip and spans every height.
	active := c.ActiveChain()
	require.Len(rt, active, int(best.Height)+1)
	require.Equal(rt, best.Hash, active[len(active)-1].Hash)

	// The best tip outweighs every other valid tip.
	for _, h := range snap.Tips {
		tip := snap.Blocks[h]
		require.NotEqual(rt, models.StatusInvalid, tip.Status)
		require.LessOrEqual(rt, tip.CumulativeWork.Cmp(best.CumulativeWork), 0)
		if h != best.Hash {
			require.Equal(rt, models.StatusValidFork, tip.Status)
		}
	}

	// Exactly the active chain carries the active status.
	activeCount := 0
	for _, b := range snap.Blocks {
		if b.Status == models.StatusActive {
			activeCount++
		}
	}
	require.Equal(rt, len(active), activeCount)
}

func TestForestInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := chain.NewChain(nil)
		randomForest(rt, c)
		checkForestInvariants(rt, c)
	})
}

func TestForestInvariantsAfterInvalidation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := chain.NewChain(nil)
		headers := randomForest(rt, c)

		victim := headers[rapid.IntRange(0, len(headers)-1).Draw(rt, "victim")]
		require.NoError(rt, c.InvalidateBlock(victim.Hash))
		checkForestInvariants(rt, c)
	})
}

func TestResubmitKeepsSnapshot(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := chain.NewChain(nil)
		headers := randomForest(rt, c)
		before := c.Snapshot()

		h := headers[rapid.IntRange(0, len(headers)-1).Draw(rt, "resubmit")]
		h.Invalid = false
		_, err := c.SubmitHeader(h)
		require.NoError(rt, err)
		require.Equal(rt, before, c.Snapshot())
	})
}
