package chain

import (
	"fmt"
	"math"

	"finality-project/models"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// FinalityInfinite is reported when no competing branch threatens a block.
const FinalityInfinite int64 = math.MaxInt64

// finalityIndex computes the safety margin of the active block with the given
// hash against the heaviest rival branch forking at or below it:
//
//	(height(best) - height(B)) - (height(R) - height(fork(B, R))) + 1
//
// A value <= 0 means the rival could already reorganize B away.
func (c *Chain) finalityIndex(hash chainhash.Hash) (int64, error) {
	b := c.index.lookup(hash)
	if b == nil {
		return 0, fmt.Errorf("%w: %v", ErrUnknownBlock, hash)
	}
	if b.status != models.StatusActive {
		return 0, fmt.Errorf("%w: %v is %v", ErrNotOnActiveChain, hash,
			b.status)
	}

	best := c.tips.best
	mainDepth := best.height - b.height

	memo := make(map[*blockNode]*blockNode)
	var rival, rivalFork *blockNode
	for _, t := range c.tips.validTips(c.index) {
		if t == best {
			continue
		}
		fork := c.forks.forkPoint(c.index, t, memo)
		if fork == nil || fork.height > b.height {
			// Forks above B cannot displace it.
			continue
		}
		if t.betterThan(rival) {
			rival, rivalFork = t, fork
		}
	}
	if rival == nil {
		return FinalityInfinite, nil
	}

	forkDepth := rival.height - rivalFork.height
	return mainDepth - forkDepth + 1, nil
}
