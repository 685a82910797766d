package chain

import (
	"bytes"
	"sort"

	"finality-project/models"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Snapshot is a point-in-time copy of the whole index, comparable with
// reflect.DeepEqual.
type Snapshot struct {
	Blocks  map[chainhash.Hash]models.Block
	Tips    []chainhash.Hash
	Invalid []chainhash.Hash
	Active  []chainhash.Hash
}

// Snapshot captures the current index state.
func (c *Chain) Snapshot() Snapshot {
	c.mux.RLock()
	defer c.mux.RUnlock()

	s := Snapshot{
		Blocks:  make(map[chainhash.Hash]models.Block, c.index.len()),
		Tips:    sortedHashes(c.tips.validTips(c.index)),
		Invalid: sortedHashes(c.tips.invalidTips(c.index)),
		Active:  make([]chainhash.Hash, len(c.forks.active)),
	}
	for h, n := range c.index.nodes {
		s.Blocks[h] = n.toBlock()
	}
	for i, n := range c.forks.active {
		s.Active[i] = n.hash
	}
	return s
}

func sortedHashes(nodes []*blockNode) []chainhash.Hash {
	out := make([]chainhash.Hash, len(nodes))
	for i, n := range nodes {
		out[i] = n.hash
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
