package chain

import (
	"finality-project/models"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	mapset "github.com/deckarep/golang-set/v2"
)

// tipSet tracks the valid leaves of the block tree together with the cached
// best tip. Invalid leaves are kept apart so they can be reported but never
// take part in work comparisons.
type tipSet struct {
	tips    mapset.Set[chainhash.Hash]
	invalid mapset.Set[chainhash.Hash]
	best    *blockNode
}

func newTipSet() *tipSet {
	// Access is serialized by the Chain lock.
	return &tipSet{
		tips:    mapset.NewThreadUnsafeSet[chainhash.Hash](),
		invalid: mapset.NewThreadUnsafeSet[chainhash.Hash](),
	}
}

// onBlockInserted updates the set after n was added to the index and reports
// whether the best tip changed. Blocks must be fed parent before child.
func (ts *tipSet) onBlockInserted(bi *blockIndex, n *blockNode) bool {
	parent := bi.parent(n)

	if n.status == models.StatusInvalid {
		// A valid parent keeps its place: the new child can never extend it.
		if parent != nil {
			ts.invalid.Remove(parent.hash)
		}
		if len(n.children) == 0 {
			ts.invalid.Add(n.hash)
		}
		return false
	}

	if parent != nil {
		ts.tips.Remove(parent.hash)
	}
	if bi.hasValidChild(n) {
		return false
	}
	ts.tips.Add(n.hash)

	// A child of the best tip always carries more work than it, so the
	// cached best only ever needs comparing against the new tip here.
	if n.betterThan(ts.best) {
		ts.best = n
		return true
	}
	return false
}

// onSubtreeInvalidated removes the invalidated nodes from the valid tips,
// restores their parent as a tip when it lost its last valid child and
// rescans for the best tip if the old one was retired.
func (ts *tipSet) onSubtreeInvalidated(bi *blockIndex, top *blockNode,
	retired []*blockNode) bool {

	bestRetired := false
	for _, n := range retired {
		if ts.tips.Contains(n.hash) {
			ts.tips.Remove(n.hash)
		}
		if n == ts.best {
			bestRetired = true
		}
		if len(n.children) == 0 {
			ts.invalid.Add(n.hash)
		}
	}

	if parent := bi.parent(top); parent != nil &&
		parent.status != models.StatusInvalid && !bi.hasValidChild(parent) {

		ts.tips.Add(parent.hash)
		if !bestRetired && parent.betterThan(ts.best) {
			ts.best = parent
			return true
		}
	}

	if !bestRetired {
		return false
	}
	ts.rescan(bi)
	return true
}

// rescan recomputes the best tip from scratch.
func (ts *tipSet) rescan(bi *blockIndex) {
	ts.best = nil
	ts.tips.Each(func(h chainhash.Hash) bool {
		if n := bi.lookup(h); n.betterThan(ts.best) {
			ts.best = n
		}
		return false
	})
}

func (ts *tipSet) validTips(bi *blockIndex) []*blockNode {
	out := make([]*blockNode, 0, ts.tips.Cardinality())
	ts.tips.Each(func(h chainhash.Hash) bool {
		out = append(out, bi.lookup(h))
		return false
	})
	return out
}

func (ts *tipSet) invalidTips(bi *blockIndex) []*blockNode {
	out := make([]*blockNode, 0, ts.invalid.Cardinality())
	ts.invalid.Each(func(h chainhash.Hash) bool {
		out = append(out, bi.lookup(h))
		return false
	})
	return out
}
