package chain

import (
	"finality-project/models"
)

// forkChoice owns the active chain and is the only place block status is
// changed after insertion.
type forkChoice struct {
	// active[h] is the active block at height h.
	active []*blockNode
}

func newForkChoice() *forkChoice {
	return &forkChoice{}
}

func (fc *forkChoice) tip() *blockNode {
	if len(fc.active) == 0 {
		return nil
	}
	return fc.active[len(fc.active)-1]
}

func (fc *forkChoice) atHeight(height int64) *blockNode {
	if height < 0 || height >= int64(len(fc.active)) {
		return nil
	}
	return fc.active[height]
}

// reorg makes newTip the head of the active chain. Only the nodes between the
// old and new tips and their common ancestor are touched. It returns the fork
// point (nil when the chains share nothing) and how many blocks were
// disconnected from the old chain.
func (fc *forkChoice) reorg(bi *blockIndex, newTip *blockNode) (*blockNode, int64) {
	oldTip := fc.tip()
	if oldTip == newTip {
		return newTip, 0
	}

	if newTip == nil {
		for _, n := range fc.active {
			fc.demote(n)
		}
		depth := int64(len(fc.active))
		fc.active = nil
		return nil, depth
	}

	var fork *blockNode
	if oldTip != nil {
		fork = bi.commonAncestor(oldTip, newTip)
	}

	forkHeight := int64(-1)
	if fork != nil {
		forkHeight = fork.height
	}

	// Old chain: every block above the fork leaves the active set.
	for _, n := range fc.active[forkHeight+1:] {
		fc.demote(n)
	}
	depth := int64(len(fc.active)) - (forkHeight + 1)
	fc.active = fc.active[:forkHeight+1]

	// New chain: collect tip → fork, then append fork → tip.
	path := make([]*blockNode, 0, newTip.height-forkHeight)
	for n := newTip; n != fork; n = bi.parent(n) {
		path = append(path, n)
	}
	for i := len(path) - 1; i >= 0; i-- {
		path[i].status = models.StatusActive
		fc.active = append(fc.active, path[i])
	}

	return fork, depth
}

func (fc *forkChoice) demote(n *blockNode) {
	if n.status == models.StatusActive {
		n.status = models.StatusValidFork
	}
}

// invalidate marks top and all of its descendants invalid and returns them.
// The caller is expected to pick a new best tip and reorg to it.
func (fc *forkChoice) invalidate(bi *blockIndex, top *blockNode) []*blockNode {
	nodes := bi.subtree(top)
	for _, n := range nodes {
		n.status = models.StatusInvalid
	}
	return nodes
}

// forkPoint returns the highest ancestor of n that is on the active chain, or
// nil when there is none. Results for every node walked are stored in memo so
// tips sharing a branch are only walked once per query.
func (fc *forkChoice) forkPoint(bi *blockIndex, n *blockNode,
	memo map[*blockNode]*blockNode) *blockNode {

	var walked []*blockNode
	var fork *blockNode
	for cur := n; cur != nil; cur = bi.parent(cur) {
		if f, ok := memo[cur]; ok {
			fork = f
			break
		}
		if cur.status == models.StatusActive {
			fork = cur
			break
		}
		walked = append(walked, cur)
	}
	for _, w := range walked {
		memo[w] = fork
	}
	return fork
}
