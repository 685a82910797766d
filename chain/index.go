package chain

import (
	"bytes"
	"fmt"
	"math/big"

	"finality-project/models"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// blockNode is the index entry for one accepted header. Everything except
// status and children is fixed once the node is stored.
type blockNode struct {
	hash           chainhash.Hash
	parentHash     chainhash.Hash
	height         int64
	work           *big.Int
	cumulativeWork *big.Int
	status         models.Status
	children       []chainhash.Hash
}

func (n *blockNode) isGenesis() bool {
	return n.parentHash == (chainhash.Hash{})
}

func (n *blockNode) toBlock() models.Block {
	return models.Block{
		Hash:           n.hash,
		ParentHash:     n.parentHash,
		Height:         n.height,
		Work:           n.work,
		CumulativeWork: n.cumulativeWork,
		Status:         n.status,
	}
}

// betterThan reports whether n should be preferred over other as best tip:
// more cumulative work wins, equal work goes to the lower hash.
func (n *blockNode) betterThan(other *blockNode) bool {
	if other == nil {
		return true
	}
	switch n.cumulativeWork.Cmp(other.cumulativeWork) {
	case 1:
		return true
	case -1:
		return false
	}
	return bytes.Compare(n.hash[:], other.hash[:]) < 0
}

// blockIndex is an append-only forest of block nodes keyed by hash. Parents
// are referenced by hash, the map owns every node.
type blockIndex struct {
	nodes map[chainhash.Hash]*blockNode
	root  *blockNode
}

func newBlockIndex() *blockIndex {
	return &blockIndex{nodes: make(map[chainhash.Hash]*blockNode)}
}

func (bi *blockIndex) lookup(hash chainhash.Hash) *blockNode {
	return bi.nodes[hash]
}

func (bi *blockIndex) parent(n *blockNode) *blockNode {
	if n.isGenesis() {
		return nil
	}
	return bi.nodes[n.parentHash]
}

func (bi *blockIndex) len() int {
	return len(bi.nodes)
}

// insert validates h and stores a new node for it. The returned bool is false
// when h was already indexed with identical fields. Nothing is modified when
// an error is returned.
func (bi *blockIndex) insert(h models.Header) (*blockNode, bool, error) {
	if h.Hash == (chainhash.Hash{}) {
		return nil, false, ErrZeroHash
	}

	if existing, ok := bi.nodes[h.Hash]; ok {
		if existing.parentHash != h.ParentHash || existing.height != h.Height ||
			h.Work == nil || existing.work.Cmp(h.Work) != 0 {

			return nil, false, fmt.Errorf("%w: %v", ErrConflictingRedefinition, h.Hash)
		}
		return existing, false, nil
	}

	if h.Work == nil || h.Work.Sign() <= 0 {
		return nil, false, fmt.Errorf("%w: block %v", ErrNonPositiveWork, h.Hash)
	}

	var parent *blockNode
	if h.IsGenesis() {
		if bi.root != nil {
			return nil, false, fmt.Errorf("%w: %v has no parent but genesis "+
				"%v is already indexed", ErrOrphanBlock, h.Hash, bi.root.hash)
		}
		if h.Height != 0 {
			return nil, false, fmt.Errorf("%w: genesis %v declares height %d",
				ErrHeightMismatch, h.Hash, h.Height)
		}
	} else {
		parent = bi.nodes[h.ParentHash]
		if parent == nil {
			return nil, false, fmt.Errorf("%w: parent %v of %v is not indexed",
				ErrOrphanBlock, h.ParentHash, h.Hash)
		}
		if h.Height != parent.height+1 {
			return nil, false, fmt.Errorf("%w: block %v declares height %d, "+
				"parent is at %d", ErrHeightMismatch, h.Hash, h.Height,
				parent.height)
		}
	}

	node := &blockNode{
		hash:       h.Hash,
		parentHash: h.ParentHash,
		height:     h.Height,
		work:       new(big.Int).Set(h.Work),
		status:     models.StatusValidFork,
	}
	if parent == nil {
		node.cumulativeWork = new(big.Int).Set(node.work)
	} else {
		node.cumulativeWork = new(big.Int).Add(parent.cumulativeWork, node.work)
	}
	if h.Invalid || (parent != nil && parent.status == models.StatusInvalid) {
		node.status = models.StatusInvalid
	}

	// The node is complete before it becomes reachable from the map or from
	// its parent.
	bi.nodes[node.hash] = node
	if parent == nil {
		bi.root = node
	} else {
		parent.children = append(parent.children, node.hash)
	}

	return node, true, nil
}

// hasValidChild reports whether any known child of n is not invalid.
func (bi *blockIndex) hasValidChild(n *blockNode) bool {
	for _, c := range n.children {
		if bi.nodes[c].status != models.StatusInvalid {
			return true
		}
	}
	return false
}

// ancestorAt walks parent links from n down to height. It returns nil for a
// negative height or one above n.
func (bi *blockIndex) ancestorAt(n *blockNode, height int64) *blockNode {
	if height < 0 || height > n.height {
		return nil
	}
	for n != nil && n.height > height {
		n = bi.parent(n)
	}
	return n
}

// commonAncestor brings a and b to the same height and then walks both up in
// lock-step until they meet. The index has a single root so this always
// terminates with a node.
func (bi *blockIndex) commonAncestor(a, b *blockNode) *blockNode {
	if a.height > b.height {
		a = bi.ancestorAt(a, b.height)
	} else if b.height > a.height {
		b = bi.ancestorAt(b, a.height)
	}
	for a != b {
		a = bi.parent(a)
		b = bi.parent(b)
	}
	return a
}

// subtree returns n and all of its descendants, parents before children.
func (bi *blockIndex) subtree(n *blockNode) []*blockNode {
	out := []*blockNode{n}
	for i := 0; i < len(out); i++ {
		for _, c := range out[i].children {
			out = append(out, bi.nodes[c])
		}
	}
	return out
}
