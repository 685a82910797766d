package chain

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"finality-project/logger"
	"finality-project/models"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"
)

// Observer receives notifications about index changes. Calls are made while
// the write lock is held, so implementations must not call back into Chain.
type Observer interface {
	HeaderAccepted(b models.Block)
	HeaderRejected(reason string)
	Reorganized(depth int64)
	TipsChanged(tipCount int, bestHeight int64)
}

type nopObserver struct{}

func (nopObserver) HeaderAccepted(models.Block) {}
func (nopObserver) HeaderRejected(string) {}
func (nopObserver) Reorganized(int64) {}
func (nopObserver) TipsChanged(int, int64) {}

// Chain tracks competing chain tips, selects the active chain and answers
// finality queries. One writer submits headers while any number of readers
// query; every submission is applied atomically with respect to readers.
type Chain struct {
	mux      sync.RWMutex
	index    *blockIndex
	tips     *tipSet
	forks    *forkChoice
	observer Observer
}

// NewChain returns an empty chain. A nil observer disables notifications.
func NewChain(observer Observer) *Chain {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Chain{
		index:    newBlockIndex(),
		tips:     newTipSet(),
		forks:    newForkChoice(),
		observer: observer,
	}
}

// SubmitHeader indexes an already-validated header, updates the tip set and
// re-evaluates the active chain. Resubmitting a known header is a no-op,
// unless it now carries the invalid flag, in which case the block and its
// descendants are invalidated.
func (c *Chain) SubmitHeader(h models.Header) (models.Block, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	return c.submitHeader(h)
}

// SubmitHeaders applies an ordered batch, parents before children, under a
// single write lock. It stops at the first failing header and returns how
// many headers were applied before it.
func (c *Chain) SubmitHeaders(headers []models.Header) (int, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	for i, h := range headers {
		if _, err := c.submitHeader(h); err != nil {
			return i, fmt.Errorf("header %d: %w", i, err)
		}
	}
	return len(headers), nil
}

func (c *Chain) submitHeader(h models.Header) (models.Block, error) {
	node, created, err := c.index.insert(h)
	if err != nil {
		logger.Logger.Debug("Rejected header",
			zap.Stringer("hash", h.Hash), zap.Int64("height", h.Height),
			zap.Error(err))
		c.observer.HeaderRejected(RejectReason(err))
		return models.Block{}, err
	}

	if !created {
		if h.Invalid && node.status != models.StatusInvalid {
			c.invalidate(node)
		}
		return node.toBlock(), nil
	}

	if node.status == models.StatusInvalid {
		logger.Logger.Warn("Indexed invalid block",
			zap.Stringer("hash", node.hash), zap.Int64("height", node.height))
	}

	if c.tips.onBlockInserted(c.index, node) {
		c.switchTo(c.tips.best)
	}

	b := node.toBlock()
	c.observer.HeaderAccepted(b)
	c.observer.TipsChanged(c.tips.tips.Cardinality(), c.bestHeight())
	return b, nil
}

// InvalidateBlock marks a known block and every descendant invalid. If the
// active chain ran through it, the best remaining tip becomes active.
func (c *Chain) InvalidateBlock(hash chainhash.Hash) error {
	c.mux.Lock()
	defer c.mux.Unlock()

	node := c.index.lookup(hash)
	if node == nil {
		return fmt.Errorf("%w: %v", ErrUnknownBlock, hash)
	}
	if node.status != models.StatusInvalid {
		c.invalidate(node)
	}
	return nil
}

func (c *Chain) invalidate(node *blockNode) {
	retired := c.forks.invalidate(c.index, node)
	logger.Logger.Warn("Invalidated block",
		zap.Stringer("hash", node.hash), zap.Int64("height", node.height),
		zap.Int("descendants", len(retired)-1))

	if c.tips.onSubtreeInvalidated(c.index, node, retired) {
		c.switchTo(c.tips.best)
	}
	c.observer.TipsChanged(c.tips.tips.Cardinality(), c.bestHeight())
}

func (c *Chain) switchTo(newTip *blockNode) {
	oldTip := c.forks.tip()
	fork, depth := c.forks.reorg(c.index, newTip)
	if depth == 0 {
		return
	}

	fields := []zap.Field{zap.Int64("depth", depth)}
	if oldTip != nil {
		fields = append(fields, zap.Stringer("old_tip", oldTip.hash))
	}
	if newTip != nil {
		fields = append(fields, zap.Stringer("new_tip", newTip.hash),
			zap.Int64("new_height", newTip.height))
	}
	if fork != nil {
		fields = append(fields, zap.Int64("fork_height", fork.height))
	}
	logger.Logger.Info("Active chain reorganized", fields...)
	c.observer.Reorganized(depth)
}

func (c *Chain) bestHeight() int64 {
	if c.tips.best == nil {
		return -1
	}
	return c.tips.best.height
}

// ActiveChain returns the active chain from genesis to the best tip.
func (c *Chain) ActiveChain() []models.Block {
	c.mux.RLock()
	defer c.mux.RUnlock()

	out := make([]models.Block, len(c.forks.active))
	for i, n := range c.forks.active {
		out[i] = n.toBlock()
	}
	return out
}

// BestTip returns the head of the active chain.
func (c *Chain) BestTip() (models.Block, bool) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	if c.tips.best == nil {
		return models.Block{}, false
	}
	return c.tips.best.toBlock(), true
}

// BlockAtHeight returns the active block at the given height.
func (c *Chain) BlockAtHeight(height int64) (models.Block, bool) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	n := c.forks.atHeight(height)
	if n == nil {
		return models.Block{}, false
	}
	return n.toBlock(), true
}

// Block returns the indexed block with the given hash.
func (c *Chain) Block(hash chainhash.Hash) (models.Block, bool) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	n := c.index.lookup(hash)
	if n == nil {
		return models.Block{}, false
	}
	return n.toBlock(), true
}

// StatusOf returns the current classification of a block.
func (c *Chain) StatusOf(hash chainhash.Hash) (models.Status, error) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	n := c.index.lookup(hash)
	if n == nil {
		return 0, fmt.Errorf("%w: %v", ErrUnknownBlock, hash)
	}
	return n.status, nil
}

// IsActive reports whether the block is on the active chain.
func (c *Chain) IsActive(hash chainhash.Hash) bool {
	c.mux.RLock()
	defer c.mux.RUnlock()

	n := c.index.lookup(hash)
	return n != nil && n.status == models.StatusActive
}

// AncestorAt returns the ancestor of hash at the target height.
func (c *Chain) AncestorAt(hash chainhash.Hash, height int64) (models.Block, bool) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	n := c.index.lookup(hash)
	if n == nil {
		return models.Block{}, false
	}
	a := c.index.ancestorAt(n, height)
	if a == nil {
		return models.Block{}, false
	}
	return a.toBlock(), true
}

// CommonAncestor returns the most recent block shared by both chains.
func (c *Chain) CommonAncestor(a, b chainhash.Hash) (models.Block, error) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	na, nb := c.index.lookup(a), c.index.lookup(b)
	if na == nil {
		return models.Block{}, fmt.Errorf("%w: %v", ErrUnknownBlock, a)
	}
	if nb == nil {
		return models.Block{}, fmt.Errorf("%w: %v", ErrUnknownBlock, b)
	}
	return c.index.commonAncestor(na, nb).toBlock(), nil
}

// Tips lists every leaf of the block tree, the active tip first and then by
// descending height. Invalid leaves are included with their invalid status.
func (c *Chain) Tips() []models.ChainTip {
	c.mux.RLock()
	defer c.mux.RUnlock()

	memo := make(map[*blockNode]*blockNode)
	leaves := append(c.tips.validTips(c.index), c.tips.invalidTips(c.index)...)
	out := make([]models.ChainTip, 0, len(leaves))
	for _, n := range leaves {
		forkHeight := int64(-1)
		if n.status == models.StatusActive {
			forkHeight = n.height
		} else if f := c.forks.forkPoint(c.index, n, memo); f != nil {
			forkHeight = f.height
		}
		out = append(out, models.ChainTip{
			Block:     n.toBlock(),
			BranchLen: n.height - forkHeight,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		ai := out[i].Status == models.StatusActive
		aj := out[j].Status == models.StatusActive
		if ai != aj {
			return ai
		}
		if out[i].Height != out[j].Height {
			return out[i].Height > out[j].Height
		}
		return bytes.Compare(out[i].Hash[:], out[j].Hash[:]) < 0
	})
	return out
}

// FinalityIndex returns how many blocks the heaviest rival branch still
// needs before it could displace the given active block, or
// FinalityInfinite when there is no rival.
func (c *Chain) FinalityIndex(hash chainhash.Hash) (int64, error) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	return c.finalityIndex(hash)
}

// Len returns the number of indexed blocks.
func (c *Chain) Len() int {
	c.mux.RLock()
	defer c.mux.RUnlock()

	return c.index.len()
}
