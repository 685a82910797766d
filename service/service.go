package service

import (
	"sync"
	"time"

	"finality-project/chain"
	"finality-project/logger"
	"finality-project/models"
	"finality-project/repository"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"
)

// Service feeds headers into the chain index and journals every accepted
// header so the index can be rebuilt after a restart.
type Service struct {
	chain *chain.Chain
	repo  repository.HeaderRepositoryInterface

	mux      sync.Mutex
	lastBest chainhash.Hash
}

func NewService(c *chain.Chain, repo repository.HeaderRepositoryInterface) *Service {
	return &Service{chain: c, repo: repo}
}

// Chain returns the index used for queries.
func (s *Service) Chain() *chain.Chain {
	return s.chain
}

// Submit applies a header and journals it. Journal failures are logged but do
// not undo the insertion.
func (s *Service) Submit(h models.Header) (models.Block, error) {
	block, err := s.chain.SubmitHeader(h)
	if err != nil {
		return models.Block{}, err
	}

	if err := s.repo.PutHeader(journalEntry(block)); err != nil {
		logger.Logger.Error("Failed journaling header",
			zap.Stringer("hash", h.Hash), zap.Error(err))
	}
	s.checkpoint()
	return block, nil
}

// journalEntry records a block as the index holds it, so a resend without
// the invalid flag cannot clear an earlier invalidation.
func journalEntry(b models.Block) models.Header {
	return models.Header{
		Hash:       b.Hash,
		ParentHash: b.ParentHash,
		Height:     b.Height,
		Work:       b.Work,
		Invalid:    b.Status == models.StatusInvalid,
	}
}

// SubmitBatch applies an ordered batch and journals the applied prefix.
func (s *Service) SubmitBatch(headers []models.Header) (int, error) {
	n, err := s.chain.SubmitHeaders(headers)
	if n > 0 {
		entries := make([]models.Header, 0, n)
		for _, h := range headers[:n] {
			if b, ok := s.chain.Block(h.Hash); ok {
				entries = append(entries, journalEntry(b))
			}
		}
		if jerr := s.repo.PutHeaders(entries); jerr != nil {
			logger.Logger.Error("Failed journaling header batch",
				zap.Int("count", n), zap.Error(jerr))
		}
		s.checkpoint()
	}
	return n, err
}

// Invalidate marks a block and its descendants invalid and records the flag
// in the journal.
func (s *Service) Invalidate(hash chainhash.Hash) error {
	if err := s.chain.InvalidateBlock(hash); err != nil {
		return err
	}

	b, ok := s.chain.Block(hash)
	if ok {
		if err := s.repo.PutHeader(journalEntry(b)); err != nil {
			logger.Logger.Error("Failed journaling invalidation",
				zap.Stringer("hash", hash), zap.Error(err))
		}
	}
	s.checkpoint()
	return nil
}

// Replay rebuilds the index from the journal. Headers the index refuses are
// logged and skipped. It returns the number of headers applied.
func (s *Service) Replay() (int, error) {
	headers, err := s.repo.GetAllHeaders()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, h := range headers {
		if _, err := s.chain.SubmitHeader(h); err != nil {
			logger.Logger.Warn("Skipping journaled header",
				zap.Stringer("hash", h.Hash), zap.Int64("height", h.Height),
				zap.Error(err))
			continue
		}
		applied++
	}

	best, ok := s.chain.BestTip()
	cp, err := s.repo.GetLatestCheckpoint()
	if err != nil {
		return applied, err
	}
	switch {
	case cp == nil:
	case !ok || cp.BestHash != best.Hash:
		logger.Logger.Warn("Replayed best tip differs from checkpoint",
			zap.Stringer("checkpoint", cp.BestHash),
			zap.Int64("checkpoint_height", cp.Height),
			zap.Stringer("best", best.Hash))
	default:
		logger.Logger.Info("Replay matches checkpoint",
			zap.Stringer("best", best.Hash), zap.Int64("height", best.Height))
	}
	if ok {
		s.mux.Lock()
		s.lastBest = best.Hash
		s.mux.Unlock()
	}
	return applied, nil
}

// checkpoint stores the best tip whenever it moved since the last call.
func (s *Service) checkpoint() {
	best, ok := s.chain.BestTip()
	if !ok {
		return
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	if best.Hash == s.lastBest {
		return
	}
	err := s.repo.PutCheckpoint(&models.Checkpoint{
		BestHash:  best.Hash,
		Height:    best.Height,
		Timestamp: nowMillis(),
	})
	if err != nil {
		logger.Logger.Error("Failed storing checkpoint", zap.Error(err))
		return
	}
	s.lastBest = best.Hash
}

// nowMillis returns current time in milliseconds
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
