package models

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Status classifies a block relative to the currently selected best chain.
type Status uint8

const (
	// StatusValidFork marks a valid block that is not on the active chain.
	StatusValidFork Status = iota

	// StatusActive marks a block on the active chain.
	StatusActive

	// StatusInvalid marks a block that can never be extended, either because
	// it was reported invalid or because one of its ancestors was.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusValidFork:
		return "valid-fork"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Header is an already-validated block header handed to the index.
type Header struct {
	Hash       chainhash.Hash
	ParentHash chainhash.Hash // zero for the genesis block
	Height     int64
	Work       *big.Int // work contributed by this block alone, must be positive
	Invalid    bool     // set when the validation pipeline rejected the block
}

// IsGenesis reports whether the header claims to have no parent.
func (h *Header) IsGenesis() bool {
	return h.ParentHash == (chainhash.Hash{})
}

// Block is a read-only copy of an indexed block node.
//
// Work and CumulativeWork are shared with the index and must not be modified.
type Block struct {
	Hash           chainhash.Hash
	ParentHash     chainhash.Hash
	Height         int64
	Work           *big.Int
	CumulativeWork *big.Int
	Status         Status
}

// ChainTip describes one leaf of the block tree.
type ChainTip struct {
	Block
	BranchLen int64 // blocks between the tip and its fork point on the active chain
}
