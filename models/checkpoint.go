package models

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Checkpoint records the best tip the service last reported, so a restart can
// tell whether replaying the header journal led back to the same chain.
type Checkpoint struct {
	BestHash  chainhash.Hash
	Height    int64
	Timestamp int64 // unix timestamp in ms
}
