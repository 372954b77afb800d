package store

import (
	"github.com/coresig/signer/chain"
	"github.com/coresig/signer/frost"
)

// Validity is the tri-state outcome of the externally delegated block
// validation check.
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityValid
	ValidityInvalid
)

// BlockInfo is the per-proposed-block state BlockGate and SignerEngine
// mutate as a block moves from proposal to a terminal vote.
//
// Invariants: once Vote is set it is never changed; SignedOver only
// transitions false -> true.
type BlockInfo struct {
	Block               *chain.Block  `json:"block"`
	Vote                chain.Vote    `json:"vote,omitempty"`
	Valid               Validity      `json:"valid"`
	PendingNonceRequest *frost.Packet `json:"pending_nonce_request,omitempty"`
	SignedOver          bool          `json:"signed_over"`
}

// NewBlockInfo creates the BlockInfo a block gets on first sight, whether
// from the proposal stream or a nonce request referencing an unseen hash.
func NewBlockInfo(block *chain.Block) *BlockInfo {
	return &BlockInfo{Block: block, Valid: ValidityUnknown}
}

// SetVote records the engine's decided vote. It is a programming error to
// call this twice for the same BlockInfo; callers must check Vote == nil
// first.
func (bi *BlockInfo) SetVote(v chain.Vote) {
	if bi.Vote == nil {
		bi.Vote = v
	}
}

// MarkSignedOver transitions SignedOver false -> true. Calling it when
// already true is a no-op, preserving the one-way transition invariant.
func (bi *BlockInfo) MarkSignedOver() {
	bi.SignedOver = true
}
