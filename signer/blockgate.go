package signer

import (
	"context"

	"github.com/coresig/signer/chain"
	"github.com/coresig/signer/store"
)

// AuditOutcome classifies the result of auditing a proposed block's
// transaction set against the bulletin.
type AuditOutcome int

const (
	AuditOK AuditOutcome = iota
	AuditMissingTransactions
	AuditConnectivityIssue
)

// BlockGate derives this signer's vote on a proposed block and validates
// inbound signature-share requests against the cached vote.
type BlockGate struct {
	Auditor *TxAuditor
}

// AuditBlock checks that block contains every bulletin transaction the
// auditor would admit for the current signer set. fetchErr carries a
// bulletin-unavailable failure from harvesting bulletinTxs; when set, the
// audit itself never runs and the caller must treat this as a
// connectivity rejection.
func (g *BlockGate) AuditBlock(ctx context.Context, block *chain.Block, bulletinTxs []*chain.Transaction, fetchErr error) (AuditOutcome, []chain.TxId) {
	if fetchErr != nil {
		return AuditConnectivityIssue, nil
	}

	present := make(map[string]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		present[tx.ID] = struct{}{}
	}

	var missing []chain.TxId
	for _, tx := range bulletinTxs {
		if !g.Auditor.Admit(ctx, tx) {
			continue
		}
		if _, ok := present[tx.ID]; !ok {
			missing = append(missing, chain.TxId(tx.ID))
		}
	}
	if len(missing) > 0 {
		return AuditMissingTransactions, missing
	}
	return AuditOK, nil
}

// DeriveVote computes the vote for a block whose Valid field has already
// been set by the engine, folding in the transaction-audit outcome (yes
// iff the block is valid and the transaction audit passed). It reports
// emit=false when no vote should be recorded (validity not yet known, or
// a connectivity issue blocked the audit).
func (g *BlockGate) DeriveVote(hash [32]byte, valid store.Validity, outcome AuditOutcome) (vote chain.Vote, emit bool) {
	if outcome == AuditConnectivityIssue {
		return nil, false
	}
	if valid == store.ValidityUnknown {
		return nil, false
	}
	if outcome == AuditMissingTransactions {
		return chain.VoteNo(hash), true
	}
	if valid == store.ValidityValid {
		return chain.VoteYes(hash), true
	}
	return chain.VoteNo(hash), true
}

// ValidateSignatureShareRequest reports whether an inbound request
// message is well-formed and matches this block's already-cached vote:
// a 32-byte yes-form or 33-byte 'n'-suffixed no-form of the same hash and
// form BlockGate already decided.
func ValidateSignatureShareRequest(msg []byte, bi *store.BlockInfo) bool {
	req := chain.Vote(msg)
	if !req.Valid() {
		return false
	}
	if bi == nil || bi.Vote == nil || !bi.Vote.Valid() {
		return false
	}
	if req.Hash() != bi.Vote.Hash() {
		return false
	}
	return req.IsYes() == bi.Vote.IsYes()
}

// CachedVoteBytes returns the vote bytes the engine overwrites a
// signature-share request's message with before handing the packet to
// the threshold-signing library (defends against a dishonest
// coordinator shifting the message mid-round).
func CachedVoteBytes(bi *store.BlockInfo) []byte {
	return []byte(bi.Vote)
}
