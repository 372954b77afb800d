// Package chainclient implements the narrow chain-RPC contract the signer
// engine depends on: reward-cycle state, aggregate-key reads, account
// nonces, node epoch, block validation submission, and transaction
// building/submission.
package chainclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/coresig/signer/chain"
)

// ErrUnavailable classifies a chain-RPC failure as transient connectivity
// trouble, as opposed to a request the node
// rejected on its merits.
var ErrUnavailable = errors.New("chainclient: chain RPC unavailable")

// ChainClient is the chain-node RPC surface the signer engine consumes.
// All methods are fallible and are called under exponential-backoff
// retry by the implementation.
type ChainClient interface {
	GetCurrentRewardCycle(ctx context.Context) (uint64, error)
	GetAggregatePublicKey(ctx context.Context, cycle uint64) (chain.Point, bool, error)
	GetLastRound(ctx context.Context, cycle uint64) (uint64, bool, error)
	GetVoteForAggregatePublicKey(ctx context.Context, round, cycle uint64, origin chain.Address) (chain.Point, bool, error)
	GetAccountNonce(ctx context.Context, address chain.Address) (uint64, error)
	GetNodeEpoch(ctx context.Context) (chain.EpochId, error)
	SubmitBlockForValidation(ctx context.Context, block *chain.Block) error
	SubmitTransaction(ctx context.Context, tx *chain.Transaction) (chain.TxId, error)
	BuildVoteForAggregatePublicKey(ctx context.Context, slot uint32, dkgID uint64, point chain.Point, feeMicroUnits *uint64) (*chain.Transaction, error)
}

func wrapUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
